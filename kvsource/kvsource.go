// Package kvsource wraps an arbitrary user-supplied fetch callback as a
// batchloader.Source: a key-value or remote-API backend whose
// only contract is "give me a batch tag and a set of item keys, get back a
// mapping of item key to value".
package kvsource

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/nasnet-community/batchloader"
)

// FetchFunc is the user-supplied batch loading function: given a batch tag
// and the set of item keys pending under it, return a mapping from item key
// to value. Keys present in the pending set but absent from the returned
// mapping resolve to not_found; keys in the mapping that were never
// requested are discarded.
type FetchFunc func(ctx context.Context, batchKey any, itemKeys []any) (map[any]any, error)

// RetryPolicy configures optional retry of a flaky FetchFunc before its
// failure is recorded as error(cause) for every item in the batch. Zero
// value disables retries (MaxRetries 0).
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// Options configures a Source.
type Options struct {
	// MaxConcurrency bounds how many batch keys dispatch at once when
	// Async is true. Default 2x logical CPUs.
	MaxConcurrency int
	// Timeout is this source's per-batch deadline. Zero means "use the
	// loader's default".
	Timeout time.Duration
	// Async dispatches batch keys concurrently when true (default);
	// false forces sequential execution on the calling goroutine.
	Async bool
	// Retry optionally retries FetchFunc before giving up on a batch.
	Retry RetryPolicy
}

// DefaultOptions returns max_concurrency = 2x logical CPUs, timeout 30s,
// async = true, no retry.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency: 2 * runtime.NumCPU(),
		Timeout:        30 * time.Second,
		Async:          true,
	}
}

type pendingEntry struct {
	items map[string]any // hash -> raw item key
}

type resultEntry struct {
	outcome batchloader.Outcome
	present bool
}

// Source is the KV batchloader.Source implementation.
type Source struct {
	fetch FetchFunc
	opts  Options

	mu      sync.Mutex
	pending map[string]*pendingBatch // batch key hash -> batch

	resultMu sync.RWMutex
	results  map[string]map[string]batchloader.Outcome // batch key hash -> item key hash -> outcome
}

type pendingBatch struct {
	key   batchloader.Key
	items map[string]batchloader.Key // item key hash -> item key
}

// New wraps fetch as a Source. opts.MaxConcurrency <= 0 falls back to the
// default.
func New(fetch FetchFunc, opts Options) *Source {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultOptions().MaxConcurrency
	}
	return &Source{
		fetch:   fetch,
		opts:    opts,
		pending: make(map[string]*pendingBatch),
		results: make(map[string]map[string]batchloader.Outcome),
	}
}

// Load implements batchloader.Source. A pair that already has a recorded
// outcome from a prior Run is a no-op
// rather than re-enqueuing.
func (s *Source) Load(batchKey, itemKey batchloader.Key) {
	if _, present := s.Fetch(batchKey, itemKey); present {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	bh := batchKey.String()
	b, ok := s.pending[bh]
	if !ok {
		b = &pendingBatch{key: batchKey, items: make(map[string]batchloader.Key)}
		s.pending[bh] = b
	}
	b.items[itemKey.String()] = itemKey
}

// PendingBatches implements batchloader.Source.
func (s *Source) PendingBatches() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// Timeout implements batchloader.Source.
func (s *Source) Timeout() time.Duration { return s.opts.Timeout }

// Async implements batchloader.Source.
func (s *Source) Async() bool { return s.opts.Async }

// Fetch implements batchloader.Source.
func (s *Source) Fetch(batchKey, itemKey batchloader.Key) (batchloader.Outcome, bool) {
	s.resultMu.RLock()
	defer s.resultMu.RUnlock()
	items, ok := s.results[batchKey.String()]
	if !ok {
		return batchloader.Outcome{}, false
	}
	outcome, ok := items[itemKey.String()]
	return outcome, ok
}

// OutcomeCounts reports ok/not_found/error totals for telemetry.
func (s *Source) OutcomeCounts() batchloader.OutcomeCounts {
	s.resultMu.RLock()
	defer s.resultMu.RUnlock()
	var c batchloader.OutcomeCounts
	for _, items := range s.results {
		for _, o := range items {
			switch {
			case o.IsOK():
				c.OK++
			case o.IsNotFound():
				c.NotFound++
			default:
				c.Error++
			}
		}
	}
	return c
}

// Run implements batchloader.Source. Each pending batch key invokes fetch
// with its accumulated item keys; multiple batches may execute concurrently
// up to MaxConcurrency when Async is true.
func (s *Source) Run(ctx context.Context, fallbackTimeout time.Duration) error {
	s.mu.Lock()
	batches := make([]*pendingBatch, 0, len(s.pending))
	for _, b := range s.pending {
		batches = append(batches, b)
	}
	s.pending = make(map[string]*pendingBatch)
	s.mu.Unlock()

	timeout := s.opts.Timeout
	if timeout <= 0 {
		timeout = fallbackTimeout
	}

	if !s.opts.Async {
		for _, b := range batches {
			s.runBatch(ctx, b, timeout)
		}
		return nil
	}

	sem := semaphore.NewWeighted(int64(s.opts.MaxConcurrency))
	var wg sync.WaitGroup
	for _, b := range batches {
		b := b
		if err := sem.Acquire(ctx, 1); err != nil {
			s.runBatch(ctx, b, timeout)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			s.runBatch(ctx, b, timeout)
		}()
	}
	wg.Wait()
	return nil
}

func (s *Source) runBatch(ctx context.Context, b *pendingBatch, timeout time.Duration) {
	batchCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		batchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	itemKeys := make([]any, 0, len(b.items))
	for _, ik := range b.items {
		itemKeys = append(itemKeys, ik.Raw())
	}

	type callResult struct {
		response map[any]any
		err      error
	}
	resultCh := make(chan callResult, 1)
	go func() {
		response, err := s.callFetch(batchCtx, b.key.Raw(), itemKeys)
		resultCh <- callResult{response: response, err: err}
	}()

	outcomes := make(map[string]batchloader.Outcome, len(b.items))
	select {
	case <-batchCtx.Done():
		// The callback is still running but the batch's deadline passed;
		// every item in this batch becomes a timeout. The goroutine above
		// is left to finish on its own and its result is discarded.
		for hash := range b.items {
			outcomes[hash] = batchloader.Err(&batchloader.TimeoutError{Source: "kv"})
		}

	case res := <-resultCh:
		switch {
		case res.err != nil:
			for hash := range b.items {
				outcomes[hash] = batchloader.Err(&batchloader.BackendError{Cause: res.err})
			}
		default:
			for hash, ik := range b.items {
				if v, found := res.response[ik.Raw()]; found {
					outcomes[hash] = batchloader.Ok(v)
				} else {
					outcomes[hash] = batchloader.NotFound()
				}
			}
		}
	}

	s.resultMu.Lock()
	bh := b.key.String()
	items, ok := s.results[bh]
	if !ok {
		items = make(map[string]batchloader.Outcome, len(outcomes))
		s.results[bh] = items
	}
	for hash, outcome := range outcomes {
		items[hash] = outcome
	}
	s.resultMu.Unlock()
}

// callFetch invokes the user callback, recovering from panics and
// optionally retrying per RetryPolicy before surfacing a failure.
func (s *Source) callFetch(ctx context.Context, batchKey any, itemKeys []any) (result map[any]any, err error) {
	attempt := func() (resp map[any]any, attemptErr error) {
		defer func() {
			if r := recover(); r != nil {
				attemptErr = fmt.Errorf("kvsource: fetch panicked: %v", r)
			}
		}()
		return s.fetch(ctx, batchKey, itemKeys)
	}

	if s.opts.Retry.MaxRetries <= 0 {
		return attempt()
	}

	bo := backoff.NewExponentialBackOff()
	if s.opts.Retry.InitialInterval > 0 {
		bo.InitialInterval = s.opts.Retry.InitialInterval
	}
	if s.opts.Retry.MaxInterval > 0 {
		bo.MaxInterval = s.opts.Retry.MaxInterval
	}
	if s.opts.Retry.Multiplier > 0 {
		bo.Multiplier = s.opts.Retry.Multiplier
	}
	retrier := backoff.WithMaxRetries(bo, uint64(s.opts.Retry.MaxRetries))

	var last map[any]any
	opErr := backoff.Retry(func() error {
		var e error
		last, e = attempt()
		return e
	}, backoff.WithContext(retrier, ctx))

	return last, opErr
}

// Prime seeds the result table for (batchKey, itemKey) with value, unless
// an outcome is already recorded — Prime never overwrites.
func (s *Source) Prime(batchKey, itemKey batchloader.Key, value any) {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()
	items, ok := s.results[batchKey.String()]
	if !ok {
		items = make(map[string]batchloader.Outcome)
		s.results[batchKey.String()] = items
	}
	if _, exists := items[itemKey.String()]; exists {
		return
	}
	items[itemKey.String()] = batchloader.Ok(value)
}

// ClearAll removes every recorded outcome, allowing a subsequent Load to
// trigger fresh I/O on next Run.
func (s *Source) ClearAll() {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()
	s.results = make(map[string]map[string]batchloader.Outcome)
}
