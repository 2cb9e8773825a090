// Package relsource implements the relational Source variant:
// primary-key, column, and association loads against a caller-supplied
// Repo, with query customisation and run_batch override hooks. The actual
// SQL builder / ORM integration is deliberately out of scope —
// this package only specifies the interface such an integration must
// satisfy.
package relsource

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"

	"github.com/nasnet-community/batchloader"
)

// Cardinality selects the arity contract for a column or association load.
type Cardinality string

const (
	One  Cardinality = "one"
	Many Cardinality = "many"
)

// ParentIDColumn is the column name a Repo implementation must populate on
// every Record returned from FindByParentIDs, carrying that row's owning
// parent id — regardless of whether the association is a direct foreign
// key or bridged through a join entity. This keeps all join/bridge SQL
// inside the caller's Repo; the engine only ever needs the parent id back
// to partition rows.
const ParentIDColumn = "__parent_id__"

// Record is one row produced by a Repo call, adapting the caller's actual
// ORM/row type to what the engine needs to partition results.
type Record interface {
	ID() any
	Column(name string) any
}

// Repo is the handle a Source dispatches batched queries through — the
// interface requirement deliberately leaves the SQL builder/ORM
// integration behind. query is whatever Options.Query returned; it must be
// treated as opaque and not executed until the Repo call applies the
// batching predicate itself.
type Repo interface {
	FindByIDs(ctx context.Context, entity string, query any, ids []any, repoOpts any) ([]Record, error)
	FindByColumn(ctx context.Context, entity string, query any, column string, values []any, repoOpts any) ([]Record, error)
	FindByParentIDs(ctx context.Context, parentEntity, assocName string, query any, parentIDs []any, repoOpts any) ([]Record, error)
}

// QueryFunc builds the base, unexecuted query for entity given its merged
// params.
type QueryFunc func(entity string, params map[string]any) any

// RunBatchFunc overrides the default dispatch for a batch. It
// must return exactly one outcome per entry in items, in the same order;
// any mismatch is a *batchloader.ProtocolViolationError for the whole batch.
// column is empty outside column-mode batches.
type RunBatchFunc func(ctx context.Context, entity string, baseQuery any, column string, items []batchloader.Key, repoOpts any) ([]batchloader.Outcome, error)

// Options configures a Source.
type Options struct {
	Repo          Repo
	Query         QueryFunc
	RunBatch      RunBatchFunc
	DefaultParams map[string]any
	RepoOpts      any
	Timeout       time.Duration
	Async         bool
	MaxConcurrency int

	// Schemas resolves primary-key types and association definitions.
	Schemas Registry

	// Breaker optionally protects the shared repo handle against
	// cascading backend failures; nil disables it.
	Breaker *gobreaker.CircuitBreaker[[]Record]
}

// DefaultOptions returns identity query, default dispatch, empty
// default_params and repo_opts, timeout 15s, async = true.
func DefaultOptions() Options {
	return Options{
		Query:          func(entity string, params map[string]any) any { return entity },
		DefaultParams:  map[string]any{},
		Timeout:        15 * time.Second,
		Async:          true,
		MaxConcurrency: 2 * runtime.NumCPU(),
		Schemas:        Registry{},
	}
}

// NewCircuitBreaker builds a breaker suitable for Options.Breaker, tripping
// after 3 consecutive failures with a 30s cooldown, scaled for a batch
// dispatch instead of a long-lived connection.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker[[]Record] {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return gobreaker.NewCircuitBreaker[[]Record](settings)
}

type pendingBatch struct {
	mergedKey batchloader.Key
	raw       any // merged pkBatchKey / columnBatchKey / assocBatchKey
	items     map[string]batchloader.Key
}

// Source is the relational batchloader.Source implementation.
type Source struct {
	opts Options

	mu      sync.Mutex
	pending map[string]*pendingBatch

	resultMu sync.RWMutex
	results  map[string]map[string]batchloader.Outcome
}

// New constructs a Source. opts.MaxConcurrency <= 0 falls back to the
// default; opts.Query nil falls back to the identity query.
func New(opts Options) *Source {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultOptions().MaxConcurrency
	}
	if opts.Query == nil {
		opts.Query = DefaultOptions().Query
	}
	if opts.Schemas == nil {
		opts.Schemas = Registry{}
	}
	return &Source{
		opts:    opts,
		pending: make(map[string]*pendingBatch),
		results: make(map[string]map[string]batchloader.Outcome),
	}
}

// Load implements batchloader.Source. batchKey must have been built with
// PKKey, ColumnKey, or AssocKey; itemKey's shape depends on the mode (see
// those constructors' docs). A pair that already has a recorded outcome from
// a prior Run is a no-op.
func (s *Source) Load(batchKey, itemKey batchloader.Key) {
	merged := s.mergeBatchKey(batchKey.Raw())
	mergedKey := batchloader.NewKey(merged)

	if _, present := s.Fetch(batchKey, itemKey); present {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.pending[mergedKey.String()]
	if !ok {
		b = &pendingBatch{mergedKey: mergedKey, raw: merged, items: make(map[string]batchloader.Key)}
		s.pending[mergedKey.String()] = b
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
	merged := s.mergeBatchKey(batchKey.Raw())
	mergedKey := batchloader.NewKey(merged)

	s.resultMu.RLock()
	defer s.resultMu.RUnlock()
	items, ok := s.results[mergedKey.String()]
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

// mergeBatchKey folds Options.DefaultParams into a raw batch-key struct,
// caller params winning on conflict. It returns a new
// value of the same concrete type so hashing stays deterministic.
func (s *Source) mergeBatchKey(raw any) any {
	switch k := raw.(type) {
	case pkBatchKey:
		k.Params = mergeParams(s.opts.DefaultParams, k.Params)
		return k
	case columnBatchKey:
		k.Params = mergeParams(s.opts.DefaultParams, k.Params)
		return k
	case assocBatchKey:
		k.Params = mergeParams(s.opts.DefaultParams, k.Params)
		return k
	default:
		return raw
	}
}

func mergeParams(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// Run implements batchloader.Source.
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
			s.dispatch(ctx, b, timeout)
		}
		return nil
	}

	sem := semaphore.NewWeighted(int64(s.opts.MaxConcurrency))
	var wg sync.WaitGroup
	for _, b := range batches {
		b := b
		if err := sem.Acquire(ctx, 1); err != nil {
			s.dispatch(ctx, b, timeout)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			s.dispatch(ctx, b, timeout)
		}()
	}
	wg.Wait()
	return nil
}

func (s *Source) dispatch(ctx context.Context, b *pendingBatch, timeout time.Duration) {
	batchCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		batchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outcomes := s.runOneBatch(batchCtx, b)

	s.resultMu.Lock()
	bh := b.mergedKey.String()
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

// runOneBatch classifies the batch as timed out only when its deadline had
// already passed before dispatch. A Repo call that itself returns
// context.DeadlineExceeded after starting is not reclassified here and
// surfaces as a *BackendError instead; accurate *TimeoutError classification
// for that case depends on the Repo returning promptly once ctx is done.
func (s *Source) runOneBatch(ctx context.Context, b *pendingBatch) (outcomes map[string]batchloader.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcomes = allError(b, &batchloader.BackendError{Cause: fmt.Errorf("panic: %v", r)})
		}
	}()

	if ctx.Err() != nil {
		return allError(b, &batchloader.TimeoutError{Source: "relational"})
	}

	switch k := b.raw.(type) {
	case pkBatchKey:
		return s.dispatchPK(ctx, k, b)
	case columnBatchKey:
		return s.dispatchColumn(ctx, k, b)
	case assocBatchKey:
		return s.dispatchAssoc(ctx, k, b)
	default:
		return allError(b, fmt.Errorf("relsource: unrecognised batch key shape %T", b.raw))
	}
}

func allError(b *pendingBatch, err error) map[string]batchloader.Outcome {
	out := make(map[string]batchloader.Outcome, len(b.items))
	for hash := range b.items {
		out[hash] = batchloader.Err(err)
	}
	return out
}

func (s *Source) findByIDs(ctx context.Context, entity string, query any, ids []any, repoOpts any) ([]Record, error) {
	call := func() ([]Record, error) {
		return s.opts.Repo.FindByIDs(ctx, entity, query, ids, repoOpts)
	}
	return s.guarded(call)
}

func (s *Source) findByColumn(ctx context.Context, entity string, query any, column string, values []any, repoOpts any) ([]Record, error) {
	call := func() ([]Record, error) {
		return s.opts.Repo.FindByColumn(ctx, entity, query, column, values, repoOpts)
	}
	return s.guarded(call)
}

func (s *Source) findByParentIDs(ctx context.Context, parentEntity, assocName string, query any, parentIDs []any, repoOpts any) ([]Record, error) {
	call := func() ([]Record, error) {
		return s.opts.Repo.FindByParentIDs(ctx, parentEntity, assocName, query, parentIDs, repoOpts)
	}
	return s.guarded(call)
}

func (s *Source) guarded(call func() ([]Record, error)) ([]Record, error) {
	if s.opts.Breaker == nil {
		return call()
	}
	return s.opts.Breaker.Execute(call)
}
