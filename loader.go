// Package batchloader implements a request-scoped batching and caching
// coordinator: callers declaratively enqueue data requests against named
// sources, a run drains every source's pending work concurrently, and
// results are memoised so identical subsequent requests cost nothing.
//
// A Loader owns no batching intelligence of its own; it
// delegates Load/Run/Fetch to the named Source, carrying batch and item
// keys through unchanged. Two built-in Source variants are provided in the
// kvsource and relsource subpackages.
package batchloader

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/nasnet-community/batchloader/internal/logging"
)

// Loader is the coordinator of: a container holding a mapping from
// source name to source instance and a global options block. Create one
// with New per logical unit of work (e.g. one incoming request); two
// loaders never share state.
type Loader struct {
	mu      sync.RWMutex
	sources map[string]Source
	opts    Options
	bus     *EventBus
	logger  *zap.Logger

	loggedMu sync.Mutex
	logged   map[string]struct{} // (source, batch_key, item_key) already logged under ReturnNilOnError
}

// New constructs an empty Loader. The options are get_policy, timeout,
// async, and max_concurrent_sources; an invalid value (negative timeout or
// source cap, unrecognised get_policy) fails with a *ConfigurationError.
func New(opts ...Option) (*Loader, error) {
	o := DefaultOptions()
	for _, apply := range opts {
		apply(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	bus, err := NewEventBus()
	if err != nil {
		return nil, err
	}

	return &Loader{
		sources: make(map[string]Source),
		opts:    o,
		bus:     bus,
		logger:  logging.Nop(),
		logged:  make(map[string]struct{}),
	}, nil
}

// WithLogger attaches a structured logger, replacing the no-op default.
func (l *Loader) WithLogger(logger *zap.Logger) *Loader {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = logger
	return l
}

// Events returns the loader's event bus for subscribing to run.start,
// run.stop, and run.exception.
func (l *Loader) Events() *EventBus {
	return l.bus
}

// Close releases the loader's event bus. Safe to call more than once.
func (l *Loader) Close() error {
	return l.bus.Close()
}

// AddSource binds name to source, replacing any prior binding for that
// name (idempotent replace). The most recently bound source is
// the one Run dispatches.
func (l *Loader) AddSource(name string, source Source) *Loader {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources[name] = source
	return l
}

func (l *Loader) source(name string) (Source, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src, ok := l.sources[name]
	if !ok {
		return nil, &UnknownSourceError{Name: name}
	}
	return src, nil
}

// Load records intent to fetch item_key under batch_key from the named
// source. If the pair is already resolved this is a no-op. Fails with *UnknownSourceError if name is not bound.
func (l *Loader) Load(name string, batchKey, itemKey Key) error {
	src, err := l.source(name)
	if err != nil {
		return err
	}
	if _, present := src.Fetch(batchKey, itemKey); present {
		return nil
	}
	src.Load(batchKey, itemKey)
	return nil
}

// LoadMany folds Load over itemKeys, preserving caller-visible ordering.
func (l *Loader) LoadMany(name string, batchKey Key, itemKeys []Key) error {
	src, err := l.source(name)
	if err != nil {
		return err
	}
	for _, ik := range itemKeys {
		if _, present := src.Fetch(batchKey, ik); present {
			continue
		}
		src.Load(batchKey, ik)
	}
	return nil
}

// PendingBatches reports whether any bound source has pending work.
func (l *Loader) PendingBatches() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, src := range l.sources {
		if src.PendingBatches() {
			return true
		}
	}
	return false
}

// Get returns the result for (name, batch_key, item_key), shaped by the
// loader's get_policy. It fails with *UnrunBatchError,
// identically across policies, if the pair was never loaded or was loaded
// after the most recent Run.
func (l *Loader) Get(ctx context.Context, name string, batchKey, itemKey Key) (any, error) {
	src, err := l.source(name)
	if err != nil {
		return nil, err
	}
	outcome, present := src.Fetch(batchKey, itemKey)
	if !present {
		return nil, &UnrunBatchError{Source: name, BatchKey: batchKey, ItemKey: itemKey}
	}
	return l.applyPolicy(ctx, name, batchKey, itemKey, outcome)
}

// GetMany returns outcomes for itemKeys in the caller's order, equivalent to
// mapping Get over each key.
func (l *Loader) GetMany(ctx context.Context, name string, batchKey Key, itemKeys []Key) ([]any, error) {
	results := make([]any, len(itemKeys))
	for i, ik := range itemKeys {
		v, err := l.Get(ctx, name, batchKey, ik)
		if err != nil {
			return nil, err
		}
		results[i] = v
	}
	return results, nil
}
