package batchloader

import (
	"runtime"
	"time"
)

// GetPolicy governs the shape Get/GetMany return results in.
type GetPolicy int

const (
	// RaiseOnError is the default: ok(v) -> v, not_found -> nil,
	// error(e) -> a *GetError returned from Get.
	RaiseOnError GetPolicy = iota
	// ReturnNilOnError returns nil for both not_found and error(e),
	// logging the error exactly once per (batch_key, item_key).
	ReturnNilOnError
	// Tuples returns a Tuple value for every outcome: {true, v, nil} for
	// ok(v), {true, nil, nil} for not_found, {false, nil, e} for error(e).
	Tuples
)

// Tuple is the shape Get/GetMany return under the Tuples policy.
type Tuple struct {
	OK    bool
	Value any
	Err   error
}

// Options configures a Loader.
type Options struct {
	// GetPolicy governs Get's return shape. Default RaiseOnError.
	GetPolicy GetPolicy

	// Timeout is the default per-batch timeout used when a source does not
	// declare its own. Default 15s.
	Timeout time.Duration

	// Async, when false, forces the run engine to dispatch sources
	// sequentially instead of spawning one task per pending source.
	// Default true.
	Async bool

	// MaxConcurrentSources bounds how many sources' Run methods execute at
	// once. Default 2x GOMAXPROCS.
	MaxConcurrentSources int
}

// DefaultOptions returns get_policy raise_on_error, a 15s timeout, async
// dispatch, and a source-concurrency cap of 2x GOMAXPROCS.
func DefaultOptions() Options {
	return Options{
		GetPolicy:            RaiseOnError,
		Timeout:              15 * time.Second,
		Async:                true,
		MaxConcurrentSources: 2 * runtime.GOMAXPROCS(0),
	}
}

// Option configures a Loader at construction.
type Option func(*Options)

// WithGetPolicy sets the error-visibility policy.
func WithGetPolicy(p GetPolicy) Option {
	return func(o *Options) { o.GetPolicy = p }
}

// WithTimeout sets the default per-batch timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithAsync sets whether the run engine dispatches sources concurrently.
func WithAsync(async bool) Option {
	return func(o *Options) { o.Async = async }
}

// WithMaxConcurrentSources sets the engine-wide task cap.
func WithMaxConcurrentSources(n int) Option {
	return func(o *Options) { o.MaxConcurrentSources = n }
}

func (o Options) validate() error {
	if o.Timeout < 0 {
		return &ConfigurationError{Option: "timeout", Reason: "must not be negative"}
	}
	if o.MaxConcurrentSources < 0 {
		return &ConfigurationError{Option: "max_concurrent_sources", Reason: "must not be negative"}
	}
	switch o.GetPolicy {
	case RaiseOnError, ReturnNilOnError, Tuples:
	default:
		return &ConfigurationError{Option: "get_policy", Reason: "unrecognised policy"}
	}
	return nil
}
