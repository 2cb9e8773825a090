package batchloader

import "fmt"

// ErrorCategory distinguishes caller errors (programming mistakes, surfaced
// immediately) from batch errors (backend-shaped, surfaced only through Get
// under the loader's error-visibility policy).
type ErrorCategory string

const (
	CategoryCaller ErrorCategory = "caller"
	CategoryBatch  ErrorCategory = "batch"
)

// CategorizedError is implemented by every error type in this taxonomy,
// distinguishing caller errors from batch errors (live in the result table,
// surfaced only through Get per the policy in effect).
type CategorizedError interface {
	error
	Category() ErrorCategory
}

// ConfigurationError reports an invalid option at loader or source
// construction. Caller error.
type ConfigurationError struct {
	Option string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("batchloader: configuration error: option %q: %s", e.Option, e.Reason)
}

func (e *ConfigurationError) Category() ErrorCategory { return CategoryCaller }

// UnknownSourceError reports that load/get named a source that was never
// bound with AddSource. Caller error.
type UnknownSourceError struct {
	Name string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("batchloader: unknown source %q", e.Name)
}

func (e *UnknownSourceError) Category() ErrorCategory { return CategoryCaller }

// UnrunBatchError reports a Get for a (batch_key, item_key) pair that was
// never loaded, or was loaded after the most recent Run. Caller error; this
// is a programming mistake, not a backend failure, and surfaces identically
// under every get_policy.
type UnrunBatchError struct {
	Source   string
	BatchKey Key
	ItemKey  Key
}

func (e *UnrunBatchError) Error() string {
	return fmt.Sprintf("batchloader: unrun batch: source %q, batch_key %s, item_key %s",
		e.Source, e.BatchKey, e.ItemKey)
}

func (e *UnrunBatchError) Category() ErrorCategory { return CategoryCaller }

// BadIDError reports that the relational source could not coerce a
// caller-supplied item key into the entity's declared primary-key type.
// Batch error: lives in the result table as an outcome.
type BadIDError struct {
	Entity string
	Raw    any
	Cause  error
}

func (e *BadIDError) Error() string {
	return fmt.Sprintf("batchloader: bad id for entity %q: %v: %v", e.Entity, e.Raw, e.Cause)
}

func (e *BadIDError) Unwrap() error { return e.Cause }

func (e *BadIDError) Category() ErrorCategory { return CategoryBatch }

// MultipleResultsError reports that a cardinality-one column load or a
// "has one"-kind association matched more than one row. Batch error.
type MultipleResultsError struct {
	Entity string
	Count  int
}

func (e *MultipleResultsError) Error() string {
	return fmt.Sprintf("batchloader: multiple results for entity %q: got %d rows, expected at most 1", e.Entity, e.Count)
}

func (e *MultipleResultsError) Category() ErrorCategory { return CategoryBatch }

// ProtocolViolationError reports that a user-supplied run_batch callback
// returned a malformed result: a number of outcomes different from the
// number of pending items. Batch error.
type ProtocolViolationError struct {
	Entity   string
	Expected int
	Got      int
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("batchloader: protocol violation for entity %q: run_batch returned %d outcomes for %d pending items",
		e.Entity, e.Got, e.Expected)
}

func (e *ProtocolViolationError) Category() ErrorCategory { return CategoryBatch }

// BackendError wraps a failure raised by the underlying store or KV
// callback. Batch error.
type BackendError struct {
	Cause error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("batchloader: backend error: %v", e.Cause)
}

func (e *BackendError) Unwrap() error { return e.Cause }

func (e *BackendError) Category() ErrorCategory { return CategoryBatch }

// TimeoutError reports that a batch's per-batch deadline was exceeded before
// it produced an outcome. Batch error.
type TimeoutError struct {
	Source string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("batchloader: batch timed out on source %q", e.Source)
}

func (e *TimeoutError) Category() ErrorCategory { return CategoryBatch }

// GetError is what Get raises under the raise_on_error policy when the
// stored outcome for a pair is error(cause). It wraps the batch error that
// produced the outcome.
type GetError struct {
	Source   string
	BatchKey Key
	ItemKey  Key
	Cause    error
}

func (e *GetError) Error() string {
	return fmt.Sprintf("batchloader: get error: source %q, batch_key %s, item_key %s: %v",
		e.Source, e.BatchKey, e.ItemKey, e.Cause)
}

func (e *GetError) Unwrap() error { return e.Cause }

// Category reports CategoryBatch: GetError only ever wraps a batch error
// surfaced under raise_on_error, never a caller error (those return
// directly from the operation that detected them).
func (e *GetError) Category() ErrorCategory { return CategoryBatch }
