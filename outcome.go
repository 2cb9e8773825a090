package batchloader

// Outcome is the canonical result-table cell: exactly one of
// ok(value), not_found, or error(cause).
type Outcome struct {
	value    any
	notFound bool
	err      error
}

// Ok builds a successful outcome.
func Ok(value any) Outcome { return Outcome{value: value} }

// NotFound builds an outcome recording that the item resolved to nothing.
func NotFound() Outcome { return Outcome{notFound: true} }

// Err builds a failed outcome wrapping cause.
func Err(cause error) Outcome { return Outcome{err: cause} }

// IsOK reports whether the outcome is ok(value).
func (o Outcome) IsOK() bool { return o.err == nil && !o.notFound }

// IsNotFound reports whether the outcome is not_found.
func (o Outcome) IsNotFound() bool { return o.notFound && o.err == nil }

// IsError reports whether the outcome is error(cause).
func (o Outcome) IsError() bool { return o.err != nil }

// Value returns the ok value, or nil if the outcome is not_found or error.
func (o Outcome) Value() any { return o.value }

// Cause returns the wrapped error, or nil if the outcome is not error.
func (o Outcome) Cause() error { return o.err }
