package batchloader

import (
	"context"
	"time"
)

// Source is the capability set any backend plug-in must satisfy.
// Two built-in variants are provided — kvsource.Source and
// relsource.Source — and callers may implement their own.
//
// Load and Fetch never perform I/O and never block; only Run suspends.
// Implementations own two tables (a pending table and a result table)
// mutated only by the source itself; Load/Fetch observe immutable
// snapshots between Run calls.
type Source interface {
	// Load records that item_key is awaited under batch_key. If the pair
	// already has a recorded outcome this is a no-op:
	// implementations must check Fetch before touching the pending table.
	Load(batchKey, itemKey Key)

	// Run drains the pending table, producing one outcome per pending item,
	// and appends them to the result table. fallbackTimeout is the loader's
	// configured default, used for any batch whose own timeout is unset.
	// Run must not return a caller-visible error for backend failures —
	// those become error(cause) outcomes — but may return one for a defect
	// in the source's own wiring (e.g. a nil Repo).
	Run(ctx context.Context, fallbackTimeout time.Duration) error

	// Fetch is a pure lookup over the result table. The second return value
	// is false if the pair is not present (never loaded, or loaded after
	// the most recent Run).
	Fetch(batchKey, itemKey Key) (Outcome, bool)

	// PendingBatches reports whether any batch key has items awaiting Run.
	PendingBatches() bool

	// Timeout returns this source's configured per-batch timeout, or zero
	// if it has none (in which case the loader's default applies).
	Timeout() time.Duration

	// Async reports whether this source dispatches its batches
	// concurrently (true) or sequentially on the calling goroutine (false).
	Async() bool
}
