package batchloader

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Run dispatches every bound source whose pending table is non-empty.
// Scheduling is multi-tasked cooperative: one logical task per
// pending source, capped at opts.MaxConcurrentSources; within a source,
// further parallelism (across batch keys) is that source's own concern,
// governed by its own Async()/max_concurrency.
//
// Run is the loader's only suspension point and returns only once every
// spawned task has produced an outcome — success, timeout, or exception —
// for each of the items it witnessed as pending before the call.
// It is idempotent when there is no pending work.
func (l *Loader) Run(ctx context.Context) error {
	l.mu.RLock()
	pending := make([]namedSource, 0, len(l.sources))
	for name, src := range l.sources {
		if src.PendingBatches() {
			pending = append(pending, namedSource{name: name, src: src})
		}
	}
	timeout := l.opts.Timeout
	async := l.opts.Async
	maxConcurrent := l.opts.MaxConcurrentSources
	l.mu.RUnlock()

	if len(pending) == 0 {
		return nil
	}

	if !async {
		for _, ns := range pending {
			l.runOne(ctx, ns, timeout)
		}
		return nil
	}

	if maxConcurrent <= 0 {
		maxConcurrent = len(pending)
	}
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	done := make(chan struct{}, len(pending))
	for _, ns := range pending {
		ns := ns
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context already done; run what's left sequentially so every
			// pending item still gets an outcome (timeout, most likely).
			l.runOne(ctx, ns, timeout)
			done <- struct{}{}
			continue
		}
		go func() {
			defer sem.Release(1)
			defer func() { done <- struct{}{} }()
			l.runOne(ctx, ns, timeout)
		}()
	}
	for range pending {
		<-done
	}
	return nil
}

type namedSource struct {
	name string
	src  Source
}

// runOne drives a single source's dispatch, recovering from any panic that
// escapes Source.Run so one source's defect never aborts the others.
// Built-in sources already recover per-batch internally; this is the
// engine's own backstop.
func (l *Loader) runOne(ctx context.Context, ns namedSource, fallbackTimeout time.Duration) {
	l.bus.emitRunStart(ns.name)
	start := time.Now()

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = panicToError(r)
			}
		}()
		runErr = ns.src.Run(ctx, fallbackTimeout)
	}()

	duration := time.Since(start)
	counts := l.outcomeCounts(ns)

	if runErr != nil {
		l.bus.emitRunException(ns.name, runErr)
		l.logger.Error("batchloader: source run failed",
			zap.String("source", ns.name), zap.Error(runErr))
	}
	l.bus.emitRunStop(ns.name, duration, counts)
}

// outcomeCounts is best-effort telemetry; sources that do not expose their
// full result table (the common case, since Source only guarantees Fetch
// for known pairs) simply report zero counts. Built-in sources implement an
// optional counter interface to participate.
func (l *Loader) outcomeCounts(ns namedSource) OutcomeCounts {
	type counter interface{ OutcomeCounts() OutcomeCounts }
	if c, ok := ns.src.(counter); ok {
		return c.OutcomeCounts()
	}
	return OutcomeCounts{}
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return &BackendError{Cause: err}
	}
	return &BackendError{Cause: fmt.Errorf("panic: %v", r)}
}
