package batchloader

import (
	"context"

	"go.uber.org/zap"
)

// applyPolicy shapes a resolved outcome according to the loader's get_policy
//. It never errors for not_found or ok outcomes; errors only
// escape under RaiseOnError.
func (l *Loader) applyPolicy(ctx context.Context, name string, batchKey, itemKey Key, outcome Outcome) (any, error) {
	switch l.opts.GetPolicy {
	case Tuples:
		if outcome.IsError() {
			return Tuple{OK: false, Err: outcome.Cause()}, nil
		}
		return Tuple{OK: true, Value: outcome.Value()}, nil

	case ReturnNilOnError:
		if outcome.IsError() {
			l.logOnce(name, batchKey, itemKey, outcome.Cause())
			return nil, nil
		}
		return outcome.Value(), nil

	default: // RaiseOnError
		if outcome.IsError() {
			return nil, &GetError{Source: name, BatchKey: batchKey, ItemKey: itemKey, Cause: outcome.Cause()}
		}
		return outcome.Value(), nil
	}
}

// logOnce logs a batch error exactly once per (source, batch_key, item_key),
// as ReturnNilOnError requires.
func (l *Loader) logOnce(name string, batchKey, itemKey Key, cause error) {
	key := name + "\x00" + batchKey.String() + "\x00" + itemKey.String()

	l.loggedMu.Lock()
	_, already := l.logged[key]
	if !already {
		l.logged[key] = struct{}{}
	}
	l.loggedMu.Unlock()

	if already {
		return
	}
	l.logger.Error("batchloader: suppressed get error",
		zap.String("source", name),
		zap.String("batch_key", batchKey.String()),
		zap.String("item_key", itemKey.String()),
		zap.Error(cause),
	)
}
