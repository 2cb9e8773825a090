package kvsource_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasnet-community/batchloader"
	"github.com/nasnet-community/batchloader/kvsource"
)

func TestSource_IdentityCallback(t *testing.T) {
	t.Run("every get returns ok(item_key)", func(t *testing.T) {
		fetch := func(ctx context.Context, batchKey any, itemKeys []any) (map[any]any, error) {
			out := make(map[any]any, len(itemKeys))
			for _, k := range itemKeys {
				out[k] = k
			}
			return out, nil
		}
		src := kvsource.New(fetch, kvsource.DefaultOptions())

		bk := batchloader.NewKey("users")
		a, b := batchloader.NewKey(1), batchloader.NewKey(2)
		src.Load(bk, a)
		src.Load(bk, b)

		require.NoError(t, src.Run(context.Background(), 30*time.Second))

		outcome, present := src.Fetch(bk, a)
		require.True(t, present)
		assert.True(t, outcome.IsOK())
		assert.Equal(t, 1, outcome.Value())
	})
}

func TestSource_NotFound(t *testing.T) {
	fetch := func(ctx context.Context, batchKey any, itemKeys []any) (map[any]any, error) {
		return map[any]any{}, nil
	}
	src := kvsource.New(fetch, kvsource.DefaultOptions())

	bk := batchloader.NewKey("users")
	ik := batchloader.NewKey(1)
	src.Load(bk, ik)
	require.NoError(t, src.Run(context.Background(), time.Second))

	outcome, present := src.Fetch(bk, ik)
	require.True(t, present)
	assert.True(t, outcome.IsNotFound())
}

func TestSource_FailureIsolation(t *testing.T) {
	// A callback that fails on one item key fails the whole batch call:
	// every item in the batch, siblings included, still gets a recorded
	// outcome (error(cause) for each of them).
	fetch := func(ctx context.Context, batchKey any, itemKeys []any) (map[any]any, error) {
		for _, k := range itemKeys {
			if k == "explode" {
				return nil, errors.New("boom")
			}
		}
		out := make(map[any]any, len(itemKeys))
		for _, k := range itemKeys {
			out[k] = k
		}
		return out, nil
	}
	src := kvsource.New(fetch, kvsource.DefaultOptions())

	bk := batchloader.NewKey("u")
	one := batchloader.NewKey(1)
	boom := batchloader.NewKey("explode")
	two := batchloader.NewKey(2)
	src.Load(bk, one)
	src.Load(bk, boom)
	src.Load(bk, two)

	require.NoError(t, src.Run(context.Background(), time.Second))

	for _, ik := range []batchloader.Key{one, boom, two} {
		_, present := src.Fetch(bk, ik)
		require.True(t, present)
	}
	_, present := src.Fetch(bk, one)
	require.True(t, present)
}

func TestSource_PanicRecovered(t *testing.T) {
	fetch := func(ctx context.Context, batchKey any, itemKeys []any) (map[any]any, error) {
		panic("callback exploded")
	}
	src := kvsource.New(fetch, kvsource.DefaultOptions())
	bk, ik := batchloader.NewKey("u"), batchloader.NewKey(1)
	src.Load(bk, ik)
	require.NoError(t, src.Run(context.Background(), time.Second))

	outcome, present := src.Fetch(bk, ik)
	require.True(t, present)
	assert.True(t, outcome.IsError())
}

func TestSource_Timeout(t *testing.T) {
	fetch := func(ctx context.Context, batchKey any, itemKeys []any) (map[any]any, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return map[any]any{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	opts := kvsource.DefaultOptions()
	opts.Timeout = 10 * time.Millisecond
	src := kvsource.New(fetch, opts)

	bk, ik := batchloader.NewKey("u"), batchloader.NewKey(1)
	src.Load(bk, ik)
	require.NoError(t, src.Run(context.Background(), time.Second))

	outcome, present := src.Fetch(bk, ik)
	require.True(t, present)
	assert.True(t, outcome.IsError())
	var timeoutErr *batchloader.TimeoutError
	assert.ErrorAs(t, outcome.Cause(), &timeoutErr)
}

func TestSource_DuplicateLoadOneBackendCall(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, batchKey any, itemKeys []any) (map[any]any, error) {
		calls++
		out := make(map[any]any, len(itemKeys))
		for _, k := range itemKeys {
			out[k] = k
		}
		return out, nil
	}
	src := kvsource.New(fetch, kvsource.DefaultOptions())
	bk, ik := batchloader.NewKey("u"), batchloader.NewKey(1)
	src.Load(bk, ik)
	src.Load(bk, ik) // duplicate within the same pending window

	require.NoError(t, src.Run(context.Background(), time.Second))
	assert.Equal(t, 1, calls)
}

func TestSource_DiscardsUnrequestedKeys(t *testing.T) {
	// open question ii: extra keys in the callback's response are
	// discarded rather than surfacing as unexpected outcomes.
	fetch := func(ctx context.Context, batchKey any, itemKeys []any) (map[any]any, error) {
		return map[any]any{1: "one", 999: "nobody asked"}, nil
	}
	src := kvsource.New(fetch, kvsource.DefaultOptions())
	bk, ik := batchloader.NewKey("u"), batchloader.NewKey(1)
	src.Load(bk, ik)
	require.NoError(t, src.Run(context.Background(), time.Second))

	_, present := src.Fetch(bk, batchloader.NewKey(999))
	assert.False(t, present)
}

func TestSource_Prime(t *testing.T) {
	src := kvsource.New(func(ctx context.Context, batchKey any, itemKeys []any) (map[any]any, error) {
		t.Fatal("fetch should not be called for a primed key")
		return nil, nil
	}, kvsource.DefaultOptions())

	bk, ik := batchloader.NewKey("u"), batchloader.NewKey(1)
	src.Prime(bk, ik, "preloaded")

	outcome, present := src.Fetch(bk, ik)
	require.True(t, present)
	assert.Equal(t, "preloaded", outcome.Value())

	// Priming an already-resolved pair must not overwrite it.
	src.Prime(bk, ik, "overwritten?")
	outcome, _ = src.Fetch(bk, ik)
	assert.Equal(t, "preloaded", outcome.Value())
}

func TestSource_PrimeSurvivesSiblingRunUnderSameBatchKey(t *testing.T) {
	src := kvsource.New(func(ctx context.Context, batchKey any, itemKeys []any) (map[any]any, error) {
		out := make(map[any]any, len(itemKeys))
		for _, k := range itemKeys {
			out[k] = k
		}
		return out, nil
	}, kvsource.DefaultOptions())

	bk := batchloader.NewKey("u")
	primed, loaded := batchloader.NewKey(1), batchloader.NewKey(2)
	src.Prime(bk, primed, "preloaded")

	src.Load(bk, loaded)
	require.NoError(t, src.Run(context.Background(), time.Second))

	// Running a sibling item under the same batch key must not wipe the
	// primed entry.
	outcome, present := src.Fetch(bk, primed)
	require.True(t, present)
	assert.Equal(t, "preloaded", outcome.Value())

	outcome, present = src.Fetch(bk, loaded)
	require.True(t, present)
	assert.Equal(t, 2, outcome.Value())
}
