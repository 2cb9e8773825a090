package batchloader_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasnet-community/batchloader"
	"github.com/nasnet-community/batchloader/kvsource"
)

func TestEventBus_RunStopCarriesOutcomeCounts(t *testing.T) {
	l, err := batchloader.New()
	require.NoError(t, err)
	defer l.Close()

	fetch := func(ctx context.Context, batchKey any, itemKeys []any) (map[any]any, error) {
		return map[any]any{1: "found"}, nil
	}
	l.AddSource("kv", kvsource.New(fetch, kvsource.DefaultOptions()))

	received := make(chan []byte, 1)
	require.NoError(t, l.Events().Subscribe(context.Background(), batchloader.TopicRunStop,
		func(ctx context.Context, topic string, payload []byte) {
			received <- payload
		}))

	require.NoError(t, l.Load("kv", batchloader.NewKey("users"), batchloader.NewKey(1)))
	require.NoError(t, l.Load("kv", batchloader.NewKey("users"), batchloader.NewKey(2)))
	require.NoError(t, l.Run(context.Background()))

	select {
	case payload := <-received:
		var evt batchloader.RunStopEvent
		require.NoError(t, json.Unmarshal(payload, &evt))
		assert.Equal(t, "kv", evt.SourceName)
		assert.Equal(t, 1, evt.Outcomes.OK)
		assert.Equal(t, 1, evt.Outcomes.NotFound)
	case <-time.After(time.Second):
		t.Fatal("expected run.stop event")
	}
}

func TestEventBus_NilBusIsNoop(t *testing.T) {
	var bus *batchloader.EventBus
	assert.NotPanics(t, func() {
		bus.Close()
	})
}
