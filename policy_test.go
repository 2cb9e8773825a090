package batchloader_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nasnet-community/batchloader"
	"github.com/nasnet-community/batchloader/kvsource"
)

func TestPolicy_ReturnNilOnErrorLogsOnce(t *testing.T) {
	fetch := func(ctx context.Context, batchKey any, itemKeys []any) (map[any]any, error) {
		return nil, errors.New("backend exploded")
	}

	var buf bytes.Buffer
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(&buf), zapcore.ErrorLevel)
	logger := zap.New(core)

	l, err := batchloader.New(batchloader.WithGetPolicy(batchloader.ReturnNilOnError))
	require.NoError(t, err)
	defer l.Close()
	l.WithLogger(logger)
	l.AddSource("kv", kvsource.New(fetch, kvsource.DefaultOptions()))

	bk, ik := batchloader.NewKey("users"), batchloader.NewKey(1)
	require.NoError(t, l.Load("kv", bk, ik))
	require.NoError(t, l.Run(context.Background()))

	for i := 0; i < 3; i++ {
		v, err := l.Get(context.Background(), "kv", bk, ik)
		require.NoError(t, err)
		assert.Nil(t, v)
	}

	logged := bytes.Count(buf.Bytes(), []byte("suppressed get error"))
	assert.Equal(t, 1, logged)
}

func TestPolicy_RaiseOnErrorWrapsCause(t *testing.T) {
	backendErr := errors.New("boom")
	fetch := func(ctx context.Context, batchKey any, itemKeys []any) (map[any]any, error) {
		return nil, backendErr
	}
	l, err := batchloader.New()
	require.NoError(t, err)
	defer l.Close()
	l.AddSource("kv", kvsource.New(fetch, kvsource.DefaultOptions()))

	bk, ik := batchloader.NewKey("users"), batchloader.NewKey(1)
	require.NoError(t, l.Load("kv", bk, ik))
	require.NoError(t, l.Run(context.Background()))

	_, err = l.Get(context.Background(), "kv", bk, ik)
	var getErr *batchloader.GetError
	require.ErrorAs(t, err, &getErr)
	assert.ErrorIs(t, getErr, backendErr)
}
