package batchloader_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nasnet-community/batchloader"
)

func TestKey_ValueEqualityAcrossReconstruction(t *testing.T) {
	type compound struct {
		Entity string
		Params map[string]any
	}
	a := batchloader.NewKey(compound{Entity: "User", Params: map[string]any{"limit": 10}})
	b := batchloader.NewKey(compound{Entity: "User", Params: map[string]any{"limit": 10}})
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.String(), b.String())
}

func TestKey_DiffersOnRecognisedOption(t *testing.T) {
	type compound struct {
		Entity string
		Params map[string]any
	}
	a := batchloader.NewKey(compound{Entity: "Comment", Params: map[string]any{"limit": 10}})
	b := batchloader.NewKey(compound{Entity: "Comment", Params: map[string]any{"limit": 20}})
	assert.False(t, a.Equal(b))
}

func TestKey_ScalarEquality(t *testing.T) {
	assert.True(t, batchloader.NewKey(1).Equal(batchloader.NewKey(1)))
	assert.False(t, batchloader.NewKey(1).Equal(batchloader.NewKey(2)))
	assert.False(t, batchloader.NewKey("1").Equal(batchloader.NewKey(1)))
}

func TestKey_RawPreservesOriginalValue(t *testing.T) {
	k := batchloader.NewKey(map[string]any{"role": "admin"})
	raw, ok := k.Raw().(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "admin", raw["role"])
}
