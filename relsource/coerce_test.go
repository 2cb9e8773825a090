package relsource_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasnet-community/batchloader"
	"github.com/nasnet-community/batchloader/relsource"
)

func TestCoercePrimaryKey_Int(t *testing.T) {
	v, err := relsource.CoercePrimaryKey("users", relsource.PKInt, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = relsource.CoercePrimaryKey("users", relsource.PKInt, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = relsource.CoercePrimaryKey("users", relsource.PKInt, "not-a-number")
	var badID *batchloader.BadIDError
	assert.ErrorAs(t, err, &badID)
}

func TestCoercePrimaryKey_UUID(t *testing.T) {
	id := uuid.New()
	v, err := relsource.CoercePrimaryKey("accounts", relsource.PKUUID, id.String())
	require.NoError(t, err)
	assert.Equal(t, id, v)

	_, err = relsource.CoercePrimaryKey("accounts", relsource.PKUUID, "not-a-uuid")
	var badID *batchloader.BadIDError
	assert.ErrorAs(t, err, &badID)
}

func TestCoercePrimaryKey_Binary(t *testing.T) {
	id := ulid.Make()
	v, err := relsource.CoercePrimaryKey("events", relsource.PKBinary, id.String())
	require.NoError(t, err)
	assert.Equal(t, id, v)

	_, err = relsource.CoercePrimaryKey("events", relsource.PKBinary, 12345)
	var badID *batchloader.BadIDError
	assert.ErrorAs(t, err, &badID)
}
