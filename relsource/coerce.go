package relsource

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/nasnet-community/batchloader"
)

// CoercePrimaryKey coerces a caller-supplied item key (scalar numeric or
// string) to pkType's native Go representation. Values already in the
// native representation pass through unchanged. A value that cannot be
// coerced fails with *batchloader.BadIDError.
func CoercePrimaryKey(entity string, pkType PKType, raw any) (any, error) {
	switch pkType {
	case PKUUID:
		return coerceUUID(entity, raw)
	case PKBinary:
		return coerceULID(entity, raw)
	default:
		return coerceInt(entity, raw)
	}
}

func coerceInt(entity string, raw any) (any, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, &batchloader.BadIDError{Entity: entity, Raw: raw, Cause: err}
		}
		return n, nil
	default:
		return nil, &batchloader.BadIDError{Entity: entity, Raw: raw, Cause: fmt.Errorf("unsupported type %T for integer primary key", raw)}
	}
}

func coerceUUID(entity string, raw any) (any, error) {
	switch v := raw.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		u, err := uuid.Parse(v)
		if err != nil {
			return nil, &batchloader.BadIDError{Entity: entity, Raw: raw, Cause: err}
		}
		return u, nil
	case [16]byte:
		return uuid.UUID(v), nil
	default:
		return nil, &batchloader.BadIDError{Entity: entity, Raw: raw, Cause: fmt.Errorf("unsupported type %T for uuid primary key", raw)}
	}
}

func coerceULID(entity string, raw any) (any, error) {
	switch v := raw.(type) {
	case ulid.ULID:
		return v, nil
	case string:
		u, err := ulid.Parse(v)
		if err != nil {
			return nil, &batchloader.BadIDError{Entity: entity, Raw: raw, Cause: err}
		}
		return u, nil
	default:
		return nil, &batchloader.BadIDError{Entity: entity, Raw: raw, Cause: fmt.Errorf("unsupported type %T for binary primary key", raw)}
	}
}
