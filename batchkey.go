package batchloader

import (
	"encoding/json"
	"fmt"
)

// Key is a value-equal, hashable identity used for both batch keys and item
// keys. Two Keys built from structurally equal values always
// compare equal, regardless of how many times or in what order their
// components were constructed — the canonicalisation pass calls for,
// rather than relying on Go's identity/pointer equality.
//
// Keys are immutable after construction and safe for concurrent use.
type Key struct {
	raw  any
	hash string
}

// NewKey canonicalises v into a Key. v is typically a scalar, a tagged
// struct (see relsource's batch-key constructors), or a single-entry map.
// Canonicalisation falls back to a Go-syntax representation for values that
// cannot be JSON-encoded (e.g. containing a function or channel); such
// values still hash deterministically but two NewKey calls are only
// guaranteed equal if the value is comparable via reflect.DeepEqual.
func NewKey(v any) Key {
	return Key{raw: v, hash: canonHash(v)}
}

// Raw returns the original value passed to NewKey.
func (k Key) Raw() any { return k.raw }

// String returns the canonical hash used for equality and for display in
// error messages. It is stable across processes for the same logical value.
func (k Key) String() string { return k.hash }

// Equal reports whether two keys were constructed from value-equal data.
func (k Key) Equal(other Key) bool { return k.hash == other.hash }

func canonHash(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T:%#v", v, v)
	}
	return fmt.Sprintf("%T:%s", v, b)
}
