package batchloader_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nasnet-community/batchloader"
)

func TestErrors_UnwrapChains(t *testing.T) {
	cause := errors.New("root cause")

	backend := &batchloader.BackendError{Cause: cause}
	assert.ErrorIs(t, backend, cause)

	badID := &batchloader.BadIDError{Entity: "users", Raw: "x", Cause: cause}
	assert.ErrorIs(t, badID, cause)

	get := &batchloader.GetError{Source: "kv", Cause: backend}
	assert.ErrorIs(t, get, cause)
	var asBackend *batchloader.BackendError
	assert.ErrorAs(t, get, &asBackend)
}

func TestErrors_Category(t *testing.T) {
	var callerErrs = []batchloader.CategorizedError{
		&batchloader.ConfigurationError{Option: "timeout", Reason: "bad"},
		&batchloader.UnknownSourceError{Name: "x"},
		&batchloader.UnrunBatchError{Source: "x"},
	}
	for _, e := range callerErrs {
		assert.Equal(t, batchloader.CategoryCaller, e.Category())
	}

	var batchErrs = []batchloader.CategorizedError{
		&batchloader.BadIDError{Entity: "x"},
		&batchloader.MultipleResultsError{Entity: "x"},
		&batchloader.ProtocolViolationError{Entity: "x"},
		&batchloader.BackendError{Cause: errors.New("x")},
		&batchloader.TimeoutError{Source: "x"},
		&batchloader.GetError{Source: "x"},
	}
	for _, e := range batchErrs {
		assert.Equal(t, batchloader.CategoryBatch, e.Category())
	}
}

func TestErrors_MessagesNameTheirSubject(t *testing.T) {
	assert.Contains(t, (&batchloader.UnknownSourceError{Name: "comments"}).Error(), "comments")
	assert.Contains(t, (&batchloader.ConfigurationError{Option: "timeout", Reason: "must not be negative"}).Error(), "timeout")
	assert.Contains(t, (&batchloader.MultipleResultsError{Entity: "users", Count: 3}).Error(), "3")
	assert.Contains(t, (&batchloader.ProtocolViolationError{Entity: "posts", Expected: 2, Got: 1}).Error(), "posts")
}
