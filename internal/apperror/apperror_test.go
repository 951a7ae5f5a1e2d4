package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewErrorMessage(t *testing.T) {
	err := New(KindConfiguration, "missing organization id")
	assert.Equal(t, "configuration: missing organization id", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrapErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindDownstream, "failed to reach warehouse", cause)
	assert.Equal(t, "downstream: failed to reach warehouse: connection refused", err.Error())
	assert.Equal(t, cause, err.Unwrap())
}

func TestKindOfReturnsWrappedKind(t *testing.T) {
	err := New(KindUnauthorized, "tenant mismatch")
	assert.Equal(t, KindUnauthorized, KindOf(err))
}

func TestKindOfThroughWrappedError(t *testing.T) {
	inner := New(KindDataShape, "expected exactly one row")
	outer := fmt.Errorf("running query: %w", inner)
	assert.Equal(t, KindDataShape, KindOf(outer))
}

func TestKindOfDefaultsToInternalForPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestKindOfNilError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(nil))
}
