package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelWrappingPreservesType(t *testing.T) {
	err := Wrap(ErrNotFound, "plan lookup")
	assert.True(t, IsNotFoundError(err))
	assert.False(t, IsConflictError(err))

	err = Wrapf(ErrConflict, "execution %s", "APE_1")
	assert.True(t, IsConflictError(err))
	assert.False(t, IsNotFoundError(err))
}

func TestFormattedConstructors(t *testing.T) {
	err := NewNotFoundError("no action plan exists for id: %s", "abc")
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "no action plan exists for id: abc")

	err = NewInvalidRequestError("name must not be empty")
	assert.True(t, IsInvalidRequestError(err))

	err = NewConflictError("all items must be checked")
	assert.True(t, IsConflictError(err))
	assert.Contains(t, err.Error(), "all items must be checked")
}

func TestNilChecks(t *testing.T) {
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsInvalidRequestError(nil))
	assert.False(t, IsConflictError(nil))
	assert.False(t, IsUnauthorizedError(nil))
	assert.False(t, IsForbiddenError(nil))
}
