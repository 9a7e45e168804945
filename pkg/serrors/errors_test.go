package serrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CategoryConflict, CategoryOf(NewConflictError("X", "x")))
	assert.Equal(t, CategoryNotFound, CategoryOf(NewNotFoundError("X", "x")))
	assert.Equal(t, CategoryInternal, CategoryOf(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", NewValidationError("X", "x"))
	assert.Equal(t, CategoryValidation, CategoryOf(wrapped))
	assert.True(t, IsValidation(wrapped))
}

func TestNewAuthorizationError_GenericMessage(t *testing.T) {
	t.Parallel()

	err := NewAuthorizationError("Admin")
	assert.Equal(t, "Admin access required", err.Error())
	assert.True(t, IsAuthorization(err))
}
