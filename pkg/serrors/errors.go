package serrors

import (
	"errors"
	"fmt"
)

// Category classifies an error the way callers are expected to map it:
// authorization is always checked before any data is read, validation before
// any mutation, conflicts inside the mutating transaction.
type Category string

const (
	CategoryAuthorization Category = "authorization"
	CategoryValidation    Category = "validation"
	CategoryConflict      Category = "conflict"
	CategoryNotFound      Category = "not_found"
	CategoryInternal      Category = "internal"
)

type BaseError struct {
	Code     string
	Message  string
	Category Category
}

func (e *BaseError) Error() string {
	return e.Message
}

func NewError(code, message string, category Category) *BaseError {
	return &BaseError{Code: code, Message: message, Category: category}
}

// NewAuthorizationError uses the same generic message pattern for every
// missing-role failure so clients cannot probe for entity existence through
// error-message differences.
func NewAuthorizationError(role string) *BaseError {
	return NewError("ACCESS_DENIED", fmt.Sprintf("%s access required", role), CategoryAuthorization)
}

func NewValidationError(code, message string) *BaseError {
	return NewError(code, message, CategoryValidation)
}

func NewFieldRequiredError(field string) *BaseError {
	return NewError("FIELD_REQUIRED", fmt.Sprintf("%s is required", field), CategoryValidation)
}

func NewConflictError(code, message string) *BaseError {
	return NewError(code, message, CategoryConflict)
}

func NewNotFoundError(code, message string) *BaseError {
	return NewError(code, message, CategoryNotFound)
}

func NewInternalError(code, message string) *BaseError {
	return NewError(code, message, CategoryInternal)
}

// CategoryOf returns the error's category, or CategoryInternal for errors
// that did not originate in this package.
func CategoryOf(err error) Category {
	var be *BaseError
	if errors.As(err, &be) {
		return be.Category
	}
	return CategoryInternal
}

func IsConflict(err error) bool {
	return CategoryOf(err) == CategoryConflict
}

func IsNotFound(err error) bool {
	return CategoryOf(err) == CategoryNotFound
}

func IsValidation(err error) bool {
	return CategoryOf(err) == CategoryValidation
}

func IsAuthorization(err error) bool {
	return CategoryOf(err) == CategoryAuthorization
}
