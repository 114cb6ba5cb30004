package core

import (
	"errors"
	"fmt"
)

// Error kinds. Detail is added by wrapping, so callers match with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrListNotFound = errors.New("list not found")
	ErrItemNotFound = errors.New("item not found")
	ErrOverBudget   = errors.New("over budget")
	ErrUnauthorized = errors.New("unauthorized")
	ErrEmailTaken   = errors.New("email already registered")
	ErrUserNotFound = errors.New("user not found")

	ErrInvalidAmount   = fmt.Errorf("%w: invalid amount", ErrInvalidInput)
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidInput, MaxQuantity)
	ErrEmptyName       = fmt.Errorf("%w: name is required", ErrInvalidInput)
	ErrNameTooLong     = fmt.Errorf("%w: name too long (max %d characters)", ErrInvalidInput, maxNameLength)
	ErrEmptyPatch      = fmt.Errorf("%w: no fields to update", ErrInvalidInput)
)
