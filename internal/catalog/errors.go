package catalog

import (
	"errors"
	"fmt"
)

// ErrInvalidToken is returned when a call is made without an access token
var ErrInvalidToken = errors.New("access token is missing")

// AuthError reports a failed credential exchange
type AuthError struct {
	Err error
}

// Error implements the error interface
func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

// Unwrap returns the underlying error
func (e *AuthError) Unwrap() error {
	return e.Err
}

// FetchError reports a failure to list the entities of a blueprint
type FetchError struct {
	Blueprint string
	Err       error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch entities of blueprint %q: %v", e.Blueprint, e.Err)
}

// Unwrap returns the underlying error
func (e *FetchError) Unwrap() error {
	return e.Err
}

// UpdateError reports a failure to patch one entity
type UpdateError struct {
	Blueprint string
	EntityID  string
	Err       error
}

// Error implements the error interface
func (e *UpdateError) Error() string {
	return fmt.Sprintf("failed to update entity %q of blueprint %q: %v", e.EntityID, e.Blueprint, e.Err)
}

// Unwrap returns the underlying error
func (e *UpdateError) Unwrap() error {
	return e.Err
}
