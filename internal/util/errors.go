package util

import "errors"

// Sentinel errors shared across packages
var (
	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnauthorized indicates a provider rejected our credentials
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnsupported indicates a source format or operation is not supported
	ErrUnsupported = errors.New("unsupported")
)
