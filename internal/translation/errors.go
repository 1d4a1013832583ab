// internal/translation/errors.go

// Package translation turns a user request into a streamed model
// translation and keeps the job and its conversation in the database.
package translation

import "errors"

var (
	// ErrConfiguration is returned before any model call when the provider
	// cannot be used.
	ErrConfiguration = errors.New("translation provider is not configured")

	// ErrUpstream covers model call and stream read failures.
	ErrUpstream = errors.New("translation provider failed")

	// ErrPersistence means the translation finished but was not saved.
	ErrPersistence = errors.New("failed to save translation")

	ErrJobNotFound  = errors.New("translation job not found")
	ErrInvalidInput = errors.New("invalid translation request")

	// ErrInvalidOutput is returned when structured output does not match
	// the shape of the input document.
	ErrInvalidOutput = errors.New("model output does not match the input shape")
)
