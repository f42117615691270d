package domain

import (
	"errors"
	"fmt"
)

// InputError reports a request that cannot even be turned into an ImageReference.
type InputError struct {
	Field   string
	Message string
	Err     error
}

func (e *InputError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("invalid input: %s: %v", msg, e.Err)
	}
	return "invalid input: " + msg
}

func (e *InputError) Unwrap() error { return e.Err }

// FetchError reports an image that could not be retrieved or decoded.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("fetch image: %v", e.Err)
	}
	return fmt.Sprintf("fetch image %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Temporary is true when the underlying failure is worth another attempt.
func (e *FetchError) Temporary() bool {
	return isTemporary(e.Err)
}

// ModelErrorReason classifies a failed model call.
type ModelErrorReason string

const (
	ModelErrorCancelled ModelErrorReason = "cancelled"
	ModelErrorTimeout   ModelErrorReason = "timeout"
	ModelErrorUpstream  ModelErrorReason = "upstream"
	ModelErrorMalformed ModelErrorReason = "malformed"
)

// ModelError reports a model call that failed, timed out, was cancelled, or
// answered with something that is not the expected structure.
type ModelError struct {
	Reason ModelErrorReason
	Model  string
	Err    error
}

func (e *ModelError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("model call %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("model %s call %s: %v", e.Model, e.Reason, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// Temporary is true for timeouts and for upstream failures the provider marked
// as retryable. Cancellation and malformed output never are.
func (e *ModelError) Temporary() bool {
	switch e.Reason {
	case ModelErrorTimeout:
		return true
	case ModelErrorUpstream:
		return isTemporary(e.Err)
	default:
		return false
	}
}

func isTemporary(err error) bool {
	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
