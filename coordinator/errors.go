package coordinator

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMissingFilePath = errors.New("file path is required")
	// ErrStaleResponse marks a completion that arrived after a newer request
	// had already been applied. Nothing from it reaches the conversation.
	ErrStaleResponse = errors.New("stale response discarded")
)

// RequestError wraps a failure of the assistant call itself.
type RequestError struct {
	Kind Kind
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
