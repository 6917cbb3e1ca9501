package history

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrIndexInconsistent means Commit was asked to update a session the
	// index never created. The commit is rejected rather than recreated.
	ErrIndexInconsistent = errors.New("history index inconsistent")
	ErrEmptyLog          = errors.New("cannot commit an empty message log")
)
