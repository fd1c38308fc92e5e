package backend

import "errors"

var (
	// ErrStatus marks a failed status poll (transport, non-2xx, or decode).
	ErrStatus = errors.New("task status request failed")
	// ErrSubmission marks a rejected or unreadable submission.
	ErrSubmission = errors.New("task submission failed")
)
