package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the remote side refused the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrPersistence wraps any failed transactional write.
	ErrPersistence = errors.New("persistence failure")
	// ErrUnavailable indicates a remote dependency could not be reached.
	ErrUnavailable = errors.New("remote unavailable")
	// ErrInvalidInput indicates malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
)
