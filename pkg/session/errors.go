package session

import "errors"

var (
	// ErrNotFound is returned for an unknown or reaped session ID.
	ErrNotFound = errors.New("session not found")

	// ErrNoDataset is returned when a question arrives before any dataset
	// was loaded into the session.
	ErrNoDataset = errors.New("no dataset loaded")

	// ErrTooManySessions is returned by Create when the limit is reached.
	ErrTooManySessions = errors.New("too many sessions")

	// ErrInvalidFilename is returned by UploadPath for names that do not
	// denote a plain file.
	ErrInvalidFilename = errors.New("invalid filename")
)
