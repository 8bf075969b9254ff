package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrInvalidFeedback is returned when a feedback value cannot be stored.
var ErrInvalidFeedback = errors.New("storage: invalid feedback")
