package queue

import "errors"

var (
	// ErrClosed is returned when publishing to a closed queue
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned when the in-memory topic buffer is full
	ErrFull = errors.New("queue full")
)
