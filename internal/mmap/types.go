package mmap

import "errors"

var (
	// ErrClosed is returned when operating on a closed reservation.
	ErrClosed = errors.New("mmap: reservation closed")
	// ErrOutOfBounds is returned when a range is outside the reservation.
	ErrOutOfBounds = errors.New("mmap: range out of bounds")
	// ErrInvalidSize is returned for non-positive reservation sizes.
	ErrInvalidSize = errors.New("mmap: invalid size")
	// ErrUnsupported is returned on platforms without reservation support.
	ErrUnsupported = errors.New("mmap: reservations not supported on this platform")
)
