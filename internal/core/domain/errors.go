package domain

import "errors"

var (
	// ErrInvalidCoordinate is returned when a latitude or longitude is out of range.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrInvalidBounds is returned for inverted or out-of-range bounding boxes.
	ErrInvalidBounds = errors.New("invalid bounds")

	// ErrUnsupportedCapability is returned when a position source is unavailable.
	// Callers should disable follow controls rather than retry.
	ErrUnsupportedCapability = errors.New("unsupported capability")

	// ErrNotFound is returned by repositories for missing records.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned for malformed requests such as a negative zoom.
	ErrInvalidArgument = errors.New("invalid argument")
)
