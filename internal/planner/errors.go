package planner

import "errors"

var (
	// ErrInvalidInput marks a caller contract violation.
	ErrInvalidInput = errors.New("invalid schedule input")
	// ErrOverlappingEvents is returned when two fixed events intersect.
	ErrOverlappingEvents = errors.New("overlapping calendar events")
	// ErrInternal marks a broken schedule produced by the sweep itself.
	ErrInternal = errors.New("schedule generator defect")
)
