package routine

import "errors"

var (
	// ErrRoutineNotFound is returned when a routine does not exist.
	ErrRoutineNotFound = errors.New("routine not found")

	// ErrInvalidRoutine is returned when routine fields fail validation.
	ErrInvalidRoutine = errors.New("invalid routine")

	// ErrInvalidExercise is returned when exercise fields fail validation.
	ErrInvalidExercise = errors.New("invalid exercise")
)
