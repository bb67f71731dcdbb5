package routine

import (
	"fmt"
	"strings"
)

const (
	maxNameLength = 100
	maxSets       = 100
)

// ValidateRoutine checks a routine before it is stored.
func ValidateRoutine(r *Routine) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRoutine)
	}
	if len(r.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidRoutine, maxNameLength)
	}
	return nil
}

// ValidateExercise checks an exercise before it is stored.
func ValidateExercise(e *Exercise) error {
	e.Name = strings.TrimSpace(e.Name)
	e.Reps = strings.TrimSpace(e.Reps)

	if e.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidExercise)
	}
	if len(e.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidExercise, maxNameLength)
	}
	if e.Sets < 1 || e.Sets > maxSets {
		return fmt.Errorf("%w: sets must be between 1 and %d", ErrInvalidExercise, maxSets)
	}
	if e.Reps == "" {
		return fmt.Errorf("%w: reps is required", ErrInvalidExercise)
	}
	return nil
}
