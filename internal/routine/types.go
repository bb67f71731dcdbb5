package routine

import "time"

// Routine is a named workout plan made of ordered exercises.
type Routine struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Frequency   string     `json:"frequency,omitempty"` // free text, e.g. "3x per week"
	CreatedAt   time.Time  `json:"created_at"`
	Exercises   []Exercise `json:"exercises,omitempty"`
}

// Exercise is one line of a routine.
type Exercise struct {
	ID        string `json:"id"`
	RoutineID string `json:"routine_id"`
	Name      string `json:"name"`
	Sets      int    `json:"sets"`
	Reps      string `json:"reps"` // "8-12", "to failure"
	Weight    string `json:"weight,omitempty"`
	Notes     string `json:"notes,omitempty"`
	Position  int    `json:"position"`
}
