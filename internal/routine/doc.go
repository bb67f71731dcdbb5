// Package routine stores workout routines and their exercises.
//
// Who may read a routine is decided by auth.Gate against the
// user_routines assignment table; this package only stores content.
// Deleting a routine removes its exercises and every assignment.
package routine
