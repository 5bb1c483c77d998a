package models

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrExternalStore wraps every failure of the backing database.
	ErrExternalStore = errors.New("external store failure")
	// ErrConflict is returned for unique constraint violations.
	ErrConflict = errors.New("already exists")
)
