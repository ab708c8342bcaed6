package store

import "errors"

var (
	// ErrDuplicate is returned when inserting a record whose (user_id, date) already exists.
	ErrDuplicate = errors.New("workday record already exists")
	// ErrStale is returned when a conditional update finds a newer revision.
	ErrStale = errors.New("workday record changed concurrently")
)
