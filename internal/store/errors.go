package store

import "errors"

var (
	ErrNotFound        = errors.New("road not found")
	ErrNameMissing     = errors.New("Name is missing")
	ErrVersionConflict = errors.New("Version conflict")
	ErrUserNotFound    = errors.New("user not found")
)
