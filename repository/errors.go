package repository

import "errors"

// Sentinel errors surfaced to the handler boundary, checked with errors.Is.
var (
	ErrDuplicateUser = errors.New("user with this email already exists")
	ErrTrackNotFound = errors.New("track not found")
)
