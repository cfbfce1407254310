package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound      = errors.New("rating not found")
	ErrAlreadyExists = errors.New("rating already exists")
	ErrConflict      = errors.New("rating changed concurrently")
)
