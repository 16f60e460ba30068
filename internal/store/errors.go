package store

import "errors"

var (
	// ErrNotFound is returned when a contact or message does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when creating a contact that was already
	// created explicitly.
	ErrConflict = errors.New("store: already exists")
	// ErrUnknownFlag is returned by ParseFlag for unsupported toggles.
	ErrUnknownFlag = errors.New("store: unknown flag")
)
