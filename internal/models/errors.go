package models

import "errors"

// Application-wide standard errors
var (
	// Repository level
	ErrNotFound       = errors.New("resource not found")
	ErrConcurrentTurn = errors.New("session was advanced by a concurrent turn")
	ErrInvalidHistory = errors.New("session history does not end at the current block")

	// Narrative engine
	ErrSessionNotFound  = errors.New("session not found")
	ErrBlockNotFound    = errors.New("story block not found")
	ErrGenerationFailed = errors.New("story generation failed")
	ErrInvalidChoice    = errors.New("choice is not one of the current block options")
	ErrSessionBusy      = errors.New("session is busy with another turn")
	ErrInvalidBlock     = errors.New("generated block is invalid")
)
