package service

import "errors"

var (
	// ErrToolNotFound is returned when the catalog has no tool with the requested ID
	ErrToolNotFound = errors.New("tool not found")

	// ErrRunInProgress is returned when a tool already has an unfinished run
	ErrRunInProgress = errors.New("run already in progress")

	// ErrClosed is returned once the service has been shut down
	ErrClosed = errors.New("run service closed")
)
