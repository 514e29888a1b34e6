// Package service provides business logic services for Athenaeum.
package service

import "errors"

// Common service errors.
var (
	// Validation errors
	ErrInvalidTitle  = errors.New("invalid title: must be 1-128 characters")
	ErrInvalidAuthor = errors.New("invalid author: must be 1-128 characters")
	ErrInvalidName   = errors.New("invalid name: must be 1-128 characters")
	ErrInvalidEmail  = errors.New("invalid email format")
	ErrInvalidYear   = errors.New("invalid publication year")

	// General errors
	ErrInternalError = errors.New("internal server error")
)
