package http

import "errors"

var (
	// ErrUnauthorized is returned when a request carries no credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when credentials are present but invalid.
	ErrForbidden = errors.New("forbidden")
)
