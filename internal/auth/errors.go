package auth

import "errors"

var (
	ErrInvalidToken   = errors.New("auth: invalid token")
	ErrMissingSecret  = errors.New("auth: secret is not configured")
	ErrUnauthorized   = errors.New("auth: unauthorized")
	ErrInvalidSubject = errors.New("auth: subject is required")
)
