package exam

import "errors"

var (
	ErrInvalidValue         = errors.New("invalid value")
	ErrUnknownField         = errors.New("unknown field")
	ErrSessionNotFound      = errors.New("session not found")
	ErrConfirmationRequired = errors.New("reset requires explicit confirmation")
)
