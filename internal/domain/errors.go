package domain

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidGranularity    = errors.New("invalid granularity")
	ErrNotFound              = errors.New("not found")
	ErrSessionNotCompletable = errors.New("session cannot be completed")
)
