package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation error")
	ErrTemplateNotFound = errors.New("template not found")
	ErrLockLost         = errors.New("lock no longer owned")
)
