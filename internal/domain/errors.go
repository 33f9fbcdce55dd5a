package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("already exists")
	ErrTransient      = errors.New("temporarily unavailable")
	ErrInvalidArticle = errors.New("article must contain digits only")
)
