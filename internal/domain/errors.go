package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedLanguage = errors.New("unsupported spelling language")
	ErrUnsupportedFormat   = errors.New("unsupported document format")
	ErrEngineUnavailable   = errors.New("comparison engine unavailable")
	ErrNotInspected        = errors.New("job not inspected yet")
)
