package xlog

import "errors"

var (
	ErrInvalidLevel    = errors.New("xlog: invalid level")
	ErrInvalidFormat   = errors.New("xlog: invalid format")
	ErrNilOutput       = errors.New("xlog: output is nil")
	ErrEmptyFilename   = errors.New("xlog: rotation filename is empty")
	ErrInvalidRotation = errors.New("xlog: invalid rotation config")
	ErrNoCleanupPolicy = errors.New("xlog: max backups and max age cannot both be 0")
)
