package storage

import "errors"

// Common storage errors
var (
	ErrNotFound    = errors.New("not found")
	ErrEmptyKey    = errors.New("empty key")
	ErrNegativeTTL = errors.New("negative ttl")
)
