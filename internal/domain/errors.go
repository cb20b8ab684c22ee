package domain

import "errors"

var (
	ErrStoreNotFound     = errors.New("case store snapshot not found")
	ErrStoreCorrupt      = errors.New("case store snapshot corrupt")
	ErrEmbeddingFailure  = errors.New("embedding failed")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrGenerationFailure = errors.New("generation failed")
	ErrInvalidInput      = errors.New("invalid input")
)

// Recoverable reports whether err only degrades retrieval instead of failing a request.
func Recoverable(err error) bool {
	return errors.Is(err, ErrStoreNotFound) ||
		errors.Is(err, ErrStoreCorrupt) ||
		errors.Is(err, ErrEmbeddingFailure)
}
