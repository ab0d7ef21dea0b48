package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyContent is returned when there is no text to index.
	ErrEmptyContent = errors.New("content is empty")

	// ErrNotFound is returned for operations on unknown ids.
	ErrNotFound = errors.New("not found")

	// ErrEmbedding wraps failures of the embedding provider.
	ErrEmbedding = errors.New("embedding failed")

	// ErrConfiguration is returned for invalid construction parameters.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrDimensionMismatch matches DimensionError via errors.Is.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// DimensionError reports a vector whose length does not match the index.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Want, e.Got)
}

func (e *DimensionError) Is(target error) bool {
	return target == ErrDimensionMismatch
}
