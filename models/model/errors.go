package model

import "github.com/pkg/errors"

var (
	// ErrShapeMismatch is returned when the network output tensors do not have the
	// (1,1,H,W) score and (1,5,H,W) geometry layout. It points at a model or engine
	// integration bug and is never retryable.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidConfiguration is returned when caller supplied parameters are out of range.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
