package ggfx

import (
	"errors"

	"github.com/gogpu/ggfx/internal/filter"
)

// Validation errors. They are returned before any GPU work is recorded.
var (
	// ErrRadiusOutOfRange is returned by Blur for a radius outside
	// [MinBlurRadius, MaxBlurRadius] or NaN.
	ErrRadiusOutOfRange = filter.ErrRadiusOutOfRange

	// ErrOutputIndex is returned for an output slot outside [0, OutputCount).
	ErrOutputIndex = errors.New("ggfx: output index out of range")

	// ErrOutputCount is returned by Configure when outputCount < 1.
	ErrOutputCount = errors.New("ggfx: output count must be at least 1")

	// ErrDimensionMismatch is returned when a host buffer does not match
	// the configured image size.
	ErrDimensionMismatch = errors.New("ggfx: image dimensions do not match")
)

// State errors.
var (
	// ErrNotConfigured is returned by effects and outputs before Configure.
	ErrNotConfigured = errors.New("ggfx: processor not configured")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("ggfx: processor closed")
)
