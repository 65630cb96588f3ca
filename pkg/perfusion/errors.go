package perfusion

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig matches every *ConfigError via errors.Is.
	ErrConfig = errors.New("invalid configuration")

	// ErrShape matches every *ShapeError via errors.Is.
	ErrShape = errors.New("shape mismatch")
)

// ConfigError reports a parameter that makes the case impossible to
// process. It is raised before any voxel is touched.
type ConfigError struct {
	Param  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// ShapeError reports inputs whose dimensions are inconsistent.
type ShapeError struct {
	Reason string
}

func (e *ShapeError) Error() string {
	return "shape mismatch: " + e.Reason
}

func (e *ShapeError) Is(target error) bool {
	return target == ErrShape
}

func configErrorf(param, format string, args ...any) error {
	return &ConfigError{Param: param, Reason: fmt.Sprintf(format, args...)}
}
