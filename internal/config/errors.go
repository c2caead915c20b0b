package config

import (
	"errors"
	"fmt"

	"github.com/dshills/stormwm/internal/config/loader"
)

// Errors returned by configuration operations.
var (
	// ErrUnknownSetting indicates a key no setting is declared for.
	ErrUnknownSetting = errors.New("unknown setting")

	// ErrTypeMismatch indicates a value of the wrong type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrValidationFailed indicates a value outside its allowed range.
	ErrValidationFailed = errors.New("validation failed")

	// ErrIncludeDepthExceeded indicates too many nested @include
	// directives, or an include cycle.
	ErrIncludeDepthExceeded = loader.ErrIncludeDepth
)

// ParseError reports a configuration file that could not be decoded.
type ParseError = loader.ParseError

// ValidationError describes a setting with an invalid value.
type ValidationError struct {
	// Path is the dotted setting path, such as "display.refresh_rate".
	Path    string
	Message string
	Value   any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (value: %v)", e.Path, e.Message, e.Value)
}

// Is matches ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
