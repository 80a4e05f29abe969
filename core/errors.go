package core

import (
	"errors"
	"fmt"
)

// Sentinel kinds for errors.Is matching. Every typed error below unwraps to
// exactly one of them.
var (
	ErrConfig        = errors.New("configuration error")
	ErrUninitialized = errors.New("not initialized")
	ErrDataQuality   = errors.New("data quality error")
)

// ConfigError reports an invalid parameter or a feature-name mismatch.
type ConfigError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *ConfigError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Actual)
	}
	return fmt.Sprintf("invalid %s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// UninitializedError reports an operation attempted before its prerequisite.
type UninitializedError struct {
	Op       string
	Requires string
}

func (e *UninitializedError) Error() string {
	return fmt.Sprintf("%s: requires %s", e.Op, e.Requires)
}

func (e *UninitializedError) Unwrap() error { return ErrUninitialized }

// DataQualityError reports unusable input data.
type DataQualityError struct {
	Reason string
	Index  int // offending row, -1 when not row-specific
}

func (e *DataQualityError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("data quality: %s (row %d)", e.Reason, e.Index)
	}
	return "data quality: " + e.Reason
}

func (e *DataQualityError) Unwrap() error { return ErrDataQuality }

func configErrorf(field, expected, format string, args ...any) error {
	return &ConfigError{Field: field, Expected: expected, Actual: fmt.Sprintf(format, args...)}
}
