package locindex

import (
	"errors"
	"fmt"
)

// StateError is returned when an operation is not allowed in the index's
// current lifecycle state, e.g. a query before Build/Load or after Close.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("location index: %s not allowed in state %s", e.Op, e.State)
}

// FormatError is returned by Load when the persisted layout does not match
// what this build expects (magic, version, header, checksum or structure).
// The index must be rebuilt.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("location index %s: invalid format: %s", e.Path, e.Reason)
}

// MissingDataError is returned by Load when the backing file is absent or
// truncated. The index must be rebuilt.
type MissingDataError struct {
	Path string
	Err  error
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("location index %s: missing data: %v", e.Path, e.Err)
}

func (e *MissingDataError) Unwrap() error { return e.Err }

// ConfigError reports invalid construction parameters.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("location index config: %s %s", e.Field, e.Reason)
}

// IsStateError reports whether err is or wraps a *StateError.
func IsStateError(err error) bool {
	var target *StateError
	return errors.As(err, &target)
}

// IsFormatError reports whether err is or wraps a *FormatError.
func IsFormatError(err error) bool {
	var target *FormatError
	return errors.As(err, &target)
}

// IsMissingDataError reports whether err is or wraps a *MissingDataError.
func IsMissingDataError(err error) bool {
	var target *MissingDataError
	return errors.As(err, &target)
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// NeedsRebuild reports whether a Load error means the persisted index is
// unusable and should be rebuilt from the graph.
func NeedsRebuild(err error) bool {
	return IsFormatError(err) || IsMissingDataError(err)
}
