// Package mmdberrors defines the error kinds raised while reading an MMDB
// file: I/O failures, format violations, platform limits, bad
// construction arguments, bad input, and a missing metadata marker.
package mmdberrors

import (
	"fmt"
	"reflect"
)

// InvalidDatabaseError is returned when the database contains invalid data
// and cannot be parsed. It covers both format violations and I/O
// failures: both mean the current decode operation cannot proceed.
type InvalidDatabaseError struct {
	message string
}

// NewOffsetError reports an out-of-bounds or short read.
func NewOffsetError() InvalidDatabaseError {
	return InvalidDatabaseError{"unexpected end of database"}
}

// NewInvalidDatabaseError reports a format violation such as an
// unrecognized type code or an inconsistent record width.
func NewInvalidDatabaseError(format string, args ...any) InvalidDatabaseError {
	return InvalidDatabaseError{fmt.Sprintf(format, args...)}
}

func (e InvalidDatabaseError) Error() string {
	return e.message
}

// UnsupportedIPVersionError is returned when a database's metadata names
// an ip_version other than 4 or 6.
type UnsupportedIPVersionError struct {
	IPVersion uint
}

func (e UnsupportedIPVersionError) Error() string {
	return fmt.Sprintf("unsupported IP version: %d", e.IPVersion)
}

// MetadataNotFoundError is returned when the metadata marker cannot be
// found within the trailing search window of the file.
type MetadataNotFoundError struct{}

func (MetadataNotFoundError) Error() string {
	return "could not find a MaxMind DB metadata marker in this file"
}

// PlatformLimitError is returned when a decoded integer exceeds the
// native numeric range a caller asked for, such as a uint128 value
// requested as a uint64.
type PlatformLimitError struct {
	message string
}

// NewPlatformLimitError reports a platform-limit condition.
func NewPlatformLimitError(format string, args ...any) PlatformLimitError {
	return PlatformLimitError{fmt.Sprintf(format, args...)}
}

func (e PlatformLimitError) Error() string {
	return e.message
}

// ConfigurationError is returned for invalid construction arguments,
// such as a path that names a directory rather than a database file.
type ConfigurationError struct {
	message string
}

// NewConfigurationError reports an invalid construction argument.
func NewConfigurationError(format string, args ...any) ConfigurationError {
	return ConfigurationError{fmt.Sprintf(format, args...)}
}

func (e ConfigurationError) Error() string {
	return e.message
}

// InputError is returned for caller-supplied input that cannot be
// processed: unparseable IP text, a record index outside {0,1}, or an
// out-of-range node index.
type InputError struct {
	message string
}

// NewInputError reports bad caller input.
func NewInputError(format string, args ...any) InputError {
	return InputError{fmt.Sprintf(format, args...)}
}

func (e InputError) Error() string {
	return e.message
}

// UnmarshalTypeError is returned when the value in the database cannot be
// assigned to the specified data type.
type UnmarshalTypeError struct {
	Type  reflect.Type
	Value string
}

// NewUnmarshalTypeStrError reports a decode-target type mismatch using an
// already-formatted value description.
func NewUnmarshalTypeStrError(value string, rType reflect.Type) UnmarshalTypeError {
	return UnmarshalTypeError{
		Type:  rType,
		Value: value,
	}
}

// NewUnmarshalTypeError reports a decode-target type mismatch.
func NewUnmarshalTypeError(value any, rType reflect.Type) UnmarshalTypeError {
	return NewUnmarshalTypeStrError(fmt.Sprintf("%v (%T)", value, value), rType)
}

func (e UnmarshalTypeError) Error() string {
	return fmt.Sprintf("mmdb: cannot unmarshal %s into type %s", e.Value, e.Type)
}
