package model

import (
	"errors"
	"fmt"
)

var (
	// ErrEntityRequired is returned when a property reader is created without an entity.
	ErrEntityRequired = errors.New("a non-null entity is required")
	// ErrPropertyNotFound is returned when a property is read that the entity does not contain.
	ErrPropertyNotFound = errors.New("property not found")
	// ErrNotAnEntity is returned when a property is read as a nested entity but holds a plain value.
	ErrNotAnEntity = errors.New("property is not an entity")
	// ErrNotConvertible is returned when a stored value cannot be converted to the requested type.
	ErrNotConvertible = errors.New("value is not convertible")
	// ErrEntityNotFound is returned when no stored entity matches a lookup.
	ErrEntityNotFound = errors.New("entity not found")
)

// DataError is returned when a property that is present on an entity
// could not be read into its declared type.
type DataError struct {
	Field string
	Err   error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("unable to read property %s: %v", e.Field, e.Err)
}

func (e *DataError) Unwrap() error {
	return e.Err
}
