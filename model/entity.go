package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityAccessor is read access to a stored record by property name.
type EntityAccessor interface {
	// Contains reports whether the property is present, even if its value is null.
	Contains(name string) bool
	// GetValue returns the raw stored value of the property.
	GetValue(name string) (interface{}, error)
	// GetEntity returns the property as a nested entity.
	GetEntity(name string) (EntityAccessor, error)
	// Names returns all property names.
	Names() []string
}

// Entity represents a stored record of a kind, identified by its key
type Entity struct {
	ID         uuid.UUID  `json:"id"`
	Kind       string     `json:"kind"`
	Key        string     `json:"key"`
	Properties Properties `json:"properties,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

var _ EntityAccessor = &Entity{}

// NewEntity creates an unsaved entity
func NewEntity(kind string, key string, properties Properties) *Entity {
	if properties == nil {
		properties = Properties{}
	}
	return &Entity{
		Kind:       kind,
		Key:        key,
		Properties: properties,
	}
}

// Contains reports whether the entity has the property
func (e *Entity) Contains(name string) bool {
	_, ok := e.Properties[name]
	return ok
}

// GetValue returns the raw value of the property
func (e *Entity) GetValue(name string) (interface{}, error) {
	v, ok := e.Properties[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, name)
	}
	return v, nil
}

// GetEntity returns the property as a nested entity.
// A null property returns a nil accessor and no error.
func (e *Entity) GetEntity(name string) (EntityAccessor, error) {
	v, err := e.GetValue(name)
	if err != nil {
		return nil, err
	}

	nested, ok := AsEntity(v)
	if !ok {
		return nil, fmt.Errorf("%w: %s holds %T", ErrNotAnEntity, name, v)
	}
	return nested, nil
}

// Names returns the property names of the entity
func (e *Entity) Names() []string {
	return e.Properties.Names()
}

// AsEntity returns v as an entity if it is stored as one.
// Nested entities are stored as JSON objects, null yields a nil accessor.
func AsEntity(v interface{}) (EntityAccessor, bool) {
	switch n := v.(type) {
	case nil:
		return nil, true
	case EntityAccessor:
		return n, true
	case Properties:
		return &Entity{Properties: n}, true
	case map[string]interface{}:
		return &Entity{Properties: Properties(n)}, true
	default:
		return nil, false
	}
}
