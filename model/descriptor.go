package model

import "reflect"

// CollectionType is the shape of a field holding multiple values
type CollectionType int

const (
	// CollectionNone marks a singular field.
	CollectionNone CollectionType = iota
	// CollectionList marks an ordered sequence, read as a slice.
	CollectionList
	// CollectionSet marks an unordered set, read as map[T]struct{}.
	CollectionSet
)

func (c CollectionType) String() string {
	switch c {
	case CollectionList:
		return "list"
	case CollectionSet:
		return "set"
	default:
		return "none"
	}
}

// FieldDescriptor describes how one stored property maps to a Go value.
// Descriptors are computed once per type and reused for every read.
type FieldDescriptor struct {
	// Name is the Go struct field name, empty for schema described fields.
	Name string `json:"name,omitempty"`
	// FieldName is the property name on the entity.
	FieldName string `json:"fieldName"`
	// Index is the struct field index path used with reflect.Value.FieldByIndex.
	Index []int `json:"-"`
	// Type is the declared type of the field.
	Type reflect.Type `json:"-"`
	// ComponentType is the element type of a collection field, nil if singular.
	ComponentType reflect.Type `json:"-"`
	// Collection is the collection shape, only meaningful with ComponentType set.
	Collection CollectionType `json:"collection,omitempty"`
	// Embedded is set when the property is stored as a nested entity.
	Embedded bool `json:"embedded,omitempty"`
	// EmbeddedMap is set when the runtime representation is a map.
	EmbeddedMap bool `json:"embeddedMap,omitempty"`
	// EmbeddedMapValueType is the value type of a map field.
	EmbeddedMapValueType reflect.Type `json:"-"`
	// NoIndex excludes the property from property indexes.
	NoIndex bool `json:"noIndex,omitempty"`
}

// Normalize returns the collection type and component type used to convert
// the field. Without a component type the field is singular and its
// declared type is the component type.
func (d FieldDescriptor) Normalize() (CollectionType, reflect.Type) {
	if d.ComponentType == nil {
		return CollectionNone, d.Type
	}
	return d.Collection, d.ComponentType
}
