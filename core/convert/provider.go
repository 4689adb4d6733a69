package convert

import (
	"fmt"
	"reflect"

	"github.com/siherrmann/storemapper/helper"
	"github.com/siherrmann/storemapper/model"
)

// PropertyValueProvider reads single properties of one entity
// and converts them to the Go type described by a field descriptor.
type PropertyValueProvider struct {
	entity      model.EntityAccessor
	conversions ReadWriteConversions
}

// NewPropertyValueProvider creates a provider for entity.
// It fails with model.ErrEntityRequired if entity is nil.
func NewPropertyValueProvider(entity model.EntityAccessor, conversions ReadWriteConversions) (*PropertyValueProvider, error) {
	if isNilEntity(entity) {
		return nil, helper.NewError("create property value provider", model.ErrEntityRequired)
	}
	if conversions == nil {
		return nil, helper.NewError("create property value provider", fmt.Errorf("conversions are nil"))
	}

	return &PropertyValueProvider{
		entity:      entity,
		conversions: conversions,
	}, nil
}

// GetPropertyValue reads the property described by field.
// It returns nil and no error if the entity does not contain the property.
func (p *PropertyValueProvider) GetPropertyValue(field model.FieldDescriptor) (interface{}, error) {
	collection, component := field.Normalize()
	return p.PropertyValue(
		field.FieldName,
		field.Embedded,
		field.EmbeddedMap,
		field.EmbeddedMapValueType,
		collection,
		component,
	)
}

// PropertyValue reads a property from the entity.
// embeddedMap is only used for embedded properties. collection is
// CollectionNone for singular properties, component is the item type.
// Read and conversion failures are returned as *model.DataError.
func (p *PropertyValueProvider) PropertyValue(fieldName string, embedded bool, embeddedMap bool, mapValueType reflect.Type, collection model.CollectionType, component reflect.Type) (interface{}, error) {
	if !p.entity.Contains(fieldName) {
		return nil, nil
	}

	value, err := p.read(fieldName, embedded, embeddedMap, mapValueType, collection, component)
	if err != nil {
		return nil, &model.DataError{Field: fieldName, Err: err}
	}
	return value, nil
}

func (p *PropertyValueProvider) read(fieldName string, embedded bool, embeddedMap bool, mapValueType reflect.Type, collection model.CollectionType, component reflect.Type) (interface{}, error) {
	if embedded && embeddedMap {
		nested, err := p.entity.GetEntity(fieldName)
		if err != nil {
			return nil, err
		}
		return p.conversions.ConvertOnReadEmbeddedMap(nested, mapValueType)
	}

	raw, err := p.entity.GetValue(fieldName)
	if err != nil {
		return nil, err
	}

	if embedded {
		return p.conversions.ConvertOnReadEmbedded(raw, collection, component)
	}
	return p.conversions.ConvertOnRead(raw, collection, component)
}

func isNilEntity(entity model.EntityAccessor) bool {
	if entity == nil {
		return true
	}
	v := reflect.ValueOf(entity)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}
