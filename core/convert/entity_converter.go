package convert

import (
	"fmt"
	"reflect"

	"github.com/siherrmann/storemapper/core/mapping"
	"github.com/siherrmann/storemapper/helper"
	"github.com/siherrmann/storemapper/model"
)

// EntityConverter reads entities into structs and writes structs into
// entities, using the descriptors of a mapping context.
type EntityConverter struct {
	mapping     *mapping.Context
	conversions ReadWriteConversions
}

var (
	_ EntityReader = &EntityConverter{}
	_ EntityWriter = &EntityConverter{}
)

// NewEntityConverter creates an entity converter and registers it on
// conversions for nested entities.
func NewEntityConverter(ctx *mapping.Context, conversions *Conversions) *EntityConverter {
	ec := &EntityConverter{
		mapping:     ctx,
		conversions: conversions,
	}
	conversions.RegisterEntityConverter(ec, ec)
	return ec
}

// Read reads entity into a new value of into, a struct or pointer to struct.
// Properties missing on the entity keep their zero value.
func (ec *EntityConverter) Read(entity model.EntityAccessor, into reflect.Type) (interface{}, error) {
	if into == nil {
		return nil, helper.NewError("read entity", fmt.Errorf("target type is nil"))
	}

	descriptor, err := ec.mapping.DescriptorForType(into)
	if err != nil {
		return nil, helper.NewError("describe entity", err)
	}

	provider, err := NewPropertyValueProvider(entity, ec.conversions)
	if err != nil {
		return nil, err
	}

	out := reflect.New(descriptor.Type).Elem()
	for _, field := range descriptor.Fields {
		value, err := provider.GetPropertyValue(field)
		if err != nil {
			return nil, err
		}
		if value == nil {
			continue
		}

		target := out.FieldByIndex(field.Index)
		v, err := assignTo(value, target.Type())
		if err != nil {
			return nil, &model.DataError{Field: field.FieldName, Err: err}
		}
		target.Set(v)
	}

	if keyIndex, ok := descriptor.KeyIndex(); ok {
		if e, ok := entity.(*model.Entity); ok {
			out.FieldByIndex(keyIndex).SetString(e.Key)
		}
	}

	if into.Kind() == reflect.Pointer {
		return out.Addr().Interface(), nil
	}
	return out.Interface(), nil
}

// ReadInto reads entity into the struct ptr points to
func (ec *EntityConverter) ReadInto(entity model.EntityAccessor, ptr interface{}) error {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return helper.NewError("read entity", fmt.Errorf("target must be a non-nil pointer, got %T", ptr))
	}

	out, err := ec.Read(entity, v.Type().Elem())
	if err != nil {
		return err
	}
	v.Elem().Set(reflect.ValueOf(out))

	return nil
}

// ReadMap reads every property described by descriptor into a map.
// Properties missing on the entity are left out.
func (ec *EntityConverter) ReadMap(entity model.EntityAccessor, descriptor *mapping.EntityDescriptor) (map[string]interface{}, error) {
	if descriptor == nil {
		return nil, helper.NewError("read map", fmt.Errorf("descriptor is nil"))
	}

	provider, err := NewPropertyValueProvider(entity, ec.conversions)
	if err != nil {
		return nil, err
	}

	out := make(map[string]interface{}, len(descriptor.Fields))
	for _, field := range descriptor.Fields {
		if !entity.Contains(field.FieldName) {
			continue
		}
		value, err := provider.GetPropertyValue(field)
		if err != nil {
			return nil, err
		}
		out[field.FieldName] = value
	}

	return out, nil
}

// Write converts a struct or pointer to struct into entity properties
func (ec *EntityConverter) Write(value interface{}) (model.Properties, error) {
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, helper.NewError("write entity", fmt.Errorf("value is nil"))
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return nil, helper.NewError("write entity", fmt.Errorf("value is nil"))
	}

	descriptor, err := ec.mapping.DescriptorForType(v.Type())
	if err != nil {
		return nil, helper.NewError("describe entity", err)
	}

	properties := make(model.Properties, len(descriptor.Fields))
	for _, field := range descriptor.Fields {
		stored, err := ec.conversions.ConvertOnWrite(v.FieldByIndex(field.Index).Interface())
		if err != nil {
			return nil, helper.NewError(fmt.Sprintf("write property %s", field.FieldName), err)
		}
		properties[field.FieldName] = stored
	}

	return properties, nil
}

// WriteEntity converts a struct into an entity of its kind, keyed by its key field
func (ec *EntityConverter) WriteEntity(value interface{}) (*model.Entity, error) {
	if value == nil {
		return nil, helper.NewError("write entity", fmt.Errorf("value is nil"))
	}

	descriptor, err := ec.mapping.DescriptorFor(value)
	if err != nil {
		return nil, helper.NewError("describe entity", err)
	}

	keyIndex, ok := descriptor.KeyIndex()
	if !ok {
		return nil, helper.NewError("write entity", fmt.Errorf("kind %s has no key field", descriptor.Kind))
	}

	v := reflect.Indirect(reflect.ValueOf(value))
	key := v.FieldByIndex(keyIndex).String()
	if key == "" {
		return nil, helper.NewError("write entity", fmt.Errorf("kind %s: key is empty", descriptor.Kind))
	}

	properties, err := ec.Write(value)
	if err != nil {
		return nil, err
	}

	return model.NewEntity(descriptor.Kind, key, properties), nil
}
