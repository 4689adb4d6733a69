package convert

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/storemapper/model"
)

// ConvertOnWrite converts a Go value into a JSON compatible stored value.
// Structs become nested entities, sets become sorted lists.
func (c *Conversions) ConvertOnWrite(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	return c.writeValue(reflect.ValueOf(value))
}

func (c *Conversions) writeValue(v reflect.Value) (interface{}, error) {
	if !v.IsValid() {
		return nil, nil
	}

	if fn, ok := c.writer(v.Type()); ok {
		return fn(v.Interface())
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return c.writeValue(v.Elem())
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Bytes(), nil
		}
		return c.writeList(v)
	case reflect.Array:
		return c.writeList(v)
	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Elem() == emptyStructType {
			return c.writeSet(v)
		}
		return c.writeMap(v)
	case reflect.Struct:
		_, writer := c.entityConverter()
		if writer == nil {
			return nil, fmt.Errorf("%w: no entity writer registered for %s", model.ErrNotConvertible, v.Type())
		}
		return writer.Write(v.Interface())
	default:
		return nil, fmt.Errorf("%w: cannot store %s", model.ErrNotConvertible, v.Type())
	}
}

func (c *Conversions) writeList(v reflect.Value) (interface{}, error) {
	out := make([]interface{}, v.Len())
	for i := range out {
		item, err := c.writeValue(v.Index(i))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = item
	}
	return out, nil
}

func (c *Conversions) writeSet(v reflect.Value) (interface{}, error) {
	out := make([]interface{}, 0, v.Len())
	for _, key := range v.MapKeys() {
		item, err := c.writeValue(key)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprint(out[i]) < fmt.Sprint(out[j])
	})
	return out, nil
}

func (c *Conversions) writeMap(v reflect.Value) (interface{}, error) {
	if v.Type().Key().Kind() != reflect.String {
		return nil, fmt.Errorf("%w: map key type must be string, got %s", model.ErrNotConvertible, v.Type().Key())
	}

	out := make(model.Properties, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		item, err := c.writeValue(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", iter.Key().String(), err)
		}
		out[iter.Key().String()] = item
	}
	return out, nil
}

func defaultWriters() map[reflect.Type]WriteFunc {
	return map[reflect.Type]WriteFunc{
		reflect.TypeOf(time.Time{}): func(value interface{}) (interface{}, error) {
			return value.(time.Time).UTC().Format(time.RFC3339Nano), nil
		},
		reflect.TypeOf(uuid.UUID{}): func(value interface{}) (interface{}, error) {
			return value.(uuid.UUID).String(), nil
		},
		reflect.TypeOf(pgvector.Vector{}): func(value interface{}) (interface{}, error) {
			return value.(pgvector.Vector).Slice(), nil
		},
		reflect.TypeOf(json.Number("")): func(value interface{}) (interface{}, error) {
			return value.(json.Number), nil
		},
	}
}
