package convert

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/storemapper/model"
)

func notConvertible(raw interface{}, target reflect.Type) error {
	return fmt.Errorf("%w: cannot convert %T to %s", model.ErrNotConvertible, raw, target)
}

// readValue converts a plain stored value into target
func (c *Conversions) readValue(raw interface{}, target reflect.Type) (reflect.Value, error) {
	if raw == nil {
		return reflect.Zero(target), nil
	}

	if fn, ok := c.reader(target); ok {
		out, err := fn(raw)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %w", model.ErrNotConvertible, err)
		}
		return assignTo(out, target)
	}

	rv := reflect.ValueOf(raw)

	switch target.Kind() {
	case reflect.Pointer:
		elem, err := c.readValue(raw, target.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(target.Elem())
		p.Elem().Set(elem)
		return p, nil
	case reflect.Interface:
		if !rv.Type().Implements(target) {
			return reflect.Value{}, notConvertible(raw, target)
		}
		out := reflect.New(target).Elem()
		out.Set(rv)
		return out, nil
	}

	if rv.Type() == target {
		return rv, nil
	}

	out := reflect.New(target).Elem()
	switch target.Kind() {
	case reflect.String:
		switch s := raw.(type) {
		case string:
			out.SetString(s)
		case json.Number:
			out.SetString(s.String())
		default:
			if rv.Kind() != reflect.String {
				return reflect.Value{}, notConvertible(raw, target)
			}
			out.SetString(rv.String())
		}
	case reflect.Bool:
		if rv.Kind() != reflect.Bool {
			return reflect.Value{}, notConvertible(raw, target)
		}
		out.SetBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, ok := toInt64(raw)
		if !ok || out.OverflowInt(i) {
			return reflect.Value{}, notConvertible(raw, target)
		}
		out.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, ok := toUint64(raw)
		if !ok || out.OverflowUint(u) {
			return reflect.Value{}, notConvertible(raw, target)
		}
		out.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, ok := toFloat64(raw)
		if !ok || out.OverflowFloat(f) {
			return reflect.Value{}, notConvertible(raw, target)
		}
		out.SetFloat(f)
	case reflect.Slice:
		if target.Elem().Kind() == reflect.Uint8 {
			return readBlob(raw, target)
		}
		items, ok := asList(raw)
		if !ok {
			return reflect.Value{}, notConvertible(raw, target)
		}
		out = reflect.MakeSlice(target, 0, len(items))
		for i, item := range items {
			v, err := c.readValue(item, target.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out = reflect.Append(out, v)
		}
	case reflect.Map:
		nested, ok := model.AsEntity(raw)
		if !ok || target.Key().Kind() != reflect.String {
			return reflect.Value{}, notConvertible(raw, target)
		}
		m, err := c.readMap(nested, target.Elem(), c.readValue)
		if err != nil {
			return reflect.Value{}, err
		}
		return m.Convert(target), nil
	default:
		return reflect.Value{}, notConvertible(raw, target)
	}

	return out, nil
}

// readEmbeddedValue converts a stored nested entity into target
func (c *Conversions) readEmbeddedValue(raw interface{}, target reflect.Type) (reflect.Value, error) {
	if raw == nil {
		return reflect.Zero(target), nil
	}

	if target.Kind() == reflect.Pointer {
		elem, err := c.readEmbeddedValue(raw, target.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(target.Elem())
		p.Elem().Set(elem)
		return p, nil
	}

	nested, ok := model.AsEntity(raw)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: %T cannot be read as %s", model.ErrNotAnEntity, raw, target)
	}

	switch target.Kind() {
	case reflect.Map:
		if target.Key().Kind() != reflect.String {
			return reflect.Value{}, notConvertible(raw, target)
		}
		m, err := c.readEmbeddedMap(nested, target.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		return m.Convert(target), nil
	case reflect.Interface:
		m, err := c.readEmbeddedMap(nested, target)
		if err != nil {
			return reflect.Value{}, err
		}
		return assignTo(m.Interface(), target)
	case reflect.Struct:
		reader, _ := c.entityConverter()
		if reader == nil {
			return reflect.Value{}, fmt.Errorf("%w: no entity reader registered for %s", model.ErrNotConvertible, target)
		}
		out, err := reader.Read(nested, target)
		if err != nil {
			return reflect.Value{}, err
		}
		return assignTo(out, target)
	default:
		return reflect.Value{}, notConvertible(raw, target)
	}
}

// readEmbeddedMap reads every property of nested into map[string]valueType.
// Values whose type is an entity type are read as nested entities.
func (c *Conversions) readEmbeddedMap(nested model.EntityAccessor, valueType reflect.Type) (reflect.Value, error) {
	return c.readMap(nested, valueType, func(raw interface{}, target reflect.Type) (reflect.Value, error) {
		if c.isNested(raw, target) {
			return c.readEmbeddedValue(raw, target)
		}
		return c.readValue(raw, target)
	})
}

func (c *Conversions) readMap(nested model.EntityAccessor, valueType reflect.Type, read readFunc) (reflect.Value, error) {
	mapType := reflect.MapOf(stringType, valueType)
	if isNilEntity(nested) {
		return reflect.Zero(mapType), nil
	}

	names := nested.Names()
	out := reflect.MakeMapWithSize(mapType, len(names))
	for _, name := range names {
		raw, err := nested.GetValue(name)
		if err != nil {
			return reflect.Value{}, err
		}
		v, err := read(raw, valueType)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("key %s: %w", name, err)
		}
		out.SetMapIndex(reflect.ValueOf(name), v)
	}
	return out, nil
}

// isNested reports whether a value of target is read from raw as a nested entity
func (c *Conversions) isNested(raw interface{}, target reflect.Type) bool {
	if _, ok := c.reader(target); ok {
		return false
	}
	for target.Kind() == reflect.Pointer {
		target = target.Elem()
	}
	switch target.Kind() {
	case reflect.Struct:
		return true
	case reflect.Map:
		_, ok := model.AsEntity(raw)
		return ok
	default:
		return false
	}
}

// assignTo returns out as a value of target
func assignTo(out interface{}, target reflect.Type) (reflect.Value, error) {
	if out == nil {
		return reflect.Zero(target), nil
	}
	v := reflect.ValueOf(out)
	if v.Type().AssignableTo(target) {
		result := reflect.New(target).Elem()
		result.Set(v)
		return result, nil
	}
	if v.Type().ConvertibleTo(target) && v.Kind() == target.Kind() {
		return v.Convert(target), nil
	}
	return reflect.Value{}, notConvertible(out, target)
}

func toInt64(raw interface{}) (int64, bool) {
	if n, ok := raw.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	}

	v := reflect.ValueOf(raw)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v.Uint() > math.MaxInt64 {
			return 0, false
		}
		return int64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return floatToInt64(v.Float())
	default:
		return 0, false
	}
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toUint64(raw interface{}) (uint64, bool) {
	if n, ok := raw.(json.Number); ok {
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToUint64(f)
	}

	v := reflect.ValueOf(raw)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.Int() < 0 {
			return 0, false
		}
		return uint64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), true
	case reflect.Float32, reflect.Float64:
		return floatToUint64(v.Float())
	default:
		return 0, false
	}
}

func floatToUint64(f float64) (uint64, bool) {
	if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
		return 0, false
	}
	return uint64(f), true
}

func toFloat64(raw interface{}) (float64, bool) {
	if n, ok := raw.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}

	v := reflect.ValueOf(raw)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	default:
		return 0, false
	}
}

func defaultReaders() map[reflect.Type]ReadFunc {
	return map[reflect.Type]ReadFunc{
		reflect.TypeOf(time.Time{}):       readTime,
		reflect.TypeOf(uuid.UUID{}):       readUUID,
		reflect.TypeOf(pgvector.Vector{}): readVector,
		reflect.TypeOf([]byte{}):          readBytes,
		reflect.TypeOf(json.Number("")):   readNumber,
	}
}

func readTime(raw interface{}) (interface{}, error) {
	switch t := raw.(type) {
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	default:
		return nil, fmt.Errorf("cannot read %T as timestamp", raw)
	}
}

func readUUID(raw interface{}) (interface{}, error) {
	switch u := raw.(type) {
	case uuid.UUID:
		return u, nil
	case string:
		return uuid.Parse(u)
	case []byte:
		return uuid.FromBytes(u)
	default:
		return nil, fmt.Errorf("cannot read %T as uuid", raw)
	}
}

func readVector(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case pgvector.Vector:
		return v, nil
	case []float32:
		return pgvector.NewVector(v), nil
	case string:
		var vec pgvector.Vector
		if err := vec.Scan(v); err != nil {
			return nil, err
		}
		return vec, nil
	}

	items, ok := asList(raw)
	if !ok {
		return nil, fmt.Errorf("cannot read %T as vector", raw)
	}
	floats := make([]float32, len(items))
	for i, item := range items {
		f, ok := toFloat64(item)
		if !ok {
			return nil, fmt.Errorf("vector element %d: %T is not a number", i, item)
		}
		floats[i] = float32(f)
	}
	return pgvector.NewVector(floats), nil
}

func readBytes(raw interface{}) (interface{}, error) {
	switch b := raw.(type) {
	case []byte:
		return b, nil
	case string:
		return base64.StdEncoding.DecodeString(b)
	default:
		return nil, fmt.Errorf("cannot read %T as bytes", raw)
	}
}

// readBlob reads raw as bytes into a named byte slice type
func readBlob(raw interface{}, target reflect.Type) (reflect.Value, error) {
	out, err := readBytes(raw)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %w", model.ErrNotConvertible, err)
	}
	b := out.([]byte)

	v := reflect.ValueOf(b)
	if v.Type().ConvertibleTo(target) {
		return v.Convert(target), nil
	}

	blob := reflect.MakeSlice(target, len(b), len(b))
	for i, c := range b {
		blob.Index(i).SetUint(uint64(c))
	}
	return blob, nil
}

func readNumber(raw interface{}) (interface{}, error) {
	switch n := raw.(type) {
	case json.Number:
		return n, nil
	case string:
		if _, err := strconv.ParseFloat(n, 64); err != nil {
			return nil, err
		}
		return json.Number(n), nil
	}
	if i, ok := toInt64(raw); ok {
		return json.Number(strconv.FormatInt(i, 10)), nil
	}
	if f, ok := toFloat64(raw); ok {
		return json.Number(strconv.FormatFloat(f, 'g', -1, 64)), nil
	}
	return nil, fmt.Errorf("cannot read %T as number", raw)
}
