package convert

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/siherrmann/storemapper/model"
)

// ReadWriteConversions converts between stored property values and Go values
type ReadWriteConversions interface {
	// ConvertOnRead converts a plain stored value, or each element of a collection.
	ConvertOnRead(raw interface{}, collection model.CollectionType, component reflect.Type) (interface{}, error)
	// ConvertOnReadEmbedded converts a value stored as a nested entity, or a list of them.
	ConvertOnReadEmbedded(raw interface{}, collection model.CollectionType, component reflect.Type) (interface{}, error)
	// ConvertOnReadEmbeddedMap converts a nested entity into a map[string]V.
	ConvertOnReadEmbeddedMap(nested model.EntityAccessor, valueType reflect.Type) (interface{}, error)
	// ConvertOnWrite converts a Go value into a value that can be stored.
	ConvertOnWrite(value interface{}) (interface{}, error)
}

// EntityReader reads a nested entity into a struct type
type EntityReader interface {
	Read(entity model.EntityAccessor, into reflect.Type) (interface{}, error)
}

// EntityWriter writes a struct value into entity properties
type EntityWriter interface {
	Write(value interface{}) (model.Properties, error)
}

// ReadFunc converts a non-nil stored value into the type it is registered for
type ReadFunc func(raw interface{}) (interface{}, error)

// WriteFunc converts a value of the type it is registered for into a storable value
type WriteFunc func(value interface{}) (interface{}, error)

// Conversions is the default ReadWriteConversions.
// Custom converters are registered per Go type and take precedence over
// the built-in kind based conversion.
type Conversions struct {
	mu           sync.RWMutex
	readers      map[reflect.Type]ReadFunc
	writers      map[reflect.Type]WriteFunc
	entityReader EntityReader
	entityWriter EntityWriter
}

var _ ReadWriteConversions = &Conversions{}

// Option configures Conversions
type Option func(*Conversions)

// WithReadConverter registers a read converter for target
func WithReadConverter(target reflect.Type, fn ReadFunc) Option {
	return func(c *Conversions) {
		c.readers[target] = fn
	}
}

// WithWriteConverter registers a write converter for source
func WithWriteConverter(source reflect.Type, fn WriteFunc) Option {
	return func(c *Conversions) {
		c.writers[source] = fn
	}
}

// NewConversions creates conversions with the built-in converters for
// time.Time, uuid.UUID, pgvector.Vector, []byte and json.Number.
func NewConversions(opts ...Option) *Conversions {
	c := &Conversions{
		readers: defaultReaders(),
		writers: defaultWriters(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterReadConverter registers or replaces the read converter for target
func (c *Conversions) RegisterReadConverter(target reflect.Type, fn ReadFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readers[target] = fn
}

// RegisterWriteConverter registers or replaces the write converter for source
func (c *Conversions) RegisterWriteConverter(source reflect.Type, fn WriteFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writers[source] = fn
}

// RegisterEntityConverter sets the reader and writer used for nested entities
func (c *Conversions) RegisterEntityConverter(reader EntityReader, writer EntityWriter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entityReader = reader
	c.entityWriter = writer
}

func (c *Conversions) reader(t reflect.Type) (ReadFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.readers[t]
	return fn, ok
}

func (c *Conversions) writer(t reflect.Type) (WriteFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.writers[t]
	return fn, ok
}

func (c *Conversions) entityConverter() (EntityReader, EntityWriter) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entityReader, c.entityWriter
}

// ConvertOnRead converts a plain stored value
func (c *Conversions) ConvertOnRead(raw interface{}, collection model.CollectionType, component reflect.Type) (interface{}, error) {
	return c.read(raw, collection, component, c.readValue)
}

// ConvertOnReadEmbedded converts a stored nested entity or list of nested entities
func (c *Conversions) ConvertOnReadEmbedded(raw interface{}, collection model.CollectionType, component reflect.Type) (interface{}, error) {
	if collection == model.CollectionSet {
		return nil, fmt.Errorf("%w: sets of embedded entities are not supported", model.ErrNotConvertible)
	}
	return c.read(raw, collection, component, c.readEmbeddedValue)
}

// ConvertOnReadEmbeddedMap converts a nested entity into map[string]valueType.
// A nil entity yields a nil map.
func (c *Conversions) ConvertOnReadEmbeddedMap(nested model.EntityAccessor, valueType reflect.Type) (interface{}, error) {
	if valueType == nil {
		return nil, fmt.Errorf("%w: map value type is required", model.ErrNotConvertible)
	}
	if isNilEntity(nested) {
		return reflect.Zero(reflect.MapOf(stringType, valueType)).Interface(), nil
	}

	m, err := c.readEmbeddedMap(nested, valueType)
	if err != nil {
		return nil, err
	}
	return m.Interface(), nil
}

type readFunc func(raw interface{}, target reflect.Type) (reflect.Value, error)

func (c *Conversions) read(raw interface{}, collection model.CollectionType, component reflect.Type, read readFunc) (interface{}, error) {
	if component == nil {
		return nil, fmt.Errorf("%w: component type is required", model.ErrNotConvertible)
	}

	switch collection {
	case model.CollectionNone:
		v, err := read(raw, component)
		if err != nil {
			return nil, err
		}
		return v.Interface(), nil
	case model.CollectionList:
		return c.readList(raw, component, read)
	case model.CollectionSet:
		return c.readSet(raw, component, read)
	default:
		return nil, fmt.Errorf("%w: unknown collection type %d", model.ErrNotConvertible, collection)
	}
}

func (c *Conversions) readList(raw interface{}, component reflect.Type, read readFunc) (interface{}, error) {
	sliceType := reflect.SliceOf(component)
	if raw == nil {
		return reflect.Zero(sliceType).Interface(), nil
	}

	items, ok := asList(raw)
	if !ok {
		// A single stored value reads as a one element list
		items = []interface{}{raw}
	}

	out := reflect.MakeSlice(sliceType, 0, len(items))
	for i, item := range items {
		v, err := read(item, component)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = reflect.Append(out, v)
	}
	return out.Interface(), nil
}

func (c *Conversions) readSet(raw interface{}, component reflect.Type, read readFunc) (interface{}, error) {
	if !component.Comparable() {
		return nil, fmt.Errorf("%w: set element type %s is not comparable", model.ErrNotConvertible, component)
	}

	setType := reflect.MapOf(component, emptyStructType)
	if raw == nil {
		return reflect.Zero(setType).Interface(), nil
	}

	items, ok := asList(raw)
	if !ok {
		items = []interface{}{raw}
	}

	out := reflect.MakeMapWithSize(setType, len(items))
	member := reflect.ValueOf(struct{}{})
	for i, item := range items {
		v, err := read(item, component)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out.SetMapIndex(v, member)
	}
	return out.Interface(), nil
}

// asList returns the elements of a stored list.
// Byte slices are blobs, not lists.
func asList(raw interface{}) ([]interface{}, bool) {
	if items, ok := raw.([]interface{}); ok {
		return items, true
	}

	v := reflect.ValueOf(raw)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, false
	}
	if v.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}

	items := make([]interface{}, v.Len())
	for i := range items {
		items[i] = v.Index(i).Interface()
	}
	return items, true
}

var (
	stringType      = reflect.TypeOf("")
	emptyStructType = reflect.TypeOf(struct{}{})
)
