package mapping

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/siherrmann/storemapper/model"
)

// EntityDescriptor holds the precomputed field descriptors of one kind
type EntityDescriptor struct {
	Kind   string
	Type   reflect.Type
	Fields []model.FieldDescriptor

	keyIndex []int
	byName   map[string]int
}

// NewEntityDescriptor indexes fields by property name.
// Property names must be unique.
func NewEntityDescriptor(kind string, t reflect.Type, fields []model.FieldDescriptor) (*EntityDescriptor, error) {
	d := &EntityDescriptor{
		Kind:   kind,
		Type:   t,
		Fields: fields,
		byName: make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if f.FieldName == "" {
			return nil, fmt.Errorf("field %d has no property name", i)
		}
		if _, exists := d.byName[f.FieldName]; exists {
			return nil, fmt.Errorf("property %q is mapped more than once", f.FieldName)
		}
		d.byName[f.FieldName] = i
	}
	return d, nil
}

// Field returns the descriptor of a property
func (d *EntityDescriptor) Field(fieldName string) (model.FieldDescriptor, bool) {
	i, ok := d.byName[fieldName]
	if !ok {
		return model.FieldDescriptor{}, false
	}
	return d.Fields[i], true
}

// KeyIndex returns the index path of the struct field holding the entity key
func (d *EntityDescriptor) KeyIndex() ([]int, bool) {
	return d.keyIndex, d.keyIndex != nil
}

type tagOptions struct {
	embedded bool
	noIndex  bool
	key      bool
}

// parseTag splits a `datastore:"name,embedded,noindex,key"` tag
func parseTag(tag string) (string, tagOptions, error) {
	parts := strings.Split(tag, ",")
	opts := tagOptions{}
	for _, opt := range parts[1:] {
		switch strings.TrimSpace(opt) {
		case "embedded":
			opts.embedded = true
		case "noindex":
			opts.noIndex = true
		case "key":
			opts.key = true
		case "":
		default:
			return "", opts, fmt.Errorf("unknown tag option %q", opt)
		}
	}
	return strings.TrimSpace(parts[0]), opts, nil
}

func (c *Context) describe(t reflect.Type, kind string) (*EntityDescriptor, error) {
	var fields []model.FieldDescriptor
	var keyIndex []int

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		tag := f.Tag.Get("datastore")
		if tag == "-" {
			continue
		}
		name, opts, err := parseTag(tag)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if name == "" {
			name = f.Name
		}

		if opts.key {
			if f.Type.Kind() != reflect.String {
				return nil, fmt.Errorf("key field %s must be a string, got %s", f.Name, f.Type)
			}
			if keyIndex != nil {
				return nil, fmt.Errorf("key field %s: only one key field is allowed", f.Name)
			}
			keyIndex = f.Index
			continue
		}

		field, err := c.describeField(f.Type, name, opts)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		field.Name = f.Name
		field.Index = f.Index
		fields = append(fields, field)
	}

	d, err := NewEntityDescriptor(kind, t, fields)
	if err != nil {
		return nil, err
	}
	d.keyIndex = keyIndex

	return d, nil
}

func (c *Context) describeField(t reflect.Type, name string, opts tagOptions) (model.FieldDescriptor, error) {
	field := model.FieldDescriptor{
		FieldName: name,
		Type:      t,
		NoIndex:   opts.noIndex,
	}

	switch {
	case c.IsScalar(t):
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		// byte slices are stored as a single blob
	case t.Kind() == reflect.Array:
		return field, fmt.Errorf("array type %s is not supported, use a slice", t)
	case t.Kind() == reflect.Slice:
		field.Collection = model.CollectionList
		field.ComponentType = t.Elem()
	case t.Kind() == reflect.Map && t.Elem() == emptyStructType:
		field.Collection = model.CollectionSet
		field.ComponentType = t.Key()
		if !t.Key().Comparable() || c.IsEntityType(t.Key()) {
			return field, fmt.Errorf("set element type %s must be a comparable scalar", t.Key())
		}
	case t.Kind() == reflect.Map:
		if t.Key().Kind() != reflect.String {
			return field, fmt.Errorf("map key type must be string, got %s", t.Key())
		}
		field.EmbeddedMap = true
		field.EmbeddedMapValueType = t.Elem()
	}

	_, component := field.Normalize()
	field.Embedded = opts.embedded || c.IsEntityType(component) ||
		(field.EmbeddedMap && c.IsEntityType(field.EmbeddedMapValueType))

	return field, nil
}

var emptyStructType = reflect.TypeOf(struct{}{})
