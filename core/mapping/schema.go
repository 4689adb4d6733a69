package mapping

import (
	"fmt"
	"io"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/siherrmann/storemapper/model"
	"sigs.k8s.io/yaml"
)

const mapTypeName = "map"

// SchemaFile describes a kind without a Go struct.
//
//	kind: Person
//	fields:
//	  - name: name
//	    type: string
//	  - name: tags
//	    type: string
//	    collection: list
//	  - name: labels
//	    type: map
//	    mapValueType: string
//	    embedded: true
type SchemaFile struct {
	Kind   string        `json:"kind"`
	Fields []SchemaField `json:"fields"`
}

// SchemaField describes one property of a SchemaFile
type SchemaField struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Collection   string `json:"collection,omitempty" jsonschema:"enum=list,enum=set"`
	Embedded     bool   `json:"embedded,omitempty"`
	MapValueType string `json:"mapValueType,omitempty"`
	NoIndex      bool   `json:"noIndex,omitempty"`
}

// LoadSchema reads a YAML or JSON schema file
func LoadSchema(r io.Reader, types *TypeRegistry, ctx *Context) (*EntityDescriptor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read schema: %w", err)
	}
	return ParseSchema(data, types, ctx)
}

// ParseSchema builds an entity descriptor from YAML or JSON schema data.
// ctx decides which registered types are nested entities.
func ParseSchema(data []byte, types *TypeRegistry, ctx *Context) (*EntityDescriptor, error) {
	var file SchemaFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	return file.Descriptor(types, ctx)
}

// Descriptor resolves the type names of the schema file
func (s SchemaFile) Descriptor(types *TypeRegistry, ctx *Context) (*EntityDescriptor, error) {
	if s.Kind == "" {
		return nil, fmt.Errorf("schema has no kind")
	}

	fields := make([]model.FieldDescriptor, 0, len(s.Fields))
	for _, sf := range s.Fields {
		field, err := sf.descriptor(types, ctx)
		if err != nil {
			return nil, fmt.Errorf("kind %s, field %q: %w", s.Kind, sf.Name, err)
		}
		fields = append(fields, field)
	}

	return NewEntityDescriptor(s.Kind, nil, fields)
}

func (sf SchemaField) descriptor(types *TypeRegistry, ctx *Context) (model.FieldDescriptor, error) {
	field := model.FieldDescriptor{
		FieldName: sf.Name,
		NoIndex:   sf.NoIndex,
	}

	var component reflect.Type
	if sf.Type == mapTypeName {
		if sf.Collection != "" {
			return field, fmt.Errorf("type %q cannot be a collection", mapTypeName)
		}
		valueType, ok := types.Lookup(sf.MapValueType)
		if !ok {
			return field, fmt.Errorf("unknown map value type %q", sf.MapValueType)
		}
		component = reflect.MapOf(reflect.TypeOf(""), valueType)
		field.EmbeddedMap = true
		field.EmbeddedMapValueType = valueType
	} else {
		if sf.MapValueType != "" {
			return field, fmt.Errorf("mapValueType is only allowed for type %q", mapTypeName)
		}
		t, ok := types.Lookup(sf.Type)
		if !ok {
			return field, fmt.Errorf("unknown type %q", sf.Type)
		}
		component = t
	}

	switch sf.Collection {
	case "":
		field.Type = component
	case "list":
		field.Type = reflect.SliceOf(component)
		field.ComponentType = component
		field.Collection = model.CollectionList
	case "set":
		if !component.Comparable() || ctx.IsEntityType(component) {
			return field, fmt.Errorf("set element type %s must be a comparable scalar", component)
		}
		field.Type = reflect.MapOf(component, emptyStructType)
		field.ComponentType = component
		field.Collection = model.CollectionSet
	default:
		return field, fmt.Errorf("unknown collection %q", sf.Collection)
	}

	field.Embedded = sf.Embedded || ctx.IsEntityType(component) ||
		(field.EmbeddedMap && ctx.IsEntityType(field.EmbeddedMapValueType))

	return field, nil
}

// SchemaJSONSchema returns the JSON Schema of the schema file format
func SchemaJSONSchema() ([]byte, error) {
	r := &jsonschema.Reflector{}
	schema, err := r.ReflectFromType(reflect.TypeOf(SchemaFile{})).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to create json schema for schema file: %w", err)
	}
	return schema, nil
}
