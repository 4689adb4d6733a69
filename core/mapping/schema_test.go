package mapping

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/siherrmann/storemapper/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const personSchema = `
kind: Person
fields:
  - name: name
    type: string
  - name: born
    type: timestamp
  - name: tags
    type: string
    collection: list
  - name: roles
    type: string
    collection: set
  - name: addr
    type: Address
  - name: labels
    type: map
    mapValueType: string
    embedded: true
  - name: notes
    type: string
    noIndex: true
`

func TestParseSchema(t *testing.T) {
	types := NewTypeRegistry()
	types.MustRegister("Address", address{})

	descriptor, err := LoadSchema(strings.NewReader(personSchema), types, NewContext())
	require.NoError(t, err)

	assert.Equal(t, "Person", descriptor.Kind)
	assert.Nil(t, descriptor.Type)
	assert.Len(t, descriptor.Fields, 7)

	t.Run("Scalar field", func(t *testing.T) {
		f, ok := descriptor.Field("born")
		require.True(t, ok)
		collection, component := f.Normalize()
		assert.Equal(t, model.CollectionNone, collection)
		assert.Equal(t, reflect.TypeOf(time.Time{}), component)
	})

	t.Run("List field", func(t *testing.T) {
		f, _ := descriptor.Field("tags")
		assert.Equal(t, model.CollectionList, f.Collection)
		assert.Equal(t, reflect.TypeOf([]string{}), f.Type)
		assert.Equal(t, reflect.TypeOf(""), f.ComponentType)
	})

	t.Run("Set field", func(t *testing.T) {
		f, _ := descriptor.Field("roles")
		assert.Equal(t, model.CollectionSet, f.Collection)
		assert.Equal(t, reflect.TypeOf(map[string]struct{}{}), f.Type)
	})

	t.Run("Registered struct is embedded", func(t *testing.T) {
		f, _ := descriptor.Field("addr")
		assert.True(t, f.Embedded)
		assert.False(t, f.EmbeddedMap)
	})

	t.Run("Map field", func(t *testing.T) {
		f, _ := descriptor.Field("labels")
		assert.True(t, f.Embedded)
		assert.True(t, f.EmbeddedMap)
		assert.Equal(t, reflect.TypeOf(""), f.EmbeddedMapValueType)
		assert.Equal(t, reflect.TypeOf(map[string]string{}), f.Type)
	})

	t.Run("NoIndex field", func(t *testing.T) {
		f, _ := descriptor.Field("notes")
		assert.True(t, f.NoIndex)
	})
}

func TestParseSchemaErrors(t *testing.T) {
	types := NewTypeRegistry()
	types.MustRegister("Address", address{})

	testCases := []struct {
		name   string
		schema string
	}{
		{name: "missing kind", schema: "fields: []"},
		{name: "unknown type", schema: "kind: A\nfields:\n  - name: a\n    type: decimal"},
		{name: "unknown collection", schema: "kind: A\nfields:\n  - name: a\n    type: string\n    collection: bag"},
		{name: "unknown map value type", schema: "kind: A\nfields:\n  - name: a\n    type: map\n    mapValueType: decimal"},
		{name: "map value type on scalar", schema: "kind: A\nfields:\n  - name: a\n    type: string\n    mapValueType: string"},
		{name: "map collection", schema: "kind: A\nfields:\n  - name: a\n    type: map\n    mapValueType: string\n    collection: list"},
		{name: "set of entities", schema: "kind: A\nfields:\n  - name: a\n    type: Address\n    collection: set"},
		{name: "duplicate field", schema: "kind: A\nfields:\n  - name: a\n    type: string\n  - name: a\n    type: int64"},
		{name: "unknown key", schema: "kind: A\ncolor: red\nfields: []"},
		{name: "invalid yaml", schema: "kind: [A"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSchema([]byte(tc.schema), types, NewContext())
			assert.Error(t, err)
		})
	}
}

func TestTypeRegistry(t *testing.T) {
	t.Run("Built-in types are registered", func(t *testing.T) {
		types := NewTypeRegistry()

		for _, name := range []string{"string", "int64", "timestamp", "uuid", "vector", "bytes", "any"} {
			_, ok := types.Lookup(name)
			assert.True(t, ok, "Expected %s to be registered", name)
		}
		assert.Contains(t, types.Names(), "float64")
	})

	t.Run("Registering twice fails", func(t *testing.T) {
		types := NewTypeRegistry()

		assert.Error(t, types.Register("string", ""))
		assert.Error(t, types.Register("map", address{}))
		assert.Error(t, types.Register("nothing", nil))
	})
}

func TestSchemaJSONSchema(t *testing.T) {
	data, err := SchemaJSONSchema()
	require.NoError(t, err)

	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Contains(t, string(data), "SchemaFile")
	assert.Contains(t, string(data), "mapValueType")
	assert.Contains(t, string(data), `"list"`)
}
