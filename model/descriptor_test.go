package model

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldDescriptor_Normalize(t *testing.T) {
	stringType := reflect.TypeOf("")

	t.Run("Singular field uses declared type", func(t *testing.T) {
		d := FieldDescriptor{FieldName: "name", Type: stringType}

		collection, component := d.Normalize()

		assert.Equal(t, CollectionNone, collection)
		assert.Equal(t, stringType, component)
	})

	t.Run("Collection without component type is singular", func(t *testing.T) {
		d := FieldDescriptor{FieldName: "tags", Type: reflect.TypeOf([]string{}), Collection: CollectionList}

		collection, component := d.Normalize()

		assert.Equal(t, CollectionNone, collection)
		assert.Equal(t, reflect.TypeOf([]string{}), component)
	})

	t.Run("Collection field uses component type", func(t *testing.T) {
		d := FieldDescriptor{FieldName: "tags", Type: reflect.TypeOf([]string{}), ComponentType: stringType, Collection: CollectionList}

		collection, component := d.Normalize()

		assert.Equal(t, CollectionList, collection)
		assert.Equal(t, stringType, component)
	})

	t.Run("Normalize is idempotent", func(t *testing.T) {
		d := FieldDescriptor{FieldName: "tags", Type: reflect.TypeOf([]string{}), Collection: CollectionSet}
		collection, component := d.Normalize()

		normalized := FieldDescriptor{FieldName: "tags", Type: component, Collection: collection}
		collection2, component2 := normalized.Normalize()

		assert.Equal(t, collection, collection2)
		assert.Equal(t, component, component2)
	})
}

func TestCollectionType_String(t *testing.T) {
	assert.Equal(t, "none", CollectionNone.String())
	assert.Equal(t, "list", CollectionList.String())
	assert.Equal(t, "set", CollectionSet.String())
}
