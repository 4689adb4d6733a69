package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/storemapper/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntitiesNewEntitiesDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewEntitiesDBHandler", func(t *testing.T) {
		entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
		assert.NoError(t, err, "Expected NewEntitiesDBHandler to not return an error")
		require.NotNil(t, entitiesDbHandler, "Expected NewEntitiesDBHandler to return a non-nil instance")
		require.NotNil(t, entitiesDbHandler.db, "Expected NewEntitiesDBHandler to have a non-nil database instance")
		require.NotNil(t, entitiesDbHandler.db.Instance, "Expected NewEntitiesDBHandler to have a non-nil database connection instance")
	})

	t.Run("Valid call NewEntitiesDBHandler without force", func(t *testing.T) {
		entitiesDbHandler, err := NewEntitiesDBHandler(database, false)
		assert.NoError(t, err, "Expected NewEntitiesDBHandler to reuse existing functions")
		assert.NotNil(t, entitiesDbHandler)
	})

	t.Run("Invalid call NewEntitiesDBHandler with nil database", func(t *testing.T) {
		_, err := NewEntitiesDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating EntitiesDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestEntitiesUpsert(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
	require.NoError(t, err, "Expected NewEntitiesDBHandler to not return an error")

	t.Run("Insert entity", func(t *testing.T) {
		entity := model.NewEntity("Person", "john", model.Properties{"name": "John Doe", "age": 42})

		err := entitiesDbHandler.UpsertEntity(ctx, entity)
		assert.NoError(t, err, "Expected UpsertEntity to not return an error")
		assert.NotEqual(t, uuid.Nil, entity.ID, "Expected inserted entity to have an ID")
		assert.WithinDuration(t, time.Now(), entity.CreatedAt, 5*time.Second, "Expected CreatedAt to be set")
		assert.Equal(t, json.Number("42"), entity.Properties["age"], "Expected numbers to be read as json.Number")

		err = entitiesDbHandler.DeleteEntity(ctx, entity.ID)
		assert.NoError(t, err)
	})

	t.Run("Upsert keeps ID and replaces properties", func(t *testing.T) {
		first := model.NewEntity("Person", "jane", model.Properties{"age": 30})
		require.NoError(t, entitiesDbHandler.UpsertEntity(ctx, first))

		second := model.NewEntity("Person", "jane", model.Properties{"age": 31})
		err := entitiesDbHandler.UpsertEntity(ctx, second)

		assert.NoError(t, err, "Expected UpsertEntity to not return an error for an existing key")
		assert.Equal(t, first.ID, second.ID, "Expected upsert to keep the ID")
		assert.Equal(t, first.CreatedAt, second.CreatedAt, "Expected upsert to keep CreatedAt")
		assert.Equal(t, json.Number("31"), second.Properties["age"])

		require.NoError(t, entitiesDbHandler.DeleteEntity(ctx, first.ID))
	})

	t.Run("Upsert with unchanged properties keeps UpdatedAt", func(t *testing.T) {
		first := model.NewEntity("Person", "max", model.Properties{"a": 1, "b": "x"})
		require.NoError(t, entitiesDbHandler.UpsertEntity(ctx, first))

		time.Sleep(10 * time.Millisecond)
		same := model.NewEntity("Person", "max", model.Properties{"b": "x", "a": 1})
		require.NoError(t, entitiesDbHandler.UpsertEntity(ctx, same))
		assert.Equal(t, first.UpdatedAt, same.UpdatedAt, "Expected UpdatedAt to stay for equal content")

		time.Sleep(10 * time.Millisecond)
		changed := model.NewEntity("Person", "max", model.Properties{"a": 2, "b": "x"})
		require.NoError(t, entitiesDbHandler.UpsertEntity(ctx, changed))
		assert.True(t, changed.UpdatedAt.After(first.UpdatedAt), "Expected UpdatedAt to move for changed content")

		require.NoError(t, entitiesDbHandler.DeleteEntityByKey(ctx, "Person", "max"))
	})

	t.Run("Upsert without properties stores an empty object", func(t *testing.T) {
		entity := &model.Entity{Kind: "Empty", Key: "none"}
		require.NoError(t, entitiesDbHandler.UpsertEntity(ctx, entity))
		assert.Equal(t, model.Properties{}, entity.Properties)

		found, err := entitiesDbHandler.SelectEntitiesByProperties(ctx, "Empty", model.Properties{}, 0)
		require.NoError(t, err)
		require.Len(t, found, 1, "Expected an entity without properties to match an empty filter")

		require.NoError(t, entitiesDbHandler.DeleteEntity(ctx, entity.ID))
	})

	t.Run("Upsert without key fails", func(t *testing.T) {
		err := entitiesDbHandler.UpsertEntity(ctx, model.NewEntity("Person", "", nil))
		assert.Error(t, err)
	})

	t.Run("Upsert nil entity fails", func(t *testing.T) {
		err := entitiesDbHandler.UpsertEntity(ctx, nil)
		assert.ErrorIs(t, err, model.ErrEntityRequired)
	})
}

func TestEntitiesSelect(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
	require.NoError(t, err, "Expected NewEntitiesDBHandler to not return an error")

	entities := []*model.Entity{
		model.NewEntity("City", "berlin", model.Properties{"country": "DE", "size": "large"}),
		model.NewEntity("City", "hamburg", model.Properties{"country": "DE", "size": "large"}),
		model.NewEntity("City", "paris", model.Properties{"country": "FR", "size": "large"}),
		model.NewEntity("City", "bonn", model.Properties{"country": "DE", "size": "small"}),
		model.NewEntity("River", "rhine", model.Properties{"country": "DE"}),
	}
	for _, e := range entities {
		require.NoError(t, entitiesDbHandler.UpsertEntity(ctx, e))
	}
	t.Cleanup(func() {
		for _, e := range entities {
			_ = entitiesDbHandler.DeleteEntity(ctx, e.ID)
		}
	})

	t.Run("Select entity by ID", func(t *testing.T) {
		entity, err := entitiesDbHandler.SelectEntity(ctx, entities[0].ID)
		require.NoError(t, err, "Expected SelectEntity to not return an error")
		assert.Equal(t, "City", entity.Kind)
		assert.Equal(t, "berlin", entity.Key)
		assert.Equal(t, "DE", entity.Properties["country"])
	})

	t.Run("Select entity by key", func(t *testing.T) {
		entity, err := entitiesDbHandler.SelectEntityByKey(ctx, "City", "paris")
		require.NoError(t, err)
		assert.Equal(t, entities[2].ID, entity.ID)
	})

	t.Run("Select missing entity", func(t *testing.T) {
		_, err := entitiesDbHandler.SelectEntityByKey(ctx, "City", "atlantis")
		assert.ErrorIs(t, err, model.ErrEntityNotFound)

		_, err = entitiesDbHandler.SelectEntity(ctx, uuid.New())
		assert.ErrorIs(t, err, model.ErrEntityNotFound)
	})

	t.Run("Select entities by keys keeps key order", func(t *testing.T) {
		found, err := entitiesDbHandler.SelectEntitiesByKeys(ctx, "City", []string{"paris", "atlantis", "berlin"})
		require.NoError(t, err)
		require.Len(t, found, 2, "Expected missing keys to be skipped")
		assert.Equal(t, "paris", found[0].Key)
		assert.Equal(t, "berlin", found[1].Key)
	})

	t.Run("Select entities by kind", func(t *testing.T) {
		found, err := entitiesDbHandler.SelectEntitiesByKind(ctx, "City", 0, 0)
		require.NoError(t, err)
		require.Len(t, found, 4)
		assert.Equal(t, "berlin", found[0].Key, "Expected entities ordered by key")

		page, err := entitiesDbHandler.SelectEntitiesByKind(ctx, "City", 2, 1)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "bonn", page[0].Key)
		assert.Equal(t, "hamburg", page[1].Key)
	})

	t.Run("Select entities by properties", func(t *testing.T) {
		found, err := entitiesDbHandler.SelectEntitiesByProperties(ctx, "City", model.Properties{"country": "DE", "size": "large"}, 0)
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "berlin", found[0].Key)
		assert.Equal(t, "hamburg", found[1].Key)

		limited, err := entitiesDbHandler.SelectEntitiesByProperties(ctx, "City", model.Properties{"country": "DE"}, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		all, err := entitiesDbHandler.SelectEntitiesByProperties(ctx, "River", nil, 0)
		require.NoError(t, err)
		assert.Len(t, all, 1, "Expected nil filter to match every entity of the kind")
	})

	t.Run("Count entities by kind", func(t *testing.T) {
		count, err := entitiesDbHandler.CountEntitiesByKind(ctx, "City")
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)
	})
}

func TestEntitiesDelete(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
	require.NoError(t, err, "Expected NewEntitiesDBHandler to not return an error")

	t.Run("Delete entity by key", func(t *testing.T) {
		entity := model.NewEntity("Temp", "one", nil)
		require.NoError(t, entitiesDbHandler.UpsertEntity(ctx, entity))

		err := entitiesDbHandler.DeleteEntityByKey(ctx, "Temp", "one")
		assert.NoError(t, err)

		_, err = entitiesDbHandler.SelectEntity(ctx, entity.ID)
		assert.ErrorIs(t, err, model.ErrEntityNotFound, "Expected entity to be deleted")
	})

	t.Run("Delete missing entity", func(t *testing.T) {
		err := entitiesDbHandler.DeleteEntity(ctx, uuid.New())
		assert.ErrorIs(t, err, model.ErrEntityNotFound)

		err = entitiesDbHandler.DeleteEntityByKey(ctx, "Temp", "missing")
		assert.ErrorIs(t, err, model.ErrEntityNotFound)
	})
}
