package sql

import (
	"database/sql"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func functionExists(t *testing.T, db *sql.DB, name string) bool {
	var exists bool
	err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);", name).Scan(&exists)
	require.NoError(t, err)
	return exists
}

func TestInit(t *testing.T) {
	db := initDB(t)
	defer db.Close()

	t.Run("Initialize database extensions", func(t *testing.T) {
		err := Init(db.Instance)
		assert.NoError(t, err)

		var exists bool
		err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'btree_gin');").Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "btree_gin extension should be created")
	})

	t.Run("Initialize database extensions is idempotent", func(t *testing.T) {
		err := Init(db.Instance)
		assert.NoError(t, err)

		err = Init(db.Instance)
		assert.NoError(t, err)
	})
}

func TestLoadEntitiesSql(t *testing.T) {
	db := initDB(t)
	defer db.Close()

	t.Run("Load entities SQL functions", func(t *testing.T) {
		err := LoadEntitiesSql(db.Instance, false)
		assert.NoError(t, err)

		for _, funcName := range EntitiesFunctions {
			assert.True(t, functionExists(t, db.Instance, funcName), "Function %s should exist", funcName)
		}
	})

	t.Run("Entities table is created while loading", func(t *testing.T) {
		var exists bool
		err := db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_tables WHERE tablename = 'entities');").Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "entities table should exist")
	})

	t.Run("Load entities SQL is idempotent without force", func(t *testing.T) {
		err := LoadEntitiesSql(db.Instance, false)
		assert.NoError(t, err)
	})

	t.Run("Load entities SQL with force reloads", func(t *testing.T) {
		err := LoadEntitiesSql(db.Instance, true)
		assert.NoError(t, err)

		for _, funcName := range EntitiesFunctions {
			assert.True(t, functionExists(t, db.Instance, funcName), "Function %s should exist after force reload", funcName)
		}
	})
}

func TestLoadAllSql(t *testing.T) {
	db := initDB(t)
	defer db.Close()

	t.Run("Load all SQL functions", func(t *testing.T) {
		err := LoadAllSql(db.Instance, false)
		assert.NoError(t, err)

		for _, funcName := range EntitiesFunctions {
			assert.True(t, functionExists(t, db.Instance, funcName), "Entities function %s should exist", funcName)
		}
	})

	t.Run("Load all SQL with force reloads", func(t *testing.T) {
		err := LoadAllSql(db.Instance, true)
		assert.NoError(t, err)
	})
}

func TestCheckFunctions(t *testing.T) {
	db := initDB(t)
	defer db.Close()

	t.Run("Check functions returns false when functions don't exist", func(t *testing.T) {
		exists, err := checkFunctions(db.Instance, []string{"nonexistent_function"})
		assert.NoError(t, err)
		assert.False(t, exists, "Should return false for nonexistent function")
	})

	t.Run("Check functions returns true when all functions exist", func(t *testing.T) {
		err := LoadEntitiesSql(db.Instance, false)
		require.NoError(t, err)

		exists, err := checkFunctions(db.Instance, EntitiesFunctions)
		assert.NoError(t, err)
		assert.True(t, exists, "Should return true when all functions exist")
	})

	t.Run("Check functions returns false when some functions don't exist", func(t *testing.T) {
		mixedFunctions := []string{"init_entities", "nonexistent_function"}
		exists, err := checkFunctions(db.Instance, mixedFunctions)
		assert.NoError(t, err)
		assert.False(t, exists, "Should return false when some functions don't exist")
	})

	t.Run("Check functions with empty list", func(t *testing.T) {
		exists, err := checkFunctions(db.Instance, []string{})
		assert.NoError(t, err)
		// With an empty list the loop doesn't execute and allExist remains false
		assert.False(t, exists, "Should return false for empty function list")
	})
}

func TestEmbeddedSQL(t *testing.T) {
	t.Run("Init SQL is embedded", func(t *testing.T) {
		assert.NotEmpty(t, initSQL, "initSQL should be embedded")
		assert.Contains(t, initSQL, "CREATE EXTENSION", "Should contain CREATE EXTENSION")
	})

	t.Run("Entities SQL is embedded", func(t *testing.T) {
		assert.NotEmpty(t, entitiesSQL, "entitiesSQL should be embedded")
		for _, funcName := range EntitiesFunctions {
			assert.Contains(t, entitiesSQL, "FUNCTION "+funcName+"(", "Should define %s", funcName)
		}
	})
}
