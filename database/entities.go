package database

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siherrmann/storemapper/helper"
	"github.com/siherrmann/storemapper/model"
	loadSql "github.com/siherrmann/storemapper/sql"
)

// EntitiesDBHandlerFunctions defines the interface for Entities database operations.
type EntitiesDBHandlerFunctions interface {
	UpsertEntity(ctx context.Context, entity *model.Entity) error
	SelectEntity(ctx context.Context, id uuid.UUID) (*model.Entity, error)
	SelectEntityByKey(ctx context.Context, kind string, key string) (*model.Entity, error)
	SelectEntitiesByKeys(ctx context.Context, kind string, keys []string) ([]*model.Entity, error)
	SelectEntitiesByKind(ctx context.Context, kind string, limit int, offset int) ([]*model.Entity, error)
	SelectEntitiesByProperties(ctx context.Context, kind string, filter model.Properties, limit int) ([]*model.Entity, error)
	SelectEntitiesByProperty(ctx context.Context, kind string, name string, value interface{}, limit int) ([]*model.Entity, error)
	SelectEntitiesContaining(ctx context.Context, kind string, name string, value interface{}, limit int) ([]*model.Entity, error)
	CountEntitiesByKind(ctx context.Context, kind string) (int64, error)
	DeleteEntity(ctx context.Context, id uuid.UUID) error
	DeleteEntityByKey(ctx context.Context, kind string, key string) error
}

// EntitiesDBHandler handles entity-related database operations
type EntitiesDBHandler struct {
	db *helper.Database
}

var _ EntitiesDBHandlerFunctions = &EntitiesDBHandler{}

const entityColumns = `id, kind, key, properties, created_at, updated_at`

// NewEntitiesDBHandler creates a new entities database handler.
// It initializes the database connection and loads entity-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEntitiesDBHandler(db *helper.Database, force bool) (*EntitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	entitiesDbHandler := &EntitiesDBHandler{
		db: db,
	}

	err := loadSql.LoadEntitiesSql(entitiesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = entitiesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntitiesDBHandler")

	return entitiesDbHandler, nil
}

// CreateTable creates the 'entities' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *EntitiesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities();`)
	if err != nil {
		return helper.NewError("init entities", err)
	}

	h.db.Logger.Info("Checked/created table entities")

	return nil
}

// UpsertEntity inserts an entity or replaces the properties of the entity
// with the same kind and key. ID and timestamps are set from the stored row.
// UpdatedAt only changes if the properties changed.
func (h *EntitiesDBHandler) UpsertEntity(ctx context.Context, entity *model.Entity) error {
	if entity == nil {
		return helper.NewError("upsert entity", model.ErrEntityRequired)
	}
	if entity.Kind == "" || entity.Key == "" {
		return helper.NewError("upsert entity", fmt.Errorf("kind and key are required"))
	}

	fingerprint, err := entity.Properties.Fingerprint()
	if err != nil {
		return helper.NewError("fingerprint", err)
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT `+entityColumns+` FROM upsert_entity($1, $2, $3, $4)`,
		entity.Kind,
		entity.Key,
		entity.Properties,
		fingerprint,
	)

	err = scanEntity(row, entity)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectEntity retrieves an entity by ID
func (h *EntitiesDBHandler) SelectEntity(ctx context.Context, id uuid.UUID) (*model.Entity, error) {
	entity := &model.Entity{}
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT `+entityColumns+` FROM select_entity($1)`,
		id,
	)

	err := scanEntity(row, entity)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectEntityByKey retrieves an entity by kind and key
func (h *EntitiesDBHandler) SelectEntityByKey(ctx context.Context, kind string, key string) (*model.Entity, error) {
	entity := &model.Entity{}
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT `+entityColumns+` FROM select_entity_by_key($1, $2)`,
		kind,
		key,
	)

	err := scanEntity(row, entity)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectEntitiesByKeys retrieves the entities of a kind in the order of keys.
// Keys without a stored entity are skipped.
func (h *EntitiesDBHandler) SelectEntitiesByKeys(ctx context.Context, kind string, keys []string) ([]*model.Entity, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT `+entityColumns+` FROM select_entities_by_keys($1, $2)`,
		kind,
		pq.Array(keys),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// SelectEntitiesByKind retrieves entities of a kind ordered by key.
// A limit of 0 returns all entities.
func (h *EntitiesDBHandler) SelectEntitiesByKind(ctx context.Context, kind string, limit int, offset int) ([]*model.Entity, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT `+entityColumns+` FROM select_entities_by_kind($1, $2, $3)`,
		kind,
		nullableLimit(limit),
		offset,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// SelectEntitiesByProperties retrieves entities of a kind whose properties
// contain filter (JSONB containment). A limit of 0 returns all matches.
func (h *EntitiesDBHandler) SelectEntitiesByProperties(ctx context.Context, kind string, filter model.Properties, limit int) ([]*model.Entity, error) {
	if filter == nil {
		filter = model.Properties{}
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT `+entityColumns+` FROM select_entities_by_properties($1, $2, $3)`,
		kind,
		filter,
		nullableLimit(limit),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// SelectEntitiesByProperty retrieves entities of a kind whose property
// equals value. value must be a stored scalar (string, number, bool or bytes).
// Matches use the btree property index of name if it exists.
func (h *EntitiesDBHandler) SelectEntitiesByProperty(ctx context.Context, kind string, name string, value interface{}, limit int) ([]*model.Entity, error) {
	text, err := propertyText(value)
	if err != nil {
		return nil, helper.NewError("property value", err)
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT `+entityColumns+` FROM select_entities_by_property($1, $2, $3, $4)`,
		kind,
		name,
		text,
		nullableLimit(limit),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// SelectEntitiesContaining retrieves entities of a kind whose property
// contains value (JSONB containment). A list property contains a single
// element or a sublist, a nested entity contains a subset of its properties.
// Matches use the GIN property index of name if it exists.
func (h *EntitiesDBHandler) SelectEntitiesContaining(ctx context.Context, kind string, name string, value interface{}, limit int) ([]*model.Entity, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, helper.NewError("marshal value", err)
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT `+entityColumns+` FROM select_entities_containing($1, $2, $3, $4)`,
		kind,
		name,
		string(b),
		nullableLimit(limit),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// CountEntitiesByKind returns the number of stored entities of a kind
func (h *EntitiesDBHandler) CountEntitiesByKind(ctx context.Context, kind string) (int64, error) {
	var count int64
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT count_entities_by_kind($1)`,
		kind,
	).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}

// DeleteEntity deletes an entity by ID
func (h *EntitiesDBHandler) DeleteEntity(ctx context.Context, id uuid.UUID) error {
	var deleted int
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT delete_entity($1)`,
		id,
	).Scan(&deleted)
	if err != nil {
		return helper.NewError("exec", err)
	}
	if deleted == 0 {
		return helper.NewError("delete entity", model.ErrEntityNotFound)
	}
	return nil
}

// DeleteEntityByKey deletes an entity by kind and key
func (h *EntitiesDBHandler) DeleteEntityByKey(ctx context.Context, kind string, key string) error {
	var deleted int
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT delete_entity_by_key($1, $2)`,
		kind,
		key,
	).Scan(&deleted)
	if err != nil {
		return helper.NewError("exec", err)
	}
	if deleted == 0 {
		return helper.NewError("delete entity", model.ErrEntityNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner, entity *model.Entity) error {
	err := row.Scan(
		&entity.ID,
		&entity.Kind,
		&entity.Key,
		&entity.Properties,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrEntityNotFound
	}
	return err
}

func scanEntities(rows *sql.Rows) ([]*model.Entity, error) {
	var entities []*model.Entity
	for rows.Next() {
		entity := &model.Entity{}
		err := scanEntity(rows, entity)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		entities = append(entities, entity)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}

// propertyText returns value the way properties->>name returns it
func propertyText(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case []byte:
		return base64.StdEncoding.EncodeToString(v), nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("%T is not a scalar property value", value)
	}
}

func nullableLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
