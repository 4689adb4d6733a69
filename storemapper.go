package storemapper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"

	"github.com/siherrmann/storemapper/core/convert"
	"github.com/siherrmann/storemapper/core/mapping"
	"github.com/siherrmann/storemapper/database"
	"github.com/siherrmann/storemapper/helper"
	"github.com/siherrmann/storemapper/model"
	loadSql "github.com/siherrmann/storemapper/sql"
)

// Store maps Go structs to entities stored in Postgres
type Store struct {
	DB          *helper.Database
	Entities    *database.EntitiesDBHandler
	Mapping     *mapping.Context
	Types       *mapping.TypeRegistry
	Conversions *convert.Conversions
	Converter   *convert.EntityConverter
	// Logging
	log *slog.Logger
}

// NewStore creates a new Store with the entities handler initialized.
// opts register custom converters on the store's conversions.
func NewStore(config *helper.DatabaseConfiguration, opts ...convert.Option) (*Store, error) {
	// Logger
	handlerOpts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, handlerOpts))

	// Initialize database
	db := helper.NewDatabase("storemapper", config, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// force=false to not reload if functions already exist
	entities, err := database.NewEntitiesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create entities handler", err)
	}

	mappingContext := mapping.NewContext()
	conversions := convert.NewConversions(opts...)

	return &Store{
		DB:          db,
		Entities:    entities,
		Mapping:     mappingContext,
		Types:       mapping.NewTypeRegistry(),
		Conversions: conversions,
		Converter:   convert.NewEntityConverter(mappingContext, conversions),
		log:         logger,
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.DB != nil && s.DB.Instance != nil {
		return s.DB.Instance.Close()
	}
	return nil
}

// Register sets the kind of a struct type, makes it available to schema
// files under the kind name and creates indexes for its indexed properties.
func (s *Store) Register(ctx context.Context, prototype any, kind string) error {
	err := s.Mapping.Register(prototype, kind)
	if err != nil {
		return helper.NewError("register kind", err)
	}

	descriptor, err := s.Mapping.DescriptorFor(prototype)
	if err != nil {
		return helper.NewError("describe entity", err)
	}

	if _, exists := s.Types.Lookup(kind); !exists {
		err = s.Types.Register(kind, reflect.Zero(descriptor.Type).Interface())
		if err != nil {
			return helper.NewError("register type", err)
		}
	}

	return s.EnsureIndexes(ctx, prototype)
}

// EnsureIndexes creates an index for every property of prototype's kind
// that is not tagged noindex. Single values get a btree index, lists a GIN index.
// Nested entities and maps are not indexed. Existing indexes of the right
// type are kept.
func (s *Store) EnsureIndexes(ctx context.Context, prototype any) error {
	descriptor, err := s.Mapping.DescriptorFor(prototype)
	if err != nil {
		return helper.NewError("describe entity", err)
	}

	for _, field := range descriptor.Fields {
		indexType, ok := propertyIndexType(field)
		if !ok {
			continue
		}
		err := s.Entities.EnsurePropertyIndex(ctx, descriptor.Kind, field.FieldName, indexType)
		if err != nil {
			return helper.NewError(fmt.Sprintf("index property %s", field.FieldName), err)
		}
	}

	return nil
}

func propertyIndexType(field model.FieldDescriptor) (string, bool) {
	if field.NoIndex || field.Embedded || field.EmbeddedMap {
		return "", false
	}
	if field.Collection == model.CollectionNone {
		return database.IndexTypeBTree, true
	}
	return database.IndexTypeGIN, true
}

// Save writes value, a struct with a key field, as an entity of its kind.
// An existing entity with the same kind and key is replaced.
func (s *Store) Save(ctx context.Context, value any) (*model.Entity, error) {
	entity, err := s.Converter.WriteEntity(value)
	if err != nil {
		return nil, helper.NewError("write entity", err)
	}

	err = s.Entities.UpsertEntity(ctx, entity)
	if err != nil {
		return nil, helper.NewError("upsert entity", err)
	}

	s.log.Info("Saved entity", slog.String("kind", entity.Kind), slog.String("key", entity.Key))

	return entity, nil
}

// Load reads the entity with key into the struct into points to.
// The kind is taken from the type of into.
func (s *Store) Load(ctx context.Context, key string, into any) error {
	descriptor, err := s.Mapping.DescriptorFor(into)
	if err != nil {
		return helper.NewError("describe entity", err)
	}

	entity, err := s.Entities.SelectEntityByKey(ctx, descriptor.Kind, key)
	if err != nil {
		return helper.NewError("select entity", err)
	}

	return s.Converter.ReadInto(entity, into)
}

// LoadMany reads the entities with keys into the slice into points to.
// The slice element may be a struct or a pointer to a struct.
// Keys without a stored entity are skipped.
func (s *Store) LoadMany(ctx context.Context, keys []string, into any) error {
	elemType, err := sliceElemType(into)
	if err != nil {
		return helper.NewError("load entities", err)
	}

	descriptor, err := s.Mapping.DescriptorForType(elemType)
	if err != nil {
		return helper.NewError("describe entity", err)
	}

	entities, err := s.Entities.SelectEntitiesByKeys(ctx, descriptor.Kind, keys)
	if err != nil {
		return helper.NewError("select entities", err)
	}

	return s.readAll(entities, into)
}

// Query reads all entities of into's element kind whose properties contain
// filter. Filter values are converted like saved values before matching.
func (s *Store) Query(ctx context.Context, filter map[string]any, into any) error {
	elemType, err := sliceElemType(into)
	if err != nil {
		return helper.NewError("query entities", err)
	}

	descriptor, err := s.Mapping.DescriptorForType(elemType)
	if err != nil {
		return helper.NewError("describe entity", err)
	}

	stored := model.Properties{}
	for name, value := range filter {
		converted, err := s.Conversions.ConvertOnWrite(value)
		if err != nil {
			return helper.NewError(fmt.Sprintf("convert filter %s", name), err)
		}
		stored[name] = converted
	}

	entities, err := s.Entities.SelectEntitiesByProperties(ctx, descriptor.Kind, stored, 0)
	if err != nil {
		return helper.NewError("select entities", err)
	}

	return s.readAll(entities, into)
}

// QueryProperty reads all entities of into's element kind by one property.
// Single values match by equality, lists, nested entities and maps by
// containment, so a list property matches entities holding value as an element.
// The query uses the property index created by EnsureIndexes.
func (s *Store) QueryProperty(ctx context.Context, property string, value any, into any) error {
	elemType, err := sliceElemType(into)
	if err != nil {
		return helper.NewError("query entities", err)
	}

	descriptor, err := s.Mapping.DescriptorForType(elemType)
	if err != nil {
		return helper.NewError("describe entity", err)
	}

	field, ok := descriptor.Field(property)
	if !ok {
		return helper.NewError("query entities", fmt.Errorf("kind %s has no property %s", descriptor.Kind, property))
	}

	stored, err := s.Conversions.ConvertOnWrite(value)
	if err != nil {
		return helper.NewError(fmt.Sprintf("convert value of %s", property), err)
	}

	var entities []*model.Entity
	if field.Collection == model.CollectionNone && !field.Embedded && !field.EmbeddedMap {
		entities, err = s.Entities.SelectEntitiesByProperty(ctx, descriptor.Kind, property, stored, 0)
	} else {
		entities, err = s.Entities.SelectEntitiesContaining(ctx, descriptor.Kind, property, stored, 0)
	}
	if err != nil {
		return helper.NewError("select entities", err)
	}

	return s.readAll(entities, into)
}

// Count returns the number of stored entities of prototype's kind
func (s *Store) Count(ctx context.Context, prototype any) (int64, error) {
	descriptor, err := s.Mapping.DescriptorFor(prototype)
	if err != nil {
		return 0, helper.NewError("describe entity", err)
	}
	return s.Entities.CountEntitiesByKind(ctx, descriptor.Kind)
}

// Delete deletes the entity of prototype's kind with key
func (s *Store) Delete(ctx context.Context, prototype any, key string) error {
	descriptor, err := s.Mapping.DescriptorFor(prototype)
	if err != nil {
		return helper.NewError("describe entity", err)
	}

	err = s.Entities.DeleteEntityByKey(ctx, descriptor.Kind, key)
	if err != nil {
		return helper.NewError("delete entity", err)
	}

	s.log.Info("Deleted entity", slog.String("kind", descriptor.Kind), slog.String("key", key))

	return nil
}

// ReadProperty reads a single property of entity as described by field.
// It returns nil and no error if the entity does not contain the property.
func (s *Store) ReadProperty(entity model.EntityAccessor, field model.FieldDescriptor) (any, error) {
	provider, err := convert.NewPropertyValueProvider(entity, s.Conversions)
	if err != nil {
		return nil, err
	}
	return provider.GetPropertyValue(field)
}

// LoadSchema reads a YAML schema file describing a kind without a Go struct.
// Registered kinds can be used as field types.
func (s *Store) LoadSchema(r io.Reader) (*mapping.EntityDescriptor, error) {
	descriptor, err := mapping.LoadSchema(r, s.Types, s.Mapping)
	if err != nil {
		return nil, helper.NewError("load schema", err)
	}
	return descriptor, nil
}

// ReadSchema reads the properties of entity described by a schema descriptor
func (s *Store) ReadSchema(entity model.EntityAccessor, descriptor *mapping.EntityDescriptor) (map[string]any, error) {
	if descriptor == nil {
		return nil, helper.NewError("read schema", fmt.Errorf("schema descriptor is nil"))
	}
	return s.Converter.ReadMap(entity, descriptor)
}

func (s *Store) readAll(entities []*model.Entity, into any) error {
	slice := reflect.ValueOf(into).Elem()
	elemType := slice.Type().Elem()

	out := reflect.MakeSlice(slice.Type(), 0, len(entities))
	for _, entity := range entities {
		value, err := s.Converter.Read(entity, elemType)
		if err != nil {
			return helper.NewError(fmt.Sprintf("read entity %s", entity.Key), err)
		}
		out = reflect.Append(out, reflect.ValueOf(value))
	}
	slice.Set(out)

	return nil
}

func sliceElemType(into any) (reflect.Type, error) {
	v := reflect.ValueOf(into)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Slice {
		return nil, fmt.Errorf("target must be a pointer to a slice, got %T", into)
	}
	return v.Elem().Type().Elem(), nil
}
