package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/storemapper"
	"github.com/siherrmann/storemapper/core/convert"
	"github.com/siherrmann/storemapper/core/mapping"
	"github.com/siherrmann/storemapper/helper"
	"github.com/siherrmann/storemapper/model"
)

// Celsius is stored as a string like "21.5C"
type Celsius float64

type Location struct {
	Lat float64 `datastore:"lat"`
	Lon float64 `datastore:"lon"`
}

type Sensor struct {
	Name      string             `datastore:",key"`
	Serial    uuid.UUID          `datastore:"serial"`
	Location  Location           `datastore:"location"`
	Readings  []Celsius          `datastore:"readings,noindex"`
	Limits    map[string]Celsius `datastore:"limits,embedded"`
	Signature pgvector.Vector    `datastore:"signature,noindex"`
}

const sensorSchema = `
kind: Sensor
fields:
  - name: serial
    type: uuid
  - name: location
    type: Location
  - name: readings
    type: string
    collection: list
  - name: limits
    type: map
    mapValueType: string
    embedded: true
`

var celsiusType = reflect.TypeOf(Celsius(0))

func readCelsius(raw interface{}) (interface{}, error) {
	s, ok := raw.(string)
	if !ok || !strings.HasSuffix(s, "C") {
		return nil, fmt.Errorf("expected temperature like 21.5C, got %v", raw)
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(s, "C"), 64)
	if err != nil {
		return nil, err
	}
	return Celsius(f), nil
}

func writeCelsius(value interface{}) (interface{}, error) {
	return strconv.FormatFloat(float64(value.(Celsius)), 'f', -1, 64) + "C", nil
}

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	s, err := storemapper.NewStore(
		dbConfig,
		convert.WithReadConverter(celsiusType, readCelsius),
		convert.WithWriteConverter(celsiusType, writeCelsius),
	)
	if err != nil {
		log.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Register(ctx, Location{}, "Location"); err != nil {
		log.Fatalf("Failed to register location: %v", err)
	}
	if err := s.Register(ctx, Sensor{}, "Sensor"); err != nil {
		log.Fatalf("Failed to register sensor: %v", err)
	}

	sensor := Sensor{
		Name:      "greenhouse-1",
		Serial:    uuid.New(),
		Location:  Location{Lat: 52.52, Lon: 13.405},
		Readings:  []Celsius{21.5, 22, 23.25},
		Limits:    map[string]Celsius{"min": 5, "max": 35},
		Signature: pgvector.NewVector([]float32{0.1, 0.7, 0.2}),
	}
	entity, err := s.Save(ctx, sensor)
	if err != nil {
		log.Fatalf("Failed to save sensor: %v", err)
	}
	fmt.Printf("Stored readings as %v\n", entity.Properties["readings"])

	var loaded Sensor
	if err := s.Load(ctx, sensor.Name, &loaded); err != nil {
		log.Fatalf("Failed to load sensor: %v", err)
	}
	fmt.Printf("Loaded readings %v with limits %v\n", loaded.Readings, loaded.Limits)

	// Read the same entity through a schema, without the Sensor struct
	descriptor, err := s.LoadSchema(strings.NewReader(sensorSchema))
	if err != nil {
		log.Fatalf("Failed to load schema: %v", err)
	}
	stored, err := s.Entities.SelectEntityByKey(ctx, "Sensor", sensor.Name)
	if err != nil {
		log.Fatalf("Failed to select sensor: %v", err)
	}
	values, err := s.ReadSchema(stored, descriptor)
	if err != nil {
		log.Fatalf("Failed to read sensor with schema: %v", err)
	}
	for _, field := range descriptor.Fields {
		fmt.Printf("  %-9s %v\n", field.FieldName, values[field.FieldName])
	}

	// A stored value that does not fit the declared type is a DataError
	broken := model.NewEntity("Sensor", "broken", model.Properties{"readings": []interface{}{"hot"}})
	if err := s.Entities.UpsertEntity(ctx, broken); err != nil {
		log.Fatalf("Failed to store broken sensor: %v", err)
	}
	var unreadable Sensor
	err = s.Load(ctx, "broken", &unreadable)
	var dataErr *model.DataError
	if errors.As(err, &dataErr) {
		fmt.Printf("\nCould not read property %q: %v\n", dataErr.Field, dataErr.Err)
	}

	schema, err := mapping.SchemaJSONSchema()
	if err != nil {
		log.Fatalf("Failed to create schema file JSON schema: %v", err)
	}
	fmt.Printf("\nSchema file format:\n%s\n", schema)
}
