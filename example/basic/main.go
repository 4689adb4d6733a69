package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/siherrmann/storemapper"
	"github.com/siherrmann/storemapper/helper"
)

type Address struct {
	Street string `datastore:"street"`
	City   string `datastore:"city"`
}

type Person struct {
	Email   string              `datastore:",key"`
	Name    string              `datastore:"name"`
	Age     int                 `datastore:"age"`
	Tags    []string            `datastore:"tags"`
	Home    Address             `datastore:"home"`
	Offices map[string]Address  `datastore:"offices"`
	Roles   map[string]struct{} `datastore:"roles"`
	Bio     string              `datastore:"bio,noindex"`
	Joined  time.Time           `datastore:"joined"`
}

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	s, err := storemapper.NewStore(dbConfig)
	if err != nil {
		log.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Register(ctx, Person{}, "Person"); err != nil {
		log.Fatalf("Failed to register person: %v", err)
	}

	people := []Person{
		{
			Email:   "alice@example.com",
			Name:    "Alice",
			Age:     30,
			Tags:    []string{"go", "postgres"},
			Home:    Address{Street: "1 Main St", City: "NYC"},
			Offices: map[string]Address{"hq": {Street: "5 Market St", City: "SF"}},
			Roles:   map[string]struct{}{"admin": {}},
			Bio:     "Likes long walks through query plans.",
			Joined:  time.Date(2021, 3, 14, 9, 0, 0, 0, time.UTC),
		},
		{
			Email:  "bob@example.com",
			Name:   "Bob",
			Age:    25,
			Home:   Address{City: "NYC"},
			Joined: time.Date(2023, 7, 1, 9, 0, 0, 0, time.UTC),
		},
	}

	fmt.Println("Saving people...")
	for _, p := range people {
		entity, err := s.Save(ctx, p)
		if err != nil {
			log.Fatalf("Failed to save %s: %v", p.Email, err)
		}
		fmt.Printf("Saved %s/%s with ID %s\n", entity.Kind, entity.Key, entity.ID)
	}

	var alice Person
	if err := s.Load(ctx, "alice@example.com", &alice); err != nil {
		log.Fatalf("Failed to load alice: %v", err)
	}
	fmt.Printf("\nLoaded %s (%d) living in %s, office in %s\n", alice.Name, alice.Age, alice.Home.City, alice.Offices["hq"].City)

	var inNYC []Person
	if err := s.Query(ctx, map[string]any{"home": map[string]any{"city": "NYC"}}, &inNYC); err != nil {
		log.Fatalf("Failed to query: %v", err)
	}
	fmt.Printf("\nPeople living in NYC: %d\n", len(inNYC))
	for _, p := range inNYC {
		fmt.Printf("  - %s joined %s\n", p.Name, p.Joined.Format("2006-01-02"))
	}

	// Read a single property without loading the whole entity
	stored, err := s.Entities.SelectEntityByKey(ctx, "Person", "alice@example.com")
	if err != nil {
		log.Fatalf("Failed to select alice: %v", err)
	}
	descriptor, err := s.Mapping.DescriptorFor(Person{})
	if err != nil {
		log.Fatalf("Failed to describe person: %v", err)
	}
	field, _ := descriptor.Field("roles")
	roles, err := s.ReadProperty(stored, field)
	if err != nil {
		log.Fatalf("Failed to read roles: %v", err)
	}
	fmt.Printf("\nAlice's roles: %v\n", roles)
}
