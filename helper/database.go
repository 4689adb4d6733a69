package helper

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// DatabaseConfiguration holds the connection settings for Postgres
type DatabaseConfiguration struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
	SSLMode  string
}

// NewDatabaseConfiguration reads the database configuration from the environment.
// A .env file in the working directory is loaded first if present.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	// Missing .env is fine, the environment may be set otherwise
	_ = godotenv.Load()

	config := &DatabaseConfiguration{
		Host:     os.Getenv("DB_HOST"),
		Port:     os.Getenv("DB_PORT"),
		Database: os.Getenv("DB_DATABASE"),
		Username: os.Getenv("DB_USERNAME"),
		Password: os.Getenv("DB_PASSWORD"),
		Schema:   os.Getenv("DB_SCHEMA"),
		SSLMode:  os.Getenv("DB_SSLMODE"),
	}

	if config.Schema == "" {
		config.Schema = "public"
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	if len(config.Host) == 0 || len(config.Port) == 0 || len(config.Database) == 0 || len(config.Username) == 0 || len(config.Password) == 0 {
		return nil, NewError("database configuration", fmt.Errorf("DB_HOST, DB_PORT, DB_DATABASE, DB_USERNAME and DB_PASSWORD must be set"))
	}

	return config, nil
}

// ConnectionString returns the lib/pq connection string for the configuration
func (c *DatabaseConfiguration) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s search_path=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode, c.Schema,
	)
}

// Database wraps a Postgres connection together with its logger
type Database struct {
	Name     string
	Instance *sql.DB
	Logger   *slog.Logger
}

// NewDatabase opens and pings the database.
// It exits the process if the database is unreachable.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) *Database {
	db := &Database{
		Name:   name,
		Logger: logger,
	}

	instance, err := db.connect(config)
	if err != nil {
		log.Fatalf("error connecting to database %s: %v", name, err)
	}
	db.Instance = instance

	db.Logger.Info("Connected to database", slog.String("name", name), slog.String("host", config.Host))

	return db
}

// NewTestDatabase opens a database with a discarding logger for tests
func NewTestDatabase(config *DatabaseConfiguration) *Database {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return NewDatabase("test", config, logger)
}

func (d *Database) connect(config *DatabaseConfiguration) (*sql.DB, error) {
	instance, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, NewError("open", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = instance.PingContext(ctx)
	if err != nil {
		instance.Close()
		return nil, NewError("ping", err)
	}

	instance.SetMaxOpenConns(25)
	instance.SetMaxIdleConns(5)
	instance.SetConnMaxLifetime(5 * time.Minute)

	return instance, nil
}

// Close closes the underlying connection
func (d *Database) Close() error {
	if d.Instance == nil {
		return nil
	}
	return d.Instance.Close()
}
