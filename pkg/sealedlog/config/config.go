package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/sealed-log/pkg/sealedlog"
	"github.com/tendant/sealed-log/pkg/sealedlog/events/cloudevents"
	"github.com/tendant/sealed-log/pkg/sealedlog/repo/memory"
	repopg "github.com/tendant/sealed-log/pkg/sealedlog/repo/postgres"
	reposqlite "github.com/tendant/sealed-log/pkg/sealedlog/repo/sqlite"
	fsstorage "github.com/tendant/sealed-log/pkg/sealedlog/storage/fs"
	memorystorage "github.com/tendant/sealed-log/pkg/sealedlog/storage/memory"
	s3storage "github.com/tendant/sealed-log/pkg/sealedlog/storage/s3"
)

// Database and storage types.
const (
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"

	StorageMemory = "memory"
	StorageFS     = "fs"
	StorageS3     = "s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		DatabaseType:       DatabaseMemory,
		DBSchema:           "sealedlog",
		Storage:            StorageConfig{Type: StorageMemory},
		ClassifierProfile:  sealedlog.ProfileFull,
		EnableEventLogging: true,
		EventsTimeout:      5 * time.Second,
	}
}

// ServerConfig represents server configuration for the sealed-log service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL   string // Postgres connection string or SQLite file path
	DatabaseType  string // "memory", "postgres", "sqlite"
	DBSchema      string // Postgres schema to use (default: sealedlog)
	DBAutoMigrate bool   // Apply the Postgres schema on start

	// Payload storage
	Storage StorageConfig

	// Admission control
	ClassifierProfile sealedlog.Profile

	// Key record bootstrap, used only when the store has no key record yet
	InitialKey   string
	InitialAdmin sealedlog.Identity

	// Caller authentication for the HTTP API
	JWTSecret string

	// Event delivery
	EnableEventLogging bool
	EventsURL          string
	EventsTimeout      time.Duration

	// SHA-256 of the API key guarding /metrics. Empty leaves it open.
	MetricsAPIKeySHA256 string
}

// StorageConfig selects the payload blob store
type StorageConfig struct {
	Type    string // "memory", "fs", "s3"
	BaseDir string // fs only
	S3      s3storage.Config
}

// IsProduction reports whether the server runs in production mode.
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case DatabaseMemory:
	case DatabasePostgres, DatabaseSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required when using %s", c.DatabaseType)
		}
	default:
		return errors.New("database_type must be 'memory', 'postgres' or 'sqlite'")
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageFS:
		if c.Storage.BaseDir == "" {
			return errors.New("storage base directory is required for fs storage")
		}
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return errors.New("storage bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if !c.ClassifierProfile.IsValid() {
		return fmt.Errorf("unknown classifier profile %q", c.ClassifierProfile)
	}

	if c.InitialKey != "" && c.InitialAdmin.IsZero() {
		return errors.New("initial_admin is required when initial_key is set")
	}

	if c.IsProduction() && c.JWTSecret == "" {
		return errors.New("jwt_secret is required in production")
	}

	return nil
}

// BuildService creates a Service instance from the server configuration.
// The returned cleanup function releases database handles and must be called
// once the service is no longer used.
func (c *ServerConfig) BuildService(ctx context.Context, extra ...sealedlog.Option) (sealedlog.Service, func(), error) {
	var options []sealedlog.Option

	repo, closeRepo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}
	options = append(options, sealedlog.WithRepository(repo))

	store, err := c.buildStorageBackend(ctx)
	if err != nil {
		closeRepo()
		return nil, nil, fmt.Errorf("failed to build storage backend %s: %w", c.Storage.Type, err)
	}
	options = append(options, sealedlog.WithBlobStore(store))

	classifier, err := sealedlog.NewClassifier(c.ClassifierProfile)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	options = append(options, sealedlog.WithClassifier(classifier))

	if c.EnableEventLogging {
		options = append(options, sealedlog.WithEventSink(sealedlog.NewLoggingEventSink(slog.Default())))
	}

	if c.EventsURL != "" {
		sink, err := cloudevents.New(cloudevents.Config{
			Target:  c.EventsURL,
			Timeout: c.EventsTimeout,
		})
		if err != nil {
			closeRepo()
			return nil, nil, err
		}
		options = append(options, sealedlog.WithEventSink(sink))
	}

	if !c.InitialAdmin.IsZero() {
		options = append(options, sealedlog.WithInitialKeyRecord(c.InitialKey, c.InitialAdmin))
	}

	svc, err := sealedlog.New(append(options, extra...)...)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	return svc, closeRepo, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (sealedlog.Repository, func(), error) {
	switch c.DatabaseType {
	case DatabaseMemory:
		return memory.New(), func() {}, nil

	case DatabasePostgres:
		pool, err := NewPostgresPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, err
		}
		if c.DBAutoMigrate {
			if err := migratePostgres(ctx, pool, c.DBSchema); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return repopg.NewWithPool(pool), pool.Close, nil

	case DatabaseSQLite:
		repo, err := reposqlite.Open(c.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				slog.Warn("Failed to close sqlite database", "err", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// NewPostgresPool opens a pool whose sessions use schema as search_path.
func NewPostgresPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		searchPath := pgx.Identifier{schema}.Sanitize()
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+searchPath)
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

func migratePostgres(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if schema != "" {
		if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	if err := repopg.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// buildStorageBackend creates a BlobStore based on the storage configuration
func (c *ServerConfig) buildStorageBackend(ctx context.Context) (sealedlog.BlobStore, error) {
	switch c.Storage.Type {
	case StorageMemory:
		return memorystorage.New(), nil
	case StorageFS:
		return fsstorage.New(fsstorage.Config{BaseDir: c.Storage.BaseDir})
	case StorageS3:
		return s3storage.New(ctx, c.Storage.S3)
	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", c.Storage.Type)
	}
}
