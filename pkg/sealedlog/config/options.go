package config

import (
	"fmt"
	"time"

	"github.com/tendant/sealed-log/pkg/sealedlog"
	s3storage "github.com/tendant/sealed-log/pkg/sealedlog/storage/s3"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case DatabaseMemory:
		case DatabasePostgres, DatabaseSQLite:
			if url == "" {
				return fmt.Errorf("database URL is required for %s", dbType)
			}
		default:
			return fmt.Errorf("database type must be 'memory', 'postgres' or 'sqlite', got: %s", dbType)
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithAutoMigrate applies the Postgres schema when the service is built
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.DBAutoMigrate = enabled
		return nil
	}
}

// WithMemoryStorage keeps payloads in process memory
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.Storage = StorageConfig{Type: StorageMemory}
		return nil
	}
}

// WithFilesystemStorage stores payloads below baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Storage = StorageConfig{Type: StorageFS, BaseDir: baseDir}
		return nil
	}
}

// WithS3Storage stores payloads in an S3 bucket
func WithS3Storage(s3Config s3storage.Config) Option {
	return func(c *ServerConfig) error {
		if s3Config.Bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if s3Config.Region == "" {
			s3Config.Region = "us-east-1"
		}
		c.Storage = StorageConfig{Type: StorageS3, S3: s3Config}
		return nil
	}
}

// WithClassifierProfile selects the admission classifier
func WithClassifierProfile(profile sealedlog.Profile) Option {
	return func(c *ServerConfig) error {
		if !profile.IsValid() {
			return fmt.Errorf("unknown classifier profile %q", profile)
		}
		c.ClassifierProfile = profile
		return nil
	}
}

// WithInitialKeyRecord sets the key material and administrator used to
// initialize an empty store
func WithInitialKeyRecord(keyMaterial string, admin sealedlog.Identity) Option {
	return func(c *ServerConfig) error {
		if admin.IsZero() {
			return fmt.Errorf("initial administrator cannot be empty: %w", sealedlog.ErrInvalidTarget)
		}
		c.InitialKey = keyMaterial
		c.InitialAdmin = admin
		return nil
	}
}

// WithJWTSecret sets the HMAC secret used to verify caller tokens
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithEventLogging enables or disables the logging event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithEventsURL delivers events as CloudEvents to url
func WithEventsURL(url string, timeout time.Duration) Option {
	return func(c *ServerConfig) error {
		if timeout < 0 {
			return fmt.Errorf("events timeout must not be negative, got: %s", timeout)
		}
		c.EventsURL = url
		c.EventsTimeout = timeout
		return nil
	}
}
