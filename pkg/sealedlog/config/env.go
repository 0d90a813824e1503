package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/sealed-log/pkg/sealedlog"
	s3storage "github.com/tendant/sealed-log/pkg/sealedlog/storage/s3"
)

// envConfig lists every variable WithEnv understands. Unset variables leave
// the current configuration untouched.
type envConfig struct {
	Port        string `env:"PORT" env-description:"HTTP listen port"`
	Environment string `env:"ENVIRONMENT" env-description:"development, production or testing"`

	DatabaseURL   string `env:"DATABASE_URL" env-description:"memory, postgres://..., postgresql://... or sqlite://path"`
	DBSchema      string `env:"DB_SCHEMA" env-description:"Postgres schema"`
	DBAutoMigrate string `env:"DB_AUTO_MIGRATE" env-description:"Apply the Postgres schema on start"`

	StorageURL string `env:"STORAGE_URL" env-description:"memory://, file:///path or s3://bucket/prefix?region=..."`

	ClassifierProfile string `env:"CLASSIFIER_PROFILE" env-description:"none, light or full"`
	InitialKey        string `env:"INITIAL_KEY" env-description:"Key material for a fresh store"`
	InitialAdmin      string `env:"INITIAL_ADMIN" env-description:"Administrator identity for a fresh store"`
	JWTSecret         string `env:"JWT_SECRET" env-description:"HS256 secret for caller tokens"`

	EnableEventLogging string        `env:"ENABLE_EVENT_LOGGING" env-description:"Log every event"`
	EventsURL          string        `env:"EVENTS_URL" env-description:"CloudEvents receiver"`
	EventsTimeout      time.Duration `env:"EVENTS_TIMEOUT" env-description:"Per-event delivery timeout"`

	MetricsAPIKeySHA256 string `env:"METRICS_API_KEY_SHA256" env-description:"SHA-256 of the key required on /metrics"`

	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-description:"S3 access key"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-description:"S3 secret key"`
	AWSRegion          string `env:"AWS_REGION" env-description:"S3 region"`
}

// EnvDescription returns a help text listing the environment variables.
func EnvDescription() (string, error) {
	header := "Environment variables:"
	return cleanenv.GetDescription(&envConfig{}, &header)
}

// WithEnv applies environment variable overrides.
//
//	DATABASE_URL - "memory" (default), "postgres://..." / "postgresql://...",
//	               or "sqlite:///path/to/file.db"
//	STORAGE_URL  - "memory://" (default), "file:///path/to/data",
//	               or "s3://bucket/prefix?region=us-east-1&endpoint=http://localhost:9000&path_style=true&sse=aws:kms&kms_key_id=..."
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env envConfig
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}

		if env.Port != "" {
			c.Port = env.Port
		}
		if env.Environment != "" {
			c.Environment = env.Environment
		}

		if err := applyDatabaseURL(env.DatabaseURL, c); err != nil {
			return err
		}
		if env.DBSchema != "" {
			c.DBSchema = env.DBSchema
		}
		if err := applyBool("DB_AUTO_MIGRATE", env.DBAutoMigrate, &c.DBAutoMigrate); err != nil {
			return err
		}

		if err := applyStorageURL(env.StorageURL, env, c); err != nil {
			return err
		}

		if env.ClassifierProfile != "" {
			profile, err := sealedlog.ParseProfile(env.ClassifierProfile)
			if err != nil {
				return err
			}
			c.ClassifierProfile = profile
		}
		if env.InitialKey != "" {
			c.InitialKey = env.InitialKey
		}
		if env.InitialAdmin != "" {
			c.InitialAdmin = sealedlog.Identity(env.InitialAdmin)
		}
		if env.JWTSecret != "" {
			c.JWTSecret = env.JWTSecret
		}

		if err := applyBool("ENABLE_EVENT_LOGGING", env.EnableEventLogging, &c.EnableEventLogging); err != nil {
			return err
		}
		if env.EventsURL != "" {
			c.EventsURL = env.EventsURL
		}
		if env.EventsTimeout > 0 {
			c.EventsTimeout = env.EventsTimeout
		}
		if env.MetricsAPIKeySHA256 != "" {
			c.MetricsAPIKeySHA256 = env.MetricsAPIKeySHA256
		}

		return nil
	}
}

func applyBool(name, raw string, dst *bool) error {
	if raw == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid boolean for %s: %w", name, err)
	}
	*dst = parsed
	return nil
}

// applyDatabaseURL auto-detects the database type from the URL scheme
func applyDatabaseURL(dbURL string, c *ServerConfig) error {
	switch {
	case dbURL == "":
		return nil
	case dbURL == "memory":
		c.DatabaseType = DatabaseMemory
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = DatabasePostgres
		c.DatabaseURL = dbURL
	case strings.HasPrefix(dbURL, "sqlite://"):
		path := strings.TrimPrefix(dbURL, "sqlite://")
		if path == "" {
			return fmt.Errorf("sqlite path cannot be empty in DATABASE_URL")
		}
		c.DatabaseType = DatabaseSQLite
		c.DatabaseURL = path
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgresql://...' or 'sqlite://...')", dbURL)
	}
	return nil
}

// applyStorageURL configures the blob store from a URL
func applyStorageURL(storageURL string, env envConfig, c *ServerConfig) error {
	switch {
	case storageURL == "":
		return nil
	case storageURL == "memory" || storageURL == "memory://":
		c.Storage = StorageConfig{Type: StorageMemory}
		return nil
	case strings.HasPrefix(storageURL, "file://"):
		path := strings.TrimPrefix(storageURL, "file://")
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		c.Storage = StorageConfig{Type: StorageFS, BaseDir: path}
		return nil
	case strings.HasPrefix(storageURL, "s3://"):
		return applyS3Storage(storageURL, env, c)
	}

	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storageURL)
}

// applyS3Storage configures S3 storage from URL
// Format: s3://bucket/prefix?region=us-east-1&endpoint=http://localhost:9000
func applyS3Storage(raw string, env envConfig, c *ServerConfig) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
	}

	q := u.Query()
	s3Config := s3storage.Config{
		Bucket:                 u.Host,
		Prefix:                 strings.Trim(u.Path, "/"),
		Region:                 firstNonEmpty(q.Get("region"), env.AWSRegion, "us-east-1"),
		Endpoint:               q.Get("endpoint"),
		AccessKeyID:            env.AWSAccessKeyID,
		SecretAccessKey:        env.AWSSecretAccessKey,
		SSEAlgorithm:           q.Get("sse"),
		SSEKMSKeyID:            q.Get("kms_key_id"),
		EnableSSE:              q.Get("sse") != "",
		CreateBucketIfNotExist: q.Get("create_bucket") == "true",
	}
	if v := q.Get("path_style"); v != "" {
		s3Config.UsePathStyle, err = strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid path_style in STORAGE_URL: %w", err)
		}
	}

	c.Storage = StorageConfig{Type: StorageS3, S3: s3Config}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
