// Package presets builds ready-to-use services for common setups.
package presets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/tendant/sealed-log/pkg/sealedlog"
	"github.com/tendant/sealed-log/pkg/sealedlog/config"
	memoryrepo "github.com/tendant/sealed-log/pkg/sealedlog/repo/memory"
	fsstorage "github.com/tendant/sealed-log/pkg/sealedlog/storage/fs"
	memorystorage "github.com/tendant/sealed-log/pkg/sealedlog/storage/memory"
)

// DevAdministrator owns the key record of development and testing services
// unless overridden.
const DevAdministrator sealedlog.Identity = "dev-admin"

// NewDevelopment creates a service for local development: in-memory log,
// payloads on disk under ./dev-data, light classifier.
//
// The returned cleanup function removes the storage directory.
func NewDevelopment(opts ...DevelopmentOption) (sealedlog.Service, func(), error) {
	cfg := &devConfig{
		storageDir: "./dev-data",
		profile:    sealedlog.ProfileLight,
		keyRecord:  keyRecord{material: "dev-key", admin: DevAdministrator},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store, err := fsstorage.New(fsstorage.Config{BaseDir: cfg.storageDir})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create filesystem storage: %w", err)
	}

	svc, err := build(memoryrepo.New(), store, cfg.profile, cfg.keyRecord)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		os.RemoveAll(cfg.storageDir)
	}
	return svc, cleanup, nil
}

// NewTesting creates an isolated in-memory service for a test. It fails the
// test if the service cannot be built.
func NewTesting(t testing.TB, opts ...TestingOption) sealedlog.Service {
	t.Helper()
	cfg := &testConfig{
		profile:   sealedlog.ProfileFull,
		keyRecord: keyRecord{material: "test-key", admin: DevAdministrator},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	svc, err := build(memoryrepo.New(), memorystorage.New(), cfg.profile, cfg.keyRecord, cfg.extra...)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}
	return svc
}

// NewProduction builds a service from the environment and refuses
// configurations that would lose data on restart.
//
// The returned cleanup function closes database handles.
func NewProduction(ctx context.Context, opts ...config.Option) (sealedlog.Service, func(), error) {
	all := append([]config.Option{config.WithEnvironment("production"), config.WithEnv()}, opts...)
	cfg, err := config.Load(all...)
	if err != nil {
		return nil, nil, err
	}

	if cfg.DatabaseType == config.DatabaseMemory {
		return nil, nil, errors.New("production preset requires a persistent database (postgres or sqlite)")
	}
	if cfg.Storage.Type == config.StorageMemory {
		return nil, nil, errors.New("production preset requires persistent storage (s3 or fs)")
	}

	return cfg.BuildService(ctx)
}

func build(repo sealedlog.Repository, store sealedlog.BlobStore, profile sealedlog.Profile, kr keyRecord, extra ...sealedlog.Option) (sealedlog.Service, error) {
	classifier, err := sealedlog.NewClassifier(profile)
	if err != nil {
		return nil, err
	}

	options := []sealedlog.Option{
		sealedlog.WithRepository(repo),
		sealedlog.WithBlobStore(store),
		sealedlog.WithClassifier(classifier),
		sealedlog.WithInitialKeyRecord(kr.material, kr.admin),
	}
	svc, err := sealedlog.New(append(options, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, nil
}

type keyRecord struct {
	material string
	admin    sealedlog.Identity
}

type devConfig struct {
	storageDir string
	profile    sealedlog.Profile
	keyRecord  keyRecord
}

type testConfig struct {
	profile   sealedlog.Profile
	keyRecord keyRecord
	extra     []sealedlog.Option
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevStorage sets the development storage directory
func WithDevStorage(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.storageDir = dir
	}
}

// WithDevProfile sets the classifier profile
func WithDevProfile(profile sealedlog.Profile) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.profile = profile
	}
}

// WithDevKeyRecord sets the initial key material and administrator
func WithDevKeyRecord(material string, admin sealedlog.Identity) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.keyRecord = keyRecord{material: material, admin: admin}
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithTestProfile sets the classifier profile
func WithTestProfile(profile sealedlog.Profile) TestingOption {
	return func(cfg *testConfig) {
		cfg.profile = profile
	}
}

// WithTestKeyRecord sets the initial key material and administrator
func WithTestKeyRecord(material string, admin sealedlog.Identity) TestingOption {
	return func(cfg *testConfig) {
		cfg.keyRecord = keyRecord{material: material, admin: admin}
	}
}

// WithTestServiceOptions passes extra options to sealedlog.New, such as
// event sinks or a fixed clock.
func WithTestServiceOptions(opts ...sealedlog.Option) TestingOption {
	return func(cfg *testConfig) {
		cfg.extra = append(cfg.extra, opts...)
	}
}
