package postgres_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/sealed-log/pkg/sealedlog"
	"github.com/tendant/sealed-log/pkg/sealedlog/repo/postgres"
)

// newTestPool connects to TEST_DATABASE_URL inside a throwaway schema.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	schema := "sealedlog_test_" + uuid.New().String()[:8]

	admin, err := pgx.Connect(ctx, connString)
	require.NoError(t, err, "Failed to connect to test database")
	_, err = admin.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)

	cfg, err := pgxpool.ParseConfig(connString)
	require.NoError(t, err)
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, postgres.Migrate(ctx, pool))

	t.Cleanup(func() {
		pool.Close()
		_, _ = admin.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
		_ = admin.Close(context.Background())
	})
	return pool
}

func TestPostgresRepository_Messages(t *testing.T) {
	repo := postgres.NewWithPool(newTestPool(t))
	ctx := context.Background()

	n, err := repo.CountMessages(ctx, "alice", "inbox")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	for i := 0; i < 3; i++ {
		msg := &sealedlog.Message{
			Owner:     "alice",
			Topic:     "inbox",
			ObjectKey: fmt.Sprintf("k%d", i),
			Size:      64,
			Checksum:  "abc",
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, repo.AppendMessage(ctx, msg))
		assert.Equal(t, uint64(i), msg.Index)
	}
	require.NoError(t, repo.AppendMessage(ctx, &sealedlog.Message{Owner: "alice", Topic: "a\x00b", CreatedAt: time.Now()}))

	n, err = repo.CountMessages(ctx, "alice", "inbox")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	msg, err := repo.GetMessage(ctx, "alice", "inbox", 2)
	require.NoError(t, err)
	assert.Equal(t, "k2", msg.ObjectKey)
	assert.Equal(t, int64(64), msg.Size)

	_, err = repo.GetMessage(ctx, "alice", "inbox", 3)
	assert.ErrorIs(t, err, sealedlog.ErrIndexOutOfBounds)

	topics, err := repo.ListTopics(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"inbox", "a\x00b"}, topics)
}

func TestPostgresRepository_ConcurrentAppend(t *testing.T) {
	repo := postgres.NewWithPool(newTestPool(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.AppendMessage(ctx, &sealedlog.Message{Owner: "alice", Topic: "t", CreatedAt: time.Now()}))
		}()
	}
	wg.Wait()

	n, err := repo.CountMessages(ctx, "alice", "t")
	require.NoError(t, err)
	assert.Equal(t, uint64(20), n)
	for i := uint64(0); i < n; i++ {
		_, err := repo.GetMessage(ctx, "alice", "t", i)
		assert.NoError(t, err)
	}
}

func TestPostgresRepository_KeyRecord(t *testing.T) {
	repo := postgres.NewWithPool(newTestPool(t))
	ctx := context.Background()

	_, err := repo.GetKeyRecord(ctx)
	assert.ErrorIs(t, err, sealedlog.ErrKeyRecordNotFound)

	now := time.Now().UTC()
	info := &sealedlog.InstanceInfo{InstanceID: "i-1", Initializer: "admin", Profile: sealedlog.ProfileLight, CreatedAt: now}
	require.NoError(t, repo.Initialize(ctx, info, &sealedlog.KeyRecord{KeyMaterial: "k1", Administrator: "admin", UpdatedAt: now}))
	require.NoError(t, repo.Initialize(ctx, &sealedlog.InstanceInfo{InstanceID: "i-2", Initializer: "x", CreatedAt: now},
		&sealedlog.KeyRecord{KeyMaterial: "evil", Administrator: "x", UpdatedAt: now}))

	got, err := repo.GetInstance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "i-1", got.InstanceID)
	assert.Equal(t, sealedlog.ProfileLight, got.Profile)

	err = repo.SwapKeyRecord(ctx, "x", &sealedlog.KeyRecord{KeyMaterial: "evil", Administrator: "x", UpdatedAt: now})
	assert.ErrorIs(t, err, sealedlog.ErrUnauthorized)

	require.NoError(t, repo.SwapKeyRecord(ctx, "admin", &sealedlog.KeyRecord{KeyMaterial: "k2", Administrator: "bob", UpdatedAt: now}))
	rec, err := repo.GetKeyRecord(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k2", rec.KeyMaterial)
	assert.Equal(t, sealedlog.Identity("bob"), rec.Administrator)
}
