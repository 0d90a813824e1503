package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/sealed-log/pkg/sealedlog"
	"github.com/tendant/sealed-log/pkg/sealedlog/repo/sqlite"
)

func openTestRepo(t *testing.T, path string) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_Messages(t *testing.T) {
	repo := openTestRepo(t, filepath.Join(t.TempDir(), "sealed.db"))
	ctx := context.Background()

	n, err := repo.CountMessages(ctx, "alice", "inbox")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	created := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	for i := 0; i < 3; i++ {
		msg := &sealedlog.Message{
			Owner:     "alice",
			Topic:     "inbox",
			ObjectKey: fmt.Sprintf("k%d", i),
			Size:      int64(40 + i),
			Checksum:  "deadbeef",
			CreatedAt: created,
		}
		require.NoError(t, repo.AppendMessage(ctx, msg))
		assert.Equal(t, uint64(i), msg.Index)
	}

	n, err = repo.CountMessages(ctx, "alice", "inbox")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	msg, err := repo.GetMessage(ctx, "alice", "inbox", 1)
	require.NoError(t, err)
	assert.Equal(t, "k1", msg.ObjectKey)
	assert.Equal(t, int64(41), msg.Size)
	assert.Equal(t, "deadbeef", msg.Checksum)
	assert.True(t, created.Equal(msg.CreatedAt))

	_, err = repo.GetMessage(ctx, "alice", "inbox", 3)
	assert.ErrorIs(t, err, sealedlog.ErrIndexOutOfBounds)

	_, err = repo.GetMessage(ctx, "alice", "inbox", ^uint64(0))
	assert.ErrorIs(t, err, sealedlog.ErrIndexOutOfBounds)
}

func TestSQLiteRepository_PartitionIsolation(t *testing.T) {
	repo := openTestRepo(t, filepath.Join(t.TempDir(), "sealed.db"))
	ctx := context.Background()

	require.NoError(t, repo.AppendMessage(ctx, &sealedlog.Message{Owner: "alice", Topic: "t", CreatedAt: time.Now()}))
	require.NoError(t, repo.AppendMessage(ctx, &sealedlog.Message{Owner: "alice", Topic: "t2", CreatedAt: time.Now()}))
	require.NoError(t, repo.AppendMessage(ctx, &sealedlog.Message{Owner: "bob", Topic: "t", CreatedAt: time.Now()}))
	require.NoError(t, repo.AppendMessage(ctx, &sealedlog.Message{Owner: "alice", Topic: "with\x00nul", CreatedAt: time.Now()}))

	for _, tc := range []struct {
		owner sealedlog.Identity
		topic string
		want  uint64
	}{
		{"alice", "t", 1},
		{"alice", "t2", 1},
		{"bob", "t", 1},
		{"bob", "t2", 0},
		{"alice", "with\x00nul", 1},
		{"alice", "with", 0},
	} {
		n, err := repo.CountMessages(ctx, tc.owner, tc.topic)
		require.NoError(t, err)
		assert.Equal(t, tc.want, n, "%s/%q", tc.owner, tc.topic)
	}

	topics, err := repo.ListTopics(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"t", "t2", "with\x00nul"}, topics)
}

func TestSQLiteRepository_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sealed.db")
	ctx := context.Background()

	repo, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, repo.AppendMessage(ctx, &sealedlog.Message{Owner: "alice", Topic: "t", ObjectKey: "k0", CreatedAt: time.Now()}))
	require.NoError(t, repo.Initialize(ctx,
		&sealedlog.InstanceInfo{InstanceID: "i-1", Initializer: "admin", Profile: sealedlog.ProfileFull, CreatedAt: time.Now()},
		&sealedlog.KeyRecord{KeyMaterial: "k1", Administrator: "admin", UpdatedAt: time.Now()}))
	require.NoError(t, repo.Close())

	repo = openTestRepo(t, path)
	msg := &sealedlog.Message{Owner: "alice", Topic: "t", ObjectKey: "k1", CreatedAt: time.Now()}
	require.NoError(t, repo.AppendMessage(ctx, msg))
	assert.Equal(t, uint64(1), msg.Index)

	info, err := repo.GetInstance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "i-1", info.InstanceID)
	assert.Equal(t, sealedlog.ProfileFull, info.Profile)
}

func TestSQLiteRepository_KeyRecord(t *testing.T) {
	repo := openTestRepo(t, filepath.Join(t.TempDir(), "sealed.db"))
	ctx := context.Background()

	_, err := repo.GetKeyRecord(ctx)
	assert.ErrorIs(t, err, sealedlog.ErrKeyRecordNotFound)
	_, err = repo.GetInstance(ctx)
	assert.ErrorIs(t, err, sealedlog.ErrInstanceNotFound)

	err = repo.SwapKeyRecord(ctx, "admin", &sealedlog.KeyRecord{KeyMaterial: "k", Administrator: "admin"})
	assert.ErrorIs(t, err, sealedlog.ErrKeyRecordNotFound)

	now := time.Now()
	require.NoError(t, repo.Initialize(ctx,
		&sealedlog.InstanceInfo{InstanceID: "i-1", Initializer: "admin", Profile: sealedlog.ProfileFull, CreatedAt: now},
		&sealedlog.KeyRecord{KeyMaterial: "k1", Administrator: "admin", UpdatedAt: now}))
	require.NoError(t, repo.Initialize(ctx,
		&sealedlog.InstanceInfo{InstanceID: "i-2", Initializer: "mallory", Profile: sealedlog.ProfileNone, CreatedAt: now},
		&sealedlog.KeyRecord{KeyMaterial: "evil", Administrator: "mallory", UpdatedAt: now}))

	rec, err := repo.GetKeyRecord(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k1", rec.KeyMaterial)
	assert.Equal(t, sealedlog.Identity("admin"), rec.Administrator)

	err = repo.SwapKeyRecord(ctx, "mallory", &sealedlog.KeyRecord{KeyMaterial: "evil", Administrator: "mallory", UpdatedAt: now})
	assert.ErrorIs(t, err, sealedlog.ErrUnauthorized)

	require.NoError(t, repo.SwapKeyRecord(ctx, "admin", &sealedlog.KeyRecord{KeyMaterial: "k2", Administrator: "bob", UpdatedAt: now}))
	rec, err = repo.GetKeyRecord(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k2", rec.KeyMaterial)
	assert.Equal(t, sealedlog.Identity("bob"), rec.Administrator)
}
