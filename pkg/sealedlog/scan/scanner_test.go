package scan_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/sealed-log/pkg/sealedlog"
	"github.com/tendant/sealed-log/pkg/sealedlog/repo/memory"
	"github.com/tendant/sealed-log/pkg/sealedlog/scan"
	memorystorage "github.com/tendant/sealed-log/pkg/sealedlog/storage/memory"
)

func payload(n int, step byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)*step + 1
	}
	return b
}

func newService(t *testing.T, profile sealedlog.Profile) (sealedlog.Service, *memorystorage.Backend) {
	t.Helper()
	store := memorystorage.New().(*memorystorage.Backend)
	classifier, err := sealedlog.NewClassifier(profile)
	require.NoError(t, err)
	svc, err := sealedlog.New(
		sealedlog.WithRepository(memory.New()),
		sealedlog.WithBlobStore(store),
		sealedlog.WithClassifier(classifier),
		sealedlog.WithInitialKeyRecord("pk", "alice"),
	)
	require.NoError(t, err)
	return svc, store
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScan_VisitsEveryMessage(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, sealedlog.ProfileFull)

	for _, topic := range []string{"b", "a", "a"} {
		_, err := svc.Submit(ctx, "bob", topic, payload(64, 7))
		require.NoError(t, err)
	}
	_, err := svc.Submit(ctx, "carol", "x", payload(64, 7))
	require.NoError(t, err)

	var seen []scan.MessageRef
	result, err := scan.New(svc, quietLogger()).Scan(ctx, scan.Options{
		Owners: []sealedlog.Identity{"bob", "carol", "nobody"},
		Processor: scan.ProcessorFunc(func(_ context.Context, ref scan.MessageRef, p []byte) error {
			assert.Len(t, p, 64)
			seen = append(seen, ref)
			return nil
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(4), result.TotalFound)
	assert.Equal(t, int64(4), result.TotalProcessed)
	assert.Zero(t, result.TotalFailed)
	assert.Equal(t, []scan.MessageRef{
		{Owner: "bob", Topic: "a", Index: 0},
		{Owner: "bob", Topic: "a", Index: 1},
		{Owner: "bob", Topic: "b", Index: 0},
		{Owner: "carol", Topic: "x", Index: 0},
	}, seen)
}

func TestScan_TopicFilter(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, sealedlog.ProfileFull)
	for _, topic := range []string{"a", "b"} {
		_, err := svc.Submit(ctx, "bob", topic, payload(64, 7))
		require.NoError(t, err)
	}

	result, err := scan.New(svc, quietLogger()).Scan(ctx, scan.Options{
		Owners: []sealedlog.Identity{"bob"},
		Topics: []string{"b", "missing"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.TotalFound)
	assert.Equal(t, int64(1), result.TotalProcessed)
}

func TestScan_ReportsCorruption(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, sealedlog.ProfileFull)

	_, err := svc.Submit(ctx, "bob", "t", payload(64, 7))
	require.NoError(t, err)
	msg, err := svc.Submit(ctx, "bob", "t", payload(64, 7))
	require.NoError(t, err)
	store.Corrupt(msg.ObjectKey, payload(64, 3))

	var progress [][2]int64
	result, err := scan.New(svc, quietLogger()).Scan(ctx, scan.Options{
		Owners: []sealedlog.Identity{"bob"},
		OnProgress: func(processed, failed int64) {
			progress = append(progress, [2]int64{processed, failed})
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.TotalProcessed)
	assert.Equal(t, int64(1), result.TotalFailed)
	assert.Equal(t, int64(1), result.Corrupted)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, scan.MessageRef{Owner: "bob", Topic: "t", Index: 1}, result.Failures[0].Ref)
	assert.Equal(t, [][2]int64{{1, 1}}, progress)
}

func TestScan_ReclassifyUnderStricterProfile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, sealedlog.ProfileNone)

	_, err := svc.Submit(ctx, "bob", "t", []byte("a readable note that the none profile let through"))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "bob", "t", payload(64, 7))
	require.NoError(t, err)

	result, err := scan.New(svc, quietLogger()).Scan(ctx, scan.Options{
		Owners:    []sealedlog.Identity{"bob"},
		Processor: scan.ReclassifyProcessor{Classifier: sealedlog.FullClassifier{}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.TotalProcessed)
	assert.Equal(t, int64(1), result.TotalFailed)
	assert.Zero(t, result.Corrupted)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, uint64(0), result.Failures[0].Ref.Index)
	assert.Contains(t, result.Failures[0].Err, string(sealedlog.ReasonLooksLikePlaintext))
}

type failingSource struct{ scan.Source }

func (failingSource) ListTopics(context.Context, sealedlog.Identity) ([]string, error) {
	return nil, errors.New("backend down")
}

func TestScan_ListErrorAborts(t *testing.T) {
	_, err := scan.New(failingSource{}, nil).Scan(context.Background(), scan.Options{
		Owners: []sealedlog.Identity{"bob"},
	})
	assert.ErrorContains(t, err, "backend down")
}

func TestScan_Cancelled(t *testing.T) {
	svc, _ := newService(t, sealedlog.ProfileFull)
	_, err := svc.Submit(context.Background(), "bob", "t", payload(64, 7))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = scan.New(svc, quietLogger()).Scan(ctx, scan.Options{Owners: []sealedlog.Identity{"bob"}})
	assert.ErrorIs(t, err, context.Canceled)
}
