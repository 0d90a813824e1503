package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/tendant/sealed-log/pkg/sealedlog"
)

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("boom")
}

func TestFSBackend_BasicOps(t *testing.T) {
	tmp := t.TempDir()
	backend, err := New(Config{BaseDir: tmp})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}

	ctx := context.Background()
	key := "messages/ab/abcdef/012345/m1"

	data := []byte{0x00, 0x10, 0xff, 0x7f}
	if err := backend.Upload(ctx, key, bytes.NewReader(data)); err != nil {
		t.Fatalf("upload: %v", err)
	}

	rc, err := backend.Download(ctx, key)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(got, data) {
		t.Fatalf("downloaded %x, want %x", got, data)
	}

	if _, err := os.Stat(filepath.Join(tmp, filepath.FromSlash(key))); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	if err := backend.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := backend.Download(ctx, key); !errors.Is(err, sealedlog.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound after delete, got %v", err)
	}
}

func TestFSBackend_FailedUploadLeavesNothing(t *testing.T) {
	tmp := t.TempDir()
	backend, err := New(Config{BaseDir: tmp})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}

	key := "messages/x/y"
	if err := backend.Upload(context.Background(), key, failingReader{}); err == nil {
		t.Fatal("expected upload error")
	}

	entries, err := os.ReadDir(filepath.Join(tmp, "messages"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no leftovers, found %d entries", len(entries))
	}
}

func TestFSBackend_RejectsEscapingKeys(t *testing.T) {
	backend, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}

	for _, key := range []string{"../outside", "a/../../outside", ""} {
		if err := backend.Upload(context.Background(), key, bytes.NewReader([]byte("x"))); err == nil {
			t.Errorf("expected error for key %q", key)
		}
	}
}

func TestFSBackend_RequiresBaseDir(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty base dir")
	}
}
