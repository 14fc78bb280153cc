package snapshot

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	keyA = "123e4567-e89b-12d3-a456-426614174000"
	keyB = "223e4567-e89b-12d3-a456-426614174000"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Read(ctx, keyA); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read(missing) = %v; want ErrNotFound", err)
	}
	if err := store.Write(ctx, keyA, []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := store.Write(ctx, keyA, []byte(`{"v":2}`)); err != nil {
		t.Fatalf("Write(overwrite) failed: %v", err)
	}
	got, err := store.Read(ctx, keyA)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if string(got) != `{"v":2}` {
		t.Fatalf("Read() = %s; want overwritten value", got)
	}

	time.Sleep(20 * time.Millisecond)
	if err := store.Write(ctx, keyB, []byte(`{}`)); err != nil {
		t.Fatalf("Write(keyB) failed: %v", err)
	}
	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Key != keyB || entries[1].Key != keyA {
		t.Fatalf("List() = %+v; want keyB then keyA", entries)
	}
	if entries[1].SizeBytes != len(`{"v":2}`) {
		t.Fatalf("List() size = %d; want %d", entries[1].SizeBytes, len(`{"v":2}`))
	}

	if err := store.Delete(ctx, keyA); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := store.Delete(ctx, keyA); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete(twice) = %v; want ErrNotFound", err)
	}
	if err := store.Write(ctx, "../escape", nil); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Write(invalid key) = %v; want ErrInvalidKey", err)
	}
	if _, err := store.Read(ctx, "demo"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Read(invalid key) = %v; want ErrInvalidKey", err)
	}
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}
	exerciseStore(t, store)

	leftovers, _ := filepath.Glob(filepath.Join(store.Dir(), "*.tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("temporary files left behind: %v", leftovers)
	}
}

func TestFileStoreListSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}
	entries, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("List() = %+v; want no entries", entries)
	}
}

func TestFileStoreLogsTmpCleanupFailure(t *testing.T) {
	dir := t.TempDir()
	store := &FileStore{dir: dir}

	// A non-empty directory in place of the temp file makes both the
	// write and its cleanup fail.
	tmp := filepath.Join(dir, keyA+".json.tmp")
	if err := os.MkdirAll(filepath.Join(tmp, "busy"), 0o755); err != nil {
		t.Fatalf("os.MkdirAll() failed: %v", err)
	}

	var buf bytes.Buffer
	oldLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() {
		slog.SetDefault(oldLogger)
	})

	if err := store.Write(context.Background(), keyA, []byte(`{}`)); err == nil {
		t.Fatal("Write() = nil; want error")
	}
	if !strings.Contains(buf.String(), "snapshot tmp cleanup failed") {
		t.Fatalf("expected tmp cleanup debug log, got %q", buf.String())
	}
	if _, err := os.Stat(filepath.Join(dir, keyA+".json")); !os.IsNotExist(err) {
		t.Fatalf("final file exists after failed write: %v", err)
	}
}

func TestFileStoreHonoursCancelledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Write(ctx, keyA, []byte(`{}`)); !errors.Is(err, context.Canceled) {
		t.Fatalf("Write() = %v; want context.Canceled", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	exerciseStore(t, store)
}
