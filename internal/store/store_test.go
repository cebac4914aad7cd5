package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// exerciseKV checks the behaviour every backend must share.
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, err := kv.Get(ctx, "history"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store: expected ErrNotFound, got %v", err)
	}

	if err := kv.Set(ctx, "history", []byte(`[{"barcode":"1"}]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := kv.Get(ctx, "history")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte(`[{"barcode":"1"}]`)) {
		t.Fatalf("Get = %s", got)
	}

	if err := kv.Set(ctx, "history", []byte(`[]`)); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err = kv.Get(ctx, "history")
	if err != nil || string(got) != `[]` {
		t.Fatalf("Get after overwrite = %s, %v", got, err)
	}

	if err := kv.Set(ctx, "products", []byte(`[]`)); err != nil {
		t.Fatalf("Set second key: %v", err)
	}

	if err := kv.Delete(ctx, "history"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get(ctx, "history"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Delete: expected ErrNotFound, got %v", err)
	}
	if _, err := kv.Get(ctx, "products"); err != nil {
		t.Fatalf("Delete removed the wrong key: %v", err)
	}

	if err := kv.Delete(ctx, "history"); err != nil {
		t.Fatalf("Delete of absent key: %v", err)
	}

	// cleanup for shared backends
	_ = kv.Delete(ctx, "products")
}

func TestMemory(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	value := []byte("abc")
	if err := m.Set(ctx, "k", value); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value[0] = 'x'
	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller buffer: %s", got)
	}
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer s.Close()
	exerciseKV(t, s)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Set(context.Background(), "@yuka/history", []byte("[]")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "_yuka_history.json" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected files: %v", names)
	}
}

func TestBolt(t *testing.T) {
	dir := t.TempDir()
	s, err := NewBolt(dir)
	if err != nil {
		t.Fatalf("NewBolt: %v", err)
	}
	exerciseKV(t, s)

	if err := s.Set(context.Background(), "history", []byte("[1]")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// reopen to check durability
	s, err = NewBolt(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(context.Background(), "history")
	if err != nil || string(got) != "[1]" {
		t.Fatalf("after reopen Get = %s, %v", got, err)
	}
}

func TestSQLite(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSQLite(dir)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer s.Close()
	exerciseKV(t, s)

	if _, err := os.Stat(filepath.Join(dir, "nutriscan.db")); err != nil {
		t.Fatalf("database file missing: %v", err)
	}
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	s, err := NewRedis(context.Background(), addr)
	if err != nil {
		t.Fatalf("redis unavailable: %v", err)
	}
	defer s.Close()
	exerciseKV(t, s)
}

func TestRedisUnreachable(t *testing.T) {
	ctx := context.Background()
	s := NewRedisFromClient(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	}))
	defer s.Close()

	_, err := s.Get(ctx, "history")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Get: expected a connection error, got %v", err)
	}
	if err := s.Set(ctx, "history", []byte("[]")); err == nil {
		t.Fatal("Set: expected a connection error")
	}
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := NewPostgres(context.Background(), dsn)
	if err != nil {
		t.Fatalf("database unavailable: %v", err)
	}
	defer s.Close()
	exerciseKV(t, s)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []string{"", BackendBolt, BackendSQLite, BackendFile, BackendMemory} {
		kv, err := Open(ctx, Options{Backend: backend, DataDir: t.TempDir()})
		if err != nil {
			t.Fatalf("Open(%q): %v", backend, err)
		}
		kv.Close()
	}

	if _, err := Open(ctx, Options{Backend: "floppy"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if _, err := Open(ctx, Options{Backend: BackendPostgres}); err == nil {
		t.Fatal("expected error for postgres without DATABASE_URL")
	}
}
