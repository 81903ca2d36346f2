package storage

import (
	"testing"

	"github.com/mod/kadcore/persist"
)

func TestFileBackendRoundTrip(t *testing.T) {
	b, err := NewMemFileBackend("/data")
	if err != nil {
		t.Fatalf("NewMemFileBackend: %v", err)
	}
	defer b.Close()

	if err := b.Store("routing/snapshot", []byte("hello world")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := b.Fetch("routing/snapshot")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("Fetch = %q, want %q", got, "hello world")
	}
}

func TestFileBackendNotFound(t *testing.T) {
	b, _ := NewMemFileBackend("/data")
	if _, err := b.Fetch("missing"); err != persist.ErrNotFound {
		t.Fatalf("Fetch error = %v, want ErrNotFound", err)
	}
}

func TestFileBackendRemoveIsIdempotent(t *testing.T) {
	b, _ := NewMemFileBackend("/data")
	b.Store("k", []byte("v"))
	if err := b.Remove("k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := b.Remove("k"); err != nil {
		t.Fatalf("Remove missing key should be a no-op, got: %v", err)
	}
}

func TestFileBackendKeysPrefix(t *testing.T) {
	b, _ := NewMemFileBackend("/data")
	b.Store("routing/a", []byte("1"))
	b.Store("routing/b", []byte("2"))
	b.Store("values/c", []byte("3"))

	keys, err := b.Keys("routing/")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("Keys = %v, want 2 entries", keys)
	}
}
