package testsupport

import (
	"context"
	"testing"

	"phono/internal/catalog"
	"phono/internal/config"
	"phono/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenCatalog opens a catalog.Store for tests and registers cleanup.
func MustOpenCatalog(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue inserts a queued job for tests using the provided store.
func Enqueue(t testing.TB, store *jobs.Store, kind jobs.Kind, resourceKey string) int64 {
	t.Helper()

	id, err := store.Enqueue(context.Background(), kind, resourceKey, "test")
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return id
}
