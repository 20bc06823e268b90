package services_test

import (
	"errors"
	"strings"
	"testing"

	"phono/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("open manifest: permission denied")
	err := services.Wrap(services.ErrNotReady, "artifacts", "serve", "manifest unavailable", base)

	if !errors.Is(err, services.ErrNotReady) {
		t.Fatalf("expected ErrNotReady classification, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause to survive, got %v", err)
	}
	for _, want := range []string{"artifacts", "serve", "manifest unavailable"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in message, got %q", want, err.Error())
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "jobs", "claim", "", errors.New("disk I/O error"))
	if !errors.Is(err, services.ErrStorageUnavailable) {
		t.Fatalf("expected storage classification for nil marker, got %v", err)
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := services.Wrap(services.ErrInvalidPath, "artifacts", "resolve", "path escapes cache root", nil)
	if !errors.Is(err, services.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	if strings.Contains(err.Error(), "%!w") {
		t.Fatalf("malformed wrap output: %q", err.Error())
	}
}
