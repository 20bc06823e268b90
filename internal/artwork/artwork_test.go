package artwork

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"phono/internal/logging"
	"phono/internal/services"
	"phono/internal/testsupport"
)

func writeCover(t *testing.T, path string, width, height int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	img := imaging.New(width, height, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
	if err := imaging.Save(img, path); err != nil {
		t.Fatal(err)
	}
}

func TestFindCoverPrefersKnownNames(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := New(cfg, logging.NewNop())

	writeCover(t, filepath.Join(cfg.Paths.LibraryDir, "Artist/Album/cover.jpg"), 64, 64)

	cover, err := svc.FindCover("Artist/Album/01 track.flac")
	if err != nil {
		t.Fatalf("FindCover failed: %v", err)
	}
	if filepath.Base(cover) != "cover.jpg" {
		t.Fatalf("unexpected cover %q", cover)
	}
}

func TestFindCoverMissingIsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := New(cfg, logging.NewNop())

	if err := os.MkdirAll(filepath.Join(cfg.Paths.LibraryDir, "Artist/Bare"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := svc.FindCover("Artist/Bare/01 track.flac")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestThumbnailIsCachedByContent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := New(cfg, logging.NewNop())

	coverA := filepath.Join(cfg.Paths.LibraryDir, "A/Album/cover.jpg")
	coverB := filepath.Join(cfg.Paths.LibraryDir, "B/Album/cover.jpg")
	writeCover(t, coverA, 256, 256)
	if err := os.MkdirAll(filepath.Dir(coverB), 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(coverA)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(coverB, data, 0o644); err != nil {
		t.Fatal(err)
	}

	thumbA, err := svc.Thumbnail(coverA, 128)
	if err != nil {
		t.Fatalf("Thumbnail failed: %v", err)
	}
	thumbB, err := svc.Thumbnail(coverB, 128)
	if err != nil {
		t.Fatalf("Thumbnail failed: %v", err)
	}
	if thumbA != thumbB {
		t.Fatalf("identical covers should share a thumbnail: %q vs %q", thumbA, thumbB)
	}

	img, err := imaging.Open(thumbA)
	if err != nil {
		t.Fatalf("open thumbnail: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() > 128 || bounds.Dy() > 128 {
		t.Fatalf("thumbnail exceeds requested size: %v", bounds)
	}
}

func TestThumbnailRejectsUnconfiguredSize(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := New(cfg, logging.NewNop())

	cover := filepath.Join(cfg.Paths.LibraryDir, "A/Album/cover.jpg")
	writeCover(t, cover, 64, 64)

	if _, err := svc.Thumbnail(cover, 999); !errors.Is(err, services.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}

func TestIsImagePath(t *testing.T) {
	if !IsImagePath("cover.JPG") || !IsImagePath("folder.png") {
		t.Fatal("expected common image extensions to be recognized")
	}
	if IsImagePath("track.flac") {
		t.Fatal("audio files are not images")
	}
}
