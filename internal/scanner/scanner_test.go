package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"phono/internal/logging"
	"phono/internal/testsupport"
)

func writeLibraryFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanIndexesAudioFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cat := testsupport.MustOpenCatalog(t, cfg)

	writeLibraryFile(t, cfg.Paths.LibraryDir, "The Band/First Album/01 opening track.flac")
	writeLibraryFile(t, cfg.Paths.LibraryDir, "The Band/First Album/02_second_track.mp3")
	writeLibraryFile(t, cfg.Paths.LibraryDir, "The Band/First Album/cover.jpg")
	writeLibraryFile(t, cfg.Paths.LibraryDir, "notes.txt")

	s := New(cfg, cat, logging.NewNop())
	stats, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if stats.Scanned != 2 || stats.Indexed != 2 {
		t.Fatalf("expected 2 audio files indexed, got %+v", stats)
	}

	track, err := cat.GetByPath(context.Background(), "The Band/First Album/01 opening track.flac")
	if err != nil {
		t.Fatalf("GetByPath failed: %v", err)
	}
	if track.Artist != "The Band" || track.Album != "First Album" {
		t.Fatalf("layout inference failed: %+v", track)
	}
	if track.Title != "Opening Track" {
		t.Fatalf("expected title-cased name, got %q", track.Title)
	}
	if track.Ext != ".flac" || track.SizeBytes != 5 {
		t.Fatalf("unexpected file metadata: %+v", track)
	}
}

func TestScanPrunesVanishedTracks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cat := testsupport.MustOpenCatalog(t, cfg)

	writeLibraryFile(t, cfg.Paths.LibraryDir, "a/b/keep.mp3")
	writeLibraryFile(t, cfg.Paths.LibraryDir, "a/b/gone.mp3")

	s := New(cfg, cat, logging.NewNop())
	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if err := os.Remove(filepath.Join(cfg.Paths.LibraryDir, "a/b/gone.mp3")); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if stats.Pruned != 1 {
		t.Fatalf("expected 1 pruned track, got %+v", stats)
	}
	count, err := cat.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 track after prune, got %d", count)
	}
}

func TestScanIsStableAcrossReruns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cat := testsupport.MustOpenCatalog(t, cfg)

	writeLibraryFile(t, cfg.Paths.LibraryDir, "x/y/track.ogg")

	s := New(cfg, cat, logging.NewNop())
	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	first, err := cat.GetByPath(context.Background(), "x/y/track.ogg")
	if err != nil {
		t.Fatalf("GetByPath failed: %v", err)
	}

	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	second, err := cat.GetByPath(context.Background(), "x/y/track.ogg")
	if err != nil {
		t.Fatalf("GetByPath failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("track identity changed across rescans: %d vs %d", first.ID, second.ID)
	}
}

func TestDeriveTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"01 opening track.flac", "Opening Track"},
		{"02_second_track.mp3", "Second Track"},
		{"some-song.ogg", "Some Song"},
		{"03.mp3", "03"},
	}
	for _, tc := range cases {
		if got := deriveTitle(tc.in); got != tc.want {
			t.Errorf("deriveTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
