// Package scanner walks the library directory and keeps the track catalog in
// sync with it. It runs as the producer for scan jobs and reports its
// statistics as the job result payload.
package scanner

import (
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"phono/internal/catalog"
	"phono/internal/config"
	"phono/internal/logging"
	"phono/internal/transcode"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
	".m4a":  true,
	".aac":  true,
	".wav":  true,
}

// Stats summarizes one library walk. Marshaled as the scan job's result.
type Stats struct {
	Scanned       int    `json:"scanned"`
	Indexed       int    `json:"indexed"`
	Pruned        int    `json:"pruned"`
	ProbeFailures int    `json:"probe_failures,omitempty"`
	Elapsed       string `json:"elapsed"`
}

// Scanner indexes library audio files into the catalog.
type Scanner struct {
	cfg      *config.Config
	catalog  *catalog.Store
	logger   *slog.Logger
	canProbe bool
}

// New creates a Scanner. Duration probing is skipped when ffprobe is not in
// PATH; tracks then index without a duration.
func New(cfg *config.Config, cat *catalog.Store, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	_, probeErr := exec.LookPath(cfg.FFprobeBinary())
	return &Scanner{
		cfg:      cfg,
		catalog:  cat,
		logger:   logger.With(logging.String(logging.FieldComponent, "scanner")),
		canProbe: probeErr == nil,
	}
}

// Scan walks the library, upserts every audio file into the catalog, and
// prunes rows whose files vanished. Paths are stored relative to the library
// root so the library can move without invalidating the catalog.
func (s *Scanner) Scan(ctx context.Context) (Stats, error) {
	started := time.Now()
	stats := Stats{}
	seen := make(map[string]struct{})

	root := s.cfg.Paths.LibraryDir
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !audioExtensions[ext] {
			return nil
		}
		stats.Scanned++

		info, err := entry.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		input := catalog.TrackInput{
			Path:      rel,
			Title:     deriveTitle(entry.Name()),
			Ext:       ext,
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		}
		input.Artist, input.Album = inferFromLayout(rel)

		if s.canProbe {
			duration, probeErr := transcode.ProbeDuration(ctx, s.cfg, path)
			if probeErr != nil {
				stats.ProbeFailures++
				s.logger.Debug("duration probe failed",
					logging.String("path", rel),
					logging.Error(probeErr))
			} else {
				input.DurationSeconds = duration
			}
		}

		if _, err := s.catalog.Upsert(ctx, input); err != nil {
			return err
		}
		seen[rel] = struct{}{}
		stats.Indexed++
		return nil
	})
	if err != nil {
		return stats, err
	}

	pruned, err := s.catalog.PruneExcept(ctx, seen)
	if err != nil {
		return stats, err
	}
	stats.Pruned = int(pruned)
	stats.Elapsed = time.Since(started).Round(time.Millisecond).String()

	s.logger.Info("library scan complete",
		logging.Int("scanned", stats.Scanned),
		logging.Int("indexed", stats.Indexed),
		logging.Int("pruned", stats.Pruned))
	return stats, nil
}

// Produce runs a scan and returns the stats as a JSON payload for the job
// result column.
func (s *Scanner) Produce(ctx context.Context) (string, error) {
	stats, err := s.Scan(ctx)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// inferFromLayout reads artist and album from the conventional
// Artist/Album/Track directory layout. Shallower layouts leave the missing
// fields empty.
func inferFromLayout(rel string) (artist, album string) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch {
	case len(parts) >= 3:
		return parts[0], parts[1]
	case len(parts) == 2:
		return parts[0], ""
	default:
		return "", ""
	}
}

// deriveTitle turns a file name into a display title: track-number prefix
// and separators stripped, then title-cased.
func deriveTitle(fileName string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	base = strings.TrimLeft(base, "0123456789")

	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		title = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	return cases.Title(language.Und).String(title)
}
