// Package artifacts serves completed transcode output from the cache
// directory. Nothing is served unless a done job vouches for the resource
// key, so partially written directories from a crashed producer are never
// exposed, and every file path is containment-checked against the cache
// root before opening.
package artifacts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"phono/internal/config"
	"phono/internal/jobs"
	"phono/internal/logging"
	"phono/internal/services"
)

// Content types for the files an artifact directory may hold.
const (
	ContentTypeManifest = "application/vnd.apple.mpegurl"
	ContentTypeSegment  = "video/mp2t"
	ContentTypeBinary   = "application/octet-stream"
)

// Server resolves and opens artifact files for streaming.
type Server struct {
	cfg    *config.Config
	jobs   *jobs.Store
	logger *slog.Logger
}

// New creates an artifact Server.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		jobs:   store,
		logger: logger.With(logging.String(logging.FieldComponent, "artifacts")),
	}
}

// Open returns a streaming handle and content type for one file of a
// completed artifact. The caller closes the file. Failure modes:
// ErrInvalidPath for traversal attempts, ErrNotReady when no done job
// covers the key, ErrNotFound when the job exists but the file does not.
func (s *Server) Open(ctx context.Context, resourceKey, fileName string) (*os.File, string, error) {
	path, err := s.resolve(resourceKey, fileName)
	if err != nil {
		return nil, "", err
	}

	done, err := s.jobs.DoneByResourceKey(ctx, jobs.KindTranscode, resourceKey)
	if err != nil {
		return nil, "", err
	}
	if done == nil {
		return nil, "", services.Wrap(services.ErrNotReady, "artifacts", "open",
			fmt.Sprintf("no completed transcode for %q", resourceKey), nil)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", services.Wrap(services.ErrNotFound, "artifacts", "open",
				fmt.Sprintf("%q missing from artifact %q", fileName, resourceKey), err)
		}
		return nil, "", fmt.Errorf("open artifact file: %w", err)
	}
	return f, ContentType(fileName), nil
}

// Ready reports whether a done job covers the resource key.
func (s *Server) Ready(ctx context.Context, resourceKey string) (bool, error) {
	done, err := s.jobs.DoneByResourceKey(ctx, jobs.KindTranscode, resourceKey)
	if err != nil {
		return false, err
	}
	return done != nil, nil
}

// resolve joins the cache root, key, and file name, then fails closed
// unless the cleaned result is still inside the cache root.
func (s *Server) resolve(resourceKey, fileName string) (string, error) {
	if resourceKey == "" || fileName == "" {
		return "", services.Wrap(services.ErrInvalidPath, "artifacts", "resolve", "empty resource key or file name", nil)
	}
	// Artifact directories are flat: a valid file reference is a bare name.
	if fileName != filepath.Base(fileName) {
		return "", services.Wrap(services.ErrInvalidPath, "artifacts", "resolve",
			fmt.Sprintf("%q is not a bare file name", fileName), nil)
	}

	root, err := filepath.Abs(s.cfg.Paths.CacheDir)
	if err != nil {
		return "", fmt.Errorf("resolve cache root: %w", err)
	}
	joined := filepath.Join(root, resourceKey, fileName)
	resolved := filepath.Clean(joined)

	if !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		s.logger.Warn("rejected artifact path outside cache root",
			logging.String(logging.FieldResourceKey, resourceKey),
			logging.String("file", fileName))
		return "", services.Wrap(services.ErrInvalidPath, "artifacts", "resolve",
			fmt.Sprintf("%q escapes the cache directory", fileName), nil)
	}
	// The file must also stay inside the key's own directory.
	keyDir := filepath.Join(root, resourceKey)
	if filepath.Dir(resolved) != keyDir {
		return "", services.Wrap(services.ErrInvalidPath, "artifacts", "resolve",
			fmt.Sprintf("%q escapes artifact %q", fileName, resourceKey), nil)
	}
	return resolved, nil
}

// ContentType selects a media type from an artifact file name.
func ContentType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".m3u8":
		return ContentTypeManifest
	case ".ts":
		return ContentTypeSegment
	default:
		return ContentTypeBinary
	}
}
