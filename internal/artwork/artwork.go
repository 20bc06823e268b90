// Package artwork locates album cover images next to library tracks and
// caches resized thumbnails of them. Thumbnails are content-addressed: the
// cache file name is the SHA256 of the source image plus the requested size,
// so identical covers across albums share one cached copy and a replaced
// cover never serves stale pixels.
package artwork

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"phono/internal/config"
	"phono/internal/fileutil"
	"phono/internal/logging"
	"phono/internal/services"
)

var coverNames = []string{
	"cover.jpg", "cover.png", "folder.jpg", "folder.png", "front.jpg", "front.png",
}

// Service resolves cover art for library tracks.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates an artwork Service.
func New(cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, logger: logger.With(logging.String(logging.FieldComponent, "artwork"))}
}

// Enabled reports whether thumbnail generation is turned on.
func (s *Service) Enabled() bool {
	return s.cfg.Artwork.Enabled
}

// FindCover returns the cover image path for a track given its
// library-relative path, or services.ErrNotFound when the track's directory
// holds no recognized cover file.
func (s *Service) FindCover(trackRelPath string) (string, error) {
	dir := filepath.Join(s.cfg.Paths.LibraryDir, filepath.Dir(trackRelPath))
	for _, name := range coverNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", services.Wrap(services.ErrNotFound, "artwork", "find", fmt.Sprintf("no cover art beside %q", trackRelPath), nil)
}

// Thumbnail returns the path of a cached thumbnail for the given cover
// image at the requested size, generating it on first use. The size must be
// one of the configured thumbnail sizes.
func (s *Service) Thumbnail(coverPath string, size int) (string, error) {
	if !s.sizeAllowed(size) {
		return "", services.Wrap(services.ErrInvalidPath, "artwork", "thumbnail", fmt.Sprintf("size %d not configured", size), nil)
	}

	hash, err := fileutil.HashFile(coverPath)
	if err != nil {
		return "", fmt.Errorf("hash cover: %w", err)
	}

	thumbPath := filepath.Join(s.thumbDir(), fmt.Sprintf("%s_%d.jpg", hash, size))
	if _, err := os.Stat(thumbPath); err == nil {
		return thumbPath, nil
	}

	src, err := imaging.Open(coverPath, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("open cover: %w", err)
	}
	thumb := imaging.Fit(src, size, size, imaging.Lanczos)

	if err := os.MkdirAll(s.thumbDir(), 0o755); err != nil {
		return "", fmt.Errorf("create thumbnail dir: %w", err)
	}

	// Write-then-rename so a concurrent request never reads a half-written
	// thumbnail. The temp name keeps the .jpg extension because the encoder
	// picks its format from it.
	tmpPath := strings.TrimSuffix(thumbPath, ".jpg") + ".partial.jpg"
	if err := imaging.Save(thumb, tmpPath, imaging.JPEGQuality(85)); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("save thumbnail: %w", err)
	}
	if err := os.Rename(tmpPath, thumbPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("publish thumbnail: %w", err)
	}

	s.logger.Debug("thumbnail generated",
		logging.String("cover", filepath.Base(coverPath)),
		logging.Int("size", size))
	return thumbPath, nil
}

// TrackThumbnail combines lookup and generation for a track's cover.
func (s *Service) TrackThumbnail(trackRelPath string, size int) (string, error) {
	cover, err := s.FindCover(trackRelPath)
	if err != nil {
		return "", err
	}
	return s.Thumbnail(cover, size)
}

func (s *Service) sizeAllowed(size int) bool {
	for _, allowed := range s.cfg.Artwork.ThumbnailSizes {
		if allowed == size {
			return true
		}
	}
	return false
}

func (s *Service) thumbDir() string {
	return filepath.Join(s.cfg.Paths.CacheDir, "artwork")
}

// IsImagePath reports whether a file name looks like a supported cover
// image.
func IsImagePath(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
