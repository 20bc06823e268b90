// Package transcode runs ffmpeg to segment a library track into an HLS
// artifact under the cache directory. The output directory is named by the
// resource key and written atomically: segments land in a staging directory
// that is renamed into place only after ffmpeg exits cleanly, so the artifact
// server can trust any directory that exists under the cache root.
package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"phono/internal/config"
	"phono/internal/logging"
	"phono/internal/services"
)

// ManifestName is the playlist file every artifact directory contains.
const ManifestName = "index.m3u8"

// SegmentPattern names the numbered media segments ffmpeg emits.
const SegmentPattern = "segment_%05d.ts"

var commandContext = exec.CommandContext

// Transcoder invokes ffmpeg for transcode jobs.
type Transcoder struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a Transcoder bound to the daemon configuration.
func New(cfg *config.Config, logger *slog.Logger) *Transcoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcoder{cfg: cfg, logger: logger.With(logging.String(logging.FieldComponent, "transcode"))}
}

// Ready reports whether the ffmpeg binary can be found.
func (t *Transcoder) Ready() error {
	if _, err := exec.LookPath(t.cfg.FFmpegBinary()); err != nil {
		return services.Wrap(services.ErrProducerFailure, "transcode", "ready", fmt.Sprintf("%s not found in PATH", t.cfg.FFmpegBinary()), err)
	}
	return nil
}

// Transcode segments sourcePath into an HLS artifact directory named by
// resourceKey under the cache root and returns the final directory path.
// A stale staging directory from a previous crashed run is discarded first.
func (t *Transcoder) Transcode(ctx context.Context, sourcePath, resourceKey string) (string, error) {
	if resourceKey == "" {
		return "", services.Wrap(services.ErrInvalidPath, "transcode", "transcode", "empty resource key", nil)
	}

	finalDir := filepath.Join(t.cfg.Paths.CacheDir, resourceKey)
	stagingDir := finalDir + ".partial"

	if err := os.RemoveAll(stagingDir); err != nil {
		return "", fmt.Errorf("clear staging dir: %w", err)
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}

	timeout := time.Duration(t.cfg.Transcode.Timeout) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := t.buildArgs(sourcePath, stagingDir)
	t.logger.Info("starting transcode",
		logging.String(logging.FieldResourceKey, resourceKey),
		logging.String("source", sourcePath),
		logging.String("codec", t.cfg.Transcode.AudioCodec))

	started := time.Now()
	cmd := commandContext(runCtx, t.cfg.FFmpegBinary(), args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		_ = os.RemoveAll(stagingDir)
		detail := strings.TrimSpace(string(output))
		if runCtx.Err() == context.DeadlineExceeded {
			detail = fmt.Sprintf("timed out after %s", timeout)
		}
		return "", services.Wrap(services.ErrProducerFailure, "transcode", "transcode", detail, err)
	}

	if _, err := os.Stat(filepath.Join(stagingDir, ManifestName)); err != nil {
		_ = os.RemoveAll(stagingDir)
		return "", services.Wrap(services.ErrProducerFailure, "transcode", "transcode", "ffmpeg produced no manifest", err)
	}

	// Replace any previous artifact for this key wholesale. Keys are
	// version-sensitive, so a rerun for the same key reproduces identical
	// content and last-writer-wins is acceptable.
	if err := os.RemoveAll(finalDir); err != nil {
		_ = os.RemoveAll(stagingDir)
		return "", fmt.Errorf("clear artifact dir: %w", err)
	}
	if err := os.Rename(stagingDir, finalDir); err != nil {
		_ = os.RemoveAll(stagingDir)
		return "", fmt.Errorf("publish artifact dir: %w", err)
	}

	t.logger.Info("transcode complete",
		logging.String(logging.FieldResourceKey, resourceKey),
		logging.Duration("elapsed", time.Since(started)))
	return finalDir, nil
}

func (t *Transcoder) buildArgs(sourcePath, outputDir string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", sourcePath,
		"-vn",
		"-c:a", t.cfg.Transcode.AudioCodec,
		"-b:a", t.cfg.Transcode.AudioBitrate,
		"-f", "hls",
		"-hls_time", strconv.Itoa(t.cfg.Transcode.SegmentSeconds),
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(outputDir, SegmentPattern),
		filepath.Join(outputDir, ManifestName),
	}
}
