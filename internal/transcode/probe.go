package transcode

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"phono/internal/config"
)

// ProbeDuration asks ffprobe for a file's duration in seconds. The scanner
// calls this while indexing; a probe failure is reported but tracks remain
// usable without a duration.
func ProbeDuration(ctx context.Context, cfg *config.Config, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	cmd := commandContext(ctx, cfg.FFprobeBinary(), args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	raw := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", raw, err)
	}
	return duration, nil
}
