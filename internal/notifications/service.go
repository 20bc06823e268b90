package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"phono/internal/config"
)

const userAgent = "Phono/0.1.0"

// Service defines the notification surface exposed to the worker pool and CLI.
type Service interface {
	NotifyStreamReady(ctx context.Context, trackTitle string) error
	NotifyScanCompleted(ctx context.Context, indexed, pruned int) error
	NotifyJobFailed(ctx context.Context, kind, detail string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.NtfyRequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyStreamReady(ctx context.Context, trackTitle string) error {
	trackTitle = strings.TrimSpace(trackTitle)
	if trackTitle == "" {
		trackTitle = "unknown track"
	}
	data := payload{
		title:   "Phono - Stream Ready",
		message: fmt.Sprintf("Ready to stream: %s", trackTitle),
		tags:    []string{"phono", "transcode", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyScanCompleted(ctx context.Context, indexed, pruned int) error {
	message := fmt.Sprintf("Library scan complete: %d tracks indexed", indexed)
	if pruned > 0 {
		message = fmt.Sprintf("%s, %d pruned", message, pruned)
	}
	data := payload{
		title:   "Phono - Scan Complete",
		message: message,
		tags:    []string{"phono", "scan", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, kind, detail string) error {
	var builder strings.Builder
	builder.WriteString("Job failed")
	if kind = strings.TrimSpace(kind); kind != "" {
		builder.WriteString(" (")
		builder.WriteString(kind)
		builder.WriteString(")")
	}
	builder.WriteString(": ")
	if detail = strings.TrimSpace(detail); detail != "" {
		builder.WriteString(detail)
	} else {
		builder.WriteString("unknown error")
	}

	data := payload{
		title:    "Phono - Job Failed",
		message:  builder.String(),
		tags:     []string{"phono", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Phono - Test",
		message:  "Notification system test",
		tags:     []string{"phono", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyStreamReady(context.Context, string) error       { return nil }
func (noopService) NotifyScanCompleted(context.Context, int, int) error   { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error                { return nil }
