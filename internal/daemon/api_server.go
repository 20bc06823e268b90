package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"phono/internal/artifacts"
	"phono/internal/config"
	"phono/internal/jobs"
	"phono/internal/logging"
	"phono/internal/services"
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		token:  cfg.Paths.APIToken,
		logger: logger,
		daemon: d,
	}

	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return authMiddleware(srv.token, next)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tracks/{id}/stream", auth(srv.handleRequestStream))
	mux.HandleFunc("GET /api/tracks/{id}/stream/status", auth(srv.handleStreamStatus))
	mux.HandleFunc("GET /api/tracks/{id}/artwork", auth(srv.handleArtwork))
	mux.HandleFunc("GET /api/stream/{key}/{file}", auth(srv.handleArtifact))
	mux.HandleFunc("GET /api/queue", auth(srv.handleQueueList))
	mux.HandleFunc("GET /api/queue/stats", auth(srv.handleQueueStats))
	mux.HandleFunc("POST /api/scan", auth(srv.handleScan))
	mux.HandleFunc("GET /api/status", auth(srv.handleStatus))
	mux.HandleFunc("GET /api/health", srv.handleHealth)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleRequestStream(w http.ResponseWriter, r *http.Request) {
	trackID, ok := s.trackID(w, r)
	if !ok {
		return
	}
	resp, err := s.daemon.orchestrator.Request(r.Context(), trackID, requesterFrom(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	trackID, ok := s.trackID(w, r)
	if !ok {
		return
	}
	resp, err := s.daemon.orchestrator.Status(r.Context(), trackID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleArtifact streams one file of a completed artifact. Manifests are
// rewritten on every fetch so their bare segment names become API paths the
// client can actually reach.
func (s *apiServer) handleArtifact(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	file := r.PathValue("file")

	f, contentType, err := s.daemon.artifacts.Open(r.Context(), key, file)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType)
	if contentType == artifacts.ContentTypeManifest {
		manifest, err := io.ReadAll(f)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		rewritten := artifacts.RewriteManifest(manifest, func(segment string) string {
			return fmt.Sprintf("/api/stream/%s/%s", key, segment)
		})
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(rewritten)
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Debug("artifact stream interrupted", logging.Error(err))
	}
}

func (s *apiServer) handleArtwork(w http.ResponseWriter, r *http.Request) {
	trackID, ok := s.trackID(w, r)
	if !ok {
		return
	}
	if !s.daemon.artwork.Enabled() {
		s.writeError(w, http.StatusNotFound, "artwork disabled")
		return
	}

	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid size")
			return
		}
		size = parsed
	}
	if size == 0 {
		sizes := s.daemon.cfg.Artwork.ThumbnailSizes
		if len(sizes) == 0 {
			s.writeError(w, http.StatusNotFound, "no thumbnail sizes configured")
			return
		}
		size = sizes[len(sizes)-1]
	}

	track, err := s.daemon.catalog.GetByID(r.Context(), trackID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	thumbPath, err := s.daemon.artwork.TrackThumbnail(track.Path, size)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, thumbPath)
}

func (s *apiServer) handleQueueList(w http.ResponseWriter, r *http.Request) {
	var states []jobs.State
	for _, value := range r.URL.Query()["state"] {
		state, ok := jobs.ParseState(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", value))
			return
		}
		states = append(states, state)
	}
	list, err := s.daemon.store.List(r.Context(), states...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

func (s *apiServer) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	health, err := s.daemon.store.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *apiServer) handleScan(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.orchestrator.RequestScan(r.Context(), requesterFrom(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.daemon.store.CheckHealth(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"healthy": false,
			"error":   err.Error(),
		})
		return
	}
	status := http.StatusOK
	if !health.Healthy() {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]any{
		"healthy":       health.Healthy(),
		"table_exists":  health.TableExists,
		"total_jobs":    health.TotalJobs,
		"stuck_running": health.StuckRunning,
		"error":         health.Error,
	})
}

func (s *apiServer) trackID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid track id")
		return 0, false
	}
	return id, true
}

// requesterFrom labels a job with who asked for it. Authentication itself
// happens upstream; this is bookkeeping, not access control.
func requesterFrom(r *http.Request) string {
	if caller := strings.TrimSpace(r.Header.Get("X-Phono-Requester")); caller != "" {
		return caller
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeServiceError maps the error taxonomy onto HTTP statuses: not-found
// to 404, invalid paths to 400, not-ready artifacts to 409.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidPath):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotReady):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
