// Package stream decides how to satisfy an on-demand streaming request:
// serve an already-cached artifact, report in-flight work, or enqueue a new
// transcode. Requests are idempotent per source-file version, so clients can
// poll the same request every few seconds without ever duplicating work.
package stream

import (
	"context"
	"fmt"
	"log/slog"

	"phono/internal/cachekey"
	"phono/internal/catalog"
	"phono/internal/config"
	"phono/internal/jobs"
	"phono/internal/logging"
	"phono/internal/services"
	"phono/internal/transcode"
)

// State is the client-facing readiness of a requested artifact.
type State string

const (
	StateReady   State = "ready"
	StatePending State = "pending"
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
	StateMissing State = "missing"
)

// Response answers a request or status query.
type Response struct {
	State       State  `json:"state"`
	JobID       int64  `json:"job_id,omitempty"`
	ResourceKey string `json:"resource_key,omitempty"`
	ManifestRef string `json:"manifest_ref,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Orchestrator resolves track identity, derives cache keys, and dedups
// transcode requests against the job store.
type Orchestrator struct {
	cfg     *config.Config
	catalog *catalog.Store
	jobs    *jobs.Store
	logger  *slog.Logger
}

// New creates an Orchestrator.
func New(cfg *config.Config, cat *catalog.Store, store *jobs.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		catalog: cat,
		jobs:    store,
		logger:  logger.With(logging.String(logging.FieldComponent, "stream")),
	}
}

// Request asks for a streamable artifact for a track. It returns ready when
// a done job already covers the track's current file version, joins queued
// or running work without enqueuing a duplicate, and otherwise enqueues a
// new transcode job. A failed prior job does not block a fresh request; the
// retry is simply a new job.
//
// The dedup is a lookup before an insert, so two racing first-time requests
// for the same brand-new key can both enqueue. Workers then write the same
// reproducible artifact twice; last writer wins.
func (o *Orchestrator) Request(ctx context.Context, trackID int64, requestedBy string) (Response, error) {
	track, err := o.catalog.GetByID(ctx, trackID)
	if err != nil {
		return Response{}, err
	}
	key := cachekey.Derive(track.ID, track.ModTime, track.SizeBytes, track.Ext)
	ctx = services.WithResourceKey(ctx, key)

	latest, err := o.jobs.LatestByResourceKey(ctx, jobs.KindTranscode, key)
	if err != nil {
		return Response{}, err
	}
	if latest != nil {
		switch {
		case latest.State == jobs.StateDone:
			return Response{
				State:       StateReady,
				JobID:       latest.ID,
				ResourceKey: key,
				ManifestRef: manifestRef(key),
			}, nil
		case latest.Active():
			return Response{State: StatePending, JobID: latest.ID, ResourceKey: key}, nil
		}
	}

	// Failed (or no) prior job: enqueue fresh work for this key.
	jobID, err := o.jobs.Enqueue(ctx, jobs.KindTranscode, key, requestedBy)
	if err != nil {
		return Response{}, err
	}
	o.logger.Info("transcode requested",
		logging.Int64(logging.FieldTrackID, trackID),
		logging.Int64(logging.FieldJobID, jobID),
		logging.String(logging.FieldResourceKey, key))
	return Response{State: StatePending, JobID: jobID, ResourceKey: key}, nil
}

// Status reports the latest job for a track's current file version without
// creating one. Clients holding a pending response poll this until the
// state is done or failed.
func (o *Orchestrator) Status(ctx context.Context, trackID int64) (Response, error) {
	track, err := o.catalog.GetByID(ctx, trackID)
	if err != nil {
		return Response{}, err
	}
	key := cachekey.Derive(track.ID, track.ModTime, track.SizeBytes, track.Ext)

	latest, err := o.jobs.LatestByResourceKey(ctx, jobs.KindTranscode, key)
	if err != nil {
		return Response{}, err
	}
	if latest == nil {
		return Response{State: StateMissing, ResourceKey: key}, nil
	}

	resp := Response{JobID: latest.ID, ResourceKey: key}
	switch latest.State {
	case jobs.StateQueued:
		resp.State = StateQueued
	case jobs.StateRunning:
		resp.State = StateRunning
	case jobs.StateDone:
		resp.State = StateDone
		resp.ManifestRef = manifestRef(key)
	case jobs.StateFailed:
		resp.State = StateFailed
		resp.Error = latest.Error
	}
	return resp, nil
}

// RequestScan enqueues a library scan unless one is already queued or
// running, mirroring the transcode dedup.
func (o *Orchestrator) RequestScan(ctx context.Context, requestedBy string) (Response, error) {
	latest, err := o.jobs.LatestByResourceKey(ctx, jobs.KindScan, jobs.ScanResourceKey)
	if err != nil {
		return Response{}, err
	}
	if latest != nil && latest.Active() {
		return Response{State: StatePending, JobID: latest.ID, ResourceKey: jobs.ScanResourceKey}, nil
	}
	jobID, err := o.jobs.Enqueue(ctx, jobs.KindScan, jobs.ScanResourceKey, requestedBy)
	if err != nil {
		return Response{}, err
	}
	o.logger.Info("library scan requested", logging.Int64(logging.FieldJobID, jobID))
	return Response{State: StatePending, JobID: jobID, ResourceKey: jobs.ScanResourceKey}, nil
}

func manifestRef(key string) string {
	return fmt.Sprintf("/api/stream/%s/%s", key, transcode.ManifestName)
}
