package stream_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"phono/internal/catalog"
	"phono/internal/config"
	"phono/internal/jobs"
	"phono/internal/logging"
	"phono/internal/services"
	"phono/internal/stream"
	"phono/internal/testsupport"
)

type fixture struct {
	cfg     *config.Config
	catalog *catalog.Store
	jobs    *jobs.Store
	orch    *stream.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cat := testsupport.MustOpenCatalog(t, cfg)
	store := testsupport.MustOpenStore(t, cfg)
	return &fixture{
		cfg:     cfg,
		catalog: cat,
		jobs:    store,
		orch:    stream.New(cfg, cat, store, logging.NewNop()),
	}
}

func (f *fixture) addTrack(t *testing.T, size int64) int64 {
	t.Helper()
	id, err := f.catalog.Upsert(context.Background(), catalog.TrackInput{
		Path:      "Artist/Album/01 Track.flac",
		Title:     "Track",
		Artist:    "Artist",
		Album:     "Album",
		Ext:       ".flac",
		SizeBytes: size,
		ModTime:   time.Unix(1000, 0),
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	return id
}

func TestRequestIsIdempotentWhilePending(t *testing.T) {
	f := newFixture(t)
	trackID := f.addTrack(t, 2048)

	ctx := context.Background()
	first, err := f.orch.Request(ctx, trackID, "alice")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if first.State != stream.StatePending || first.JobID == 0 {
		t.Fatalf("expected pending with job id, got %+v", first)
	}

	second, err := f.orch.Request(ctx, trackID, "alice")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if second.JobID != first.JobID {
		t.Fatalf("repeat request created a duplicate job: %d vs %d", second.JobID, first.JobID)
	}

	all, err := f.jobs.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single job row, got %d", len(all))
	}
}

func TestRequestServesDoneWithoutNewWork(t *testing.T) {
	f := newFixture(t)
	trackID := f.addTrack(t, 2048)

	ctx := context.Background()
	resp, err := f.orch.Request(ctx, trackID, "alice")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	claimed, err := f.jobs.ClaimNext(ctx, jobs.KindTranscode)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := f.jobs.Finish(ctx, claimed.ID, jobs.OutcomeDone, "abc123"); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	ready, err := f.orch.Request(ctx, trackID, "bob")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if ready.State != stream.StateReady {
		t.Fatalf("expected ready, got %+v", ready)
	}
	if ready.JobID != resp.JobID {
		t.Fatalf("ready response should reference the done job, got %+v", ready)
	}
	if ready.ManifestRef == "" {
		t.Fatal("ready response must carry a manifest reference")
	}

	all, err := f.jobs.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("ready request must not enqueue, got %d rows", len(all))
	}
}

func TestMutatedTrackGetsNewKeyAndJob(t *testing.T) {
	f := newFixture(t)
	trackID := f.addTrack(t, 2048)

	ctx := context.Background()
	first, err := f.orch.Request(ctx, trackID, "alice")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	claimed, err := f.jobs.ClaimNext(ctx, jobs.KindTranscode)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := f.jobs.Finish(ctx, claimed.ID, jobs.OutcomeDone, "abc123"); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	// Replace the source file: same track id, new size.
	f.addTrack(t, 4096)

	resp, err := f.orch.Request(ctx, trackID, "alice")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.State != stream.StatePending {
		t.Fatalf("mutated track should need new work, got %+v", resp)
	}
	if resp.ResourceKey == first.ResourceKey {
		t.Fatalf("mutated track must derive a new key, got %q twice", resp.ResourceKey)
	}
	if resp.JobID == first.JobID {
		t.Fatal("mutated track must enqueue a new job")
	}
}

func TestFailedJobDoesNotBlockRetry(t *testing.T) {
	f := newFixture(t)
	trackID := f.addTrack(t, 2048)

	ctx := context.Background()
	first, err := f.orch.Request(ctx, trackID, "alice")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	claimed, err := f.jobs.ClaimNext(ctx, jobs.KindTranscode)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := f.jobs.Finish(ctx, claimed.ID, jobs.OutcomeFailed, "disk full"); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	retry, err := f.orch.Request(ctx, trackID, "alice")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if retry.State != stream.StatePending || retry.JobID == first.JobID {
		t.Fatalf("expected a fresh job after failure, got %+v", retry)
	}
}

func TestRequestUnknownTrackIsNotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.orch.Request(context.Background(), 999, "alice"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusProgression(t *testing.T) {
	f := newFixture(t)
	trackID := f.addTrack(t, 2048)
	ctx := context.Background()

	status, err := f.orch.Status(ctx, trackID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != stream.StateMissing {
		t.Fatalf("expected missing before any request, got %+v", status)
	}

	if _, err := f.orch.Request(ctx, trackID, "alice"); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	status, err = f.orch.Status(ctx, trackID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != stream.StateQueued {
		t.Fatalf("expected queued, got %+v", status)
	}

	claimed, err := f.jobs.ClaimNext(ctx, jobs.KindTranscode)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	status, err = f.orch.Status(ctx, trackID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != stream.StateRunning {
		t.Fatalf("expected running, got %+v", status)
	}

	if err := f.jobs.Finish(ctx, claimed.ID, jobs.OutcomeFailed, "disk full"); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	status, err = f.orch.Status(ctx, trackID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != stream.StateFailed || status.Error != "disk full" {
		t.Fatalf("expected failed with error text, got %+v", status)
	}
}

func TestRequestScanDedups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.orch.RequestScan(ctx, "cli")
	if err != nil {
		t.Fatalf("RequestScan failed: %v", err)
	}
	second, err := f.orch.RequestScan(ctx, "cli")
	if err != nil {
		t.Fatalf("RequestScan failed: %v", err)
	}
	if first.JobID != second.JobID {
		t.Fatalf("scan requests should collapse onto one job: %d vs %d", first.JobID, second.JobID)
	}

	claimed, err := f.jobs.ClaimNext(ctx, jobs.KindScan)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := f.jobs.Finish(ctx, claimed.ID, jobs.OutcomeDone, "{}"); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	third, err := f.orch.RequestScan(ctx, "cli")
	if err != nil {
		t.Fatalf("RequestScan failed: %v", err)
	}
	if third.JobID == first.JobID {
		t.Fatal("a finished scan should not absorb new scan requests")
	}
}
