package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"phono/internal/jobs"
	"phono/internal/logging"
	"phono/internal/testsupport"
	"phono/internal/worker"
)

// recordingNotifier captures notification calls for assertions.
type recordingNotifier struct {
	mu          sync.Mutex
	streamReady []string
	scans       [][2]int
	failures    []string
}

func (r *recordingNotifier) NotifyStreamReady(_ context.Context, trackTitle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamReady = append(r.streamReady, trackTitle)
	return nil
}

func (r *recordingNotifier) NotifyScanCompleted(_ context.Context, indexed, pruned int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans = append(r.scans, [2]int{indexed, pruned})
	return nil
}

func (r *recordingNotifier) NotifyJobFailed(_ context.Context, kind, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, kind+": "+detail)
	return nil
}

func (r *recordingNotifier) TestNotification(context.Context) error { return nil }

func (r *recordingNotifier) snapshot() (ready []string, scans [][2]int, failures []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.streamReady...),
		append([][2]int(nil), r.scans...),
		append([]string(nil), r.failures...)
}

func waitForTerminal(t *testing.T, store *jobs.Store, id int64) *jobs.Job {
	t.Helper()
	deadline := time.After(15 * time.Second)
	for {
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if job != nil && job.Terminal() {
			return job
		}
		select {
		case <-deadline:
			t.Fatalf("job %d never reached a terminal state: %#v", id, job)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestPoolRunsJobToDone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	pool := worker.New(cfg, store, logging.NewNop())
	pool.Register(jobs.KindTranscode, func(ctx context.Context, job *jobs.Job) (string, error) {
		return "artifact/" + job.ResourceKey, nil
	})

	id := testsupport.Enqueue(t, store, jobs.KindTranscode, "key-ok")
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Stop()

	job := waitForTerminal(t, store, id)
	if job.State != jobs.StateDone {
		t.Fatalf("expected done, got %#v", job)
	}
	if job.Result != "artifact/key-ok" {
		t.Fatalf("expected producer result recorded, got %q", job.Result)
	}
}

func TestPoolRecordsProducerFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	pool := worker.New(cfg, store, logging.NewNop())
	pool.Register(jobs.KindTranscode, func(ctx context.Context, job *jobs.Job) (string, error) {
		return "", errors.New("disk full")
	})

	id := testsupport.Enqueue(t, store, jobs.KindTranscode, "key-fail")
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Stop()

	job := waitForTerminal(t, store, id)
	if job.State != jobs.StateFailed || job.Error != "disk full" {
		t.Fatalf("expected failed with error text, got %#v", job)
	}
}

func TestPoolSurvivesProducerPanic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	var calls atomic.Int32
	pool := worker.New(cfg, store, logging.NewNop())
	pool.Register(jobs.KindTranscode, func(ctx context.Context, job *jobs.Job) (string, error) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return "ok", nil
	})

	first := testsupport.Enqueue(t, store, jobs.KindTranscode, "key-1")
	second := testsupport.Enqueue(t, store, jobs.KindTranscode, "key-2")
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Stop()

	panicked := waitForTerminal(t, store, first)
	if panicked.State != jobs.StateFailed {
		t.Fatalf("expected panicked job to fail, got %#v", panicked)
	}

	recovered := waitForTerminal(t, store, second)
	if recovered.State != jobs.StateDone {
		t.Fatalf("loop should survive the panic and run the next job, got %#v", recovered)
	}
}

func TestPoolDispatchesByKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	pool := worker.New(cfg, store, logging.NewNop())
	pool.Register(jobs.KindScan, func(ctx context.Context, job *jobs.Job) (string, error) {
		return `{"scanned":0}`, nil
	})
	pool.Register(jobs.KindTranscode, func(ctx context.Context, job *jobs.Job) (string, error) {
		return "dir", nil
	})

	scanID := testsupport.Enqueue(t, store, jobs.KindScan, jobs.ScanResourceKey)
	transcodeID := testsupport.Enqueue(t, store, jobs.KindTranscode, "key-t")
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Stop()

	if job := waitForTerminal(t, store, scanID); job.Result != `{"scanned":0}` {
		t.Fatalf("unexpected scan result: %#v", job)
	}
	if job := waitForTerminal(t, store, transcodeID); job.Result != "dir" {
		t.Fatalf("unexpected transcode result: %#v", job)
	}
}

func TestPoolDrainsBacklogAcrossWorkers(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(3))
	store := testsupport.MustOpenStore(t, cfg)

	pool := worker.New(cfg, store, logging.NewNop())
	pool.Register(jobs.KindTranscode, func(ctx context.Context, job *jobs.Job) (string, error) {
		time.Sleep(10 * time.Millisecond)
		return job.ResourceKey, nil
	})

	var ids []int64
	for i := 0; i < 9; i++ {
		ids = append(ids, testsupport.Enqueue(t, store, jobs.KindTranscode, fmt.Sprintf("key-%d", i)))
	}
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Stop()

	for _, id := range ids {
		job := waitForTerminal(t, store, id)
		if job.State != jobs.StateDone {
			t.Fatalf("job %d did not complete: %#v", id, job)
		}
	}
}

func TestPoolNotifiesOutcomes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	notifier := &recordingNotifier{}
	pool := worker.New(cfg, store, logging.NewNop())
	pool.SetNotifier(notifier)
	pool.Register(jobs.KindTranscode, func(ctx context.Context, job *jobs.Job) (string, error) {
		if job.ResourceKey == "key-bad" {
			return "", errors.New("source vanished")
		}
		return "dir", nil
	})
	pool.Register(jobs.KindScan, func(ctx context.Context, job *jobs.Job) (string, error) {
		return `{"scanned":10,"indexed":8,"pruned":2,"elapsed":"1s"}`, nil
	})

	doneID := testsupport.Enqueue(t, store, jobs.KindTranscode, "key-good")
	failedID := testsupport.Enqueue(t, store, jobs.KindTranscode, "key-bad")
	scanID := testsupport.Enqueue(t, store, jobs.KindScan, jobs.ScanResourceKey)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Stop()

	waitForTerminal(t, store, doneID)
	waitForTerminal(t, store, failedID)
	waitForTerminal(t, store, scanID)

	ready, scans, failures := notifier.snapshot()
	if len(ready) != 1 || ready[0] != "key-good" {
		t.Fatalf("expected one stream-ready notification for key-good, got %v", ready)
	}
	if len(scans) != 1 || scans[0] != [2]int{8, 2} {
		t.Fatalf("expected scan notification with indexed=8 pruned=2, got %v", scans)
	}
	if len(failures) != 1 || failures[0] != "transcode: source vanished" {
		t.Fatalf("expected one failure notification, got %v", failures)
	}
}

func TestStartRequiresProducers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	pool := worker.New(cfg, store, logging.NewNop())
	if err := pool.Start(context.Background()); err == nil {
		pool.Stop()
		t.Fatal("expected error starting a pool with no producers")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	pool := worker.New(cfg, store, logging.NewNop())
	pool.Register(jobs.KindScan, func(ctx context.Context, job *jobs.Job) (string, error) {
		return "", nil
	})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pool.Stop()
	pool.Stop()
}
