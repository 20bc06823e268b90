package jobs_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"phono/internal/jobs"
	"phono/internal/testsupport"
)

// Claiming is a single atomic update, so two workers can never walk away with
// the same job even when they race on the same connection pool.
func TestClaimNextIsExclusiveUnderContention(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	const jobCount = 8
	const workerCount = 4

	for i := 0; i < jobCount; i++ {
		testsupport.Enqueue(t, store, jobs.KindTranscode, fmt.Sprintf("key-%d", i))
	}

	var (
		mu      sync.Mutex
		claimed = make(map[int64]int)
		wg      sync.WaitGroup
	)
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := store.ClaimNext(context.Background(), jobs.KindTranscode)
				if err != nil {
					t.Errorf("ClaimNext failed: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != jobCount {
		t.Fatalf("expected %d distinct claims, got %d", jobCount, len(claimed))
	}
	for id, count := range claimed {
		if count != 1 {
			t.Fatalf("job %d claimed %d times", id, count)
		}
	}
}

func TestClaimedJobsStayClaimedAcrossReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	id := testsupport.Enqueue(t, store, jobs.KindTranscode, "key-p")
	if _, err := store.ClaimNext(ctx, jobs.KindTranscode); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	reopened, err := jobs.OpenPath(store.Path())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	job, err := reopened.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if job == nil || job.State != jobs.StateRunning {
		t.Fatalf("expected running job to survive reopen, got %#v", job)
	}
	if next, err := reopened.ClaimNext(ctx, jobs.KindTranscode); err != nil || next != nil {
		t.Fatalf("running job must not be claimable again, got %#v err=%v", next, err)
	}
}
