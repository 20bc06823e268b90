package jobs

import (
	"strings"
	"time"
)

// Kind discriminates the unit of background work a job performs.
type Kind string

const (
	// KindScan walks the library directory and refreshes the track catalog.
	KindScan Kind = "scan"
	// KindTranscode produces an HLS artifact for a single track version.
	KindTranscode Kind = "transcode"
)

// ScanResourceKey is the constant resource key shared by all scan jobs: the
// library has exactly one scan in flight at a time.
const ScanResourceKey = "library"

// State represents the lifecycle of a job.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Outcome is the terminal state recorded by Finish.
type Outcome string

const (
	OutcomeDone   Outcome = "done"
	OutcomeFailed Outcome = "failed"
)

var allStates = []State{StateQueued, StateRunning, StateDone, StateFailed}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// Job represents one unit of background work persisted in SQLite.
type Job struct {
	ID          int64
	Kind        Kind
	ResourceKey string
	State       State
	RequestedBy string
	RequestedAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Result      string
	Error       string
}

// Terminal reports whether the job reached done or failed.
func (j Job) Terminal() bool {
	return j.State == StateDone || j.State == StateFailed
}

// Active reports whether the job is queued or running. The orchestrator's
// dedup only suppresses duplicates of active jobs; failed jobs do not block
// a fresh request.
func (j Job) Active() bool {
	return j.State == StateQueued || j.State == StateRunning
}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindScan:
		return KindScan, true
	case KindTranscode:
		return KindTranscode, true
	default:
		return "", false
	}
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total   int
	Queued  int
	Running int
	Done    int
	Failed  int
}

// DatabaseHealth captures diagnostic information about the jobs database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalJobs        int
	StuckRunning     int
	Error            string
}

// Healthy reports whether every database check passed.
func (h DatabaseHealth) Healthy() bool {
	return h.DatabaseExists && h.DatabaseReadable && h.TableExists && h.IntegrityCheck && h.Error == ""
}
