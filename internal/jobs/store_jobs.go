package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Enqueue inserts a new queued job. No dedup happens here: callers must check
// LatestByResourceKey first so only one active job exists per resource key.
func (s *Store) Enqueue(ctx context.Context, kind Kind, resourceKey, requestedBy string) (int64, error) {
	if strings.TrimSpace(resourceKey) == "" {
		return 0, errors.New("resource key must not be empty")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (kind, resource_key, state, requested_by, requested_at)
         VALUES (?, ?, ?, ?, ?)`,
		kind,
		resourceKey,
		StateQueued,
		nullableString(requestedBy),
		timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) || isMissingTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ClaimNext atomically transitions the oldest queued job of the given kind to
// running and returns it. SQLite serializes writers, so the single
// UPDATE..RETURNING statement guarantees two concurrent claimers never receive
// the same row; busy retries stand in for skip-locked semantics under
// contention. Returns nil when no queued job exists.
func (s *Store) ClaimNext(ctx context.Context, kind Kind) (*Job, error) {
	ctx = ensureContext(ctx)
	started := time.Now().UTC().Format(time.RFC3339Nano)

	var (
		job     *Job
		scanErr error
	)
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`UPDATE jobs SET state = ?, started_at = ?
             WHERE id = (
                 SELECT id FROM jobs WHERE kind = ? AND state = ? ORDER BY id LIMIT 1
             ) AND state = ?
             RETURNING `+jobColumns,
			StateRunning,
			started,
			kind,
			StateQueued,
			StateQueued,
		)
		job, scanErr = scanJob(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) || isMissingTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Finish records the terminal state for a claimed job. payload is stored as
// the result for done outcomes or the error message for failed ones. Finish is
// a no-op when the jobs table does not exist yet: a cold-start race with
// schema provisioning must not crash background infrastructure.
func (s *Store) Finish(ctx context.Context, id int64, outcome Outcome, payload string) error {
	var state State
	switch outcome {
	case OutcomeDone:
		state = StateDone
	case OutcomeFailed:
		state = StateFailed
	default:
		return fmt.Errorf("finish: unknown outcome %q", outcome)
	}

	finished := time.Now().UTC().Format(time.RFC3339Nano)
	var (
		result     any
		errMessage any
	)
	if state == StateDone {
		result = nullableString(payload)
	} else {
		errMessage = nullableString(payload)
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET state = ?, finished_at = ?, result = ?, error_message = ?
         WHERE id = ? AND state = ?`,
		state,
		finished,
		result,
		errMessage,
		id,
		StateRunning,
	)
	if isMissingTable(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("finish job %d: no running row to finish", id)
	}
	return nil
}

// LatestByResourceKey returns the most recent job (by id descending) for a
// kind and resource key, or nil when none exists. Missing-table errors report
// "no job" for the same cold-start reason as Finish.
func (s *Store) LatestByResourceKey(ctx context.Context, kind Kind, resourceKey string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE kind = ? AND resource_key = ? ORDER BY id DESC LIMIT 1`,
		kind,
		resourceKey,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) || isMissingTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest by resource key: %w", err)
	}
	return job, nil
}

// DoneByResourceKey returns the most recent done job for a kind and resource
// key, skipping any newer failed attempts, or nil when none exists.
func (s *Store) DoneByResourceKey(ctx context.Context, kind Kind, resourceKey string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE kind = ? AND resource_key = ? AND state = ? ORDER BY id DESC LIMIT 1`,
		kind,
		resourceKey,
		StateDone,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) || isMissingTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("done by resource key: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by state set (or all jobs when no state is
// provided), newest first.
func (s *Store) List(ctx context.Context, states ...State) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY id DESC`

	if len(states) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(states))
		args := make([]any, len(states))
		for i, state := range states {
			args[i] = state
		}
		query := baseQuery + ` WHERE state IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if isMissingTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Stats returns a count of jobs grouped by state.
func (s *Store) Stats(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM jobs GROUP BY state`)
	if isMissingTable(err) {
		return map[State]int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for state, count := range stats {
		health.Total += count
		switch state {
		case StateQueued:
			health.Queued += count
		case StateRunning:
			health.Running += count
		case StateDone:
			health.Done += count
		case StateFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// StuckRunning counts running jobs whose claim is older than the cutoff.
// There is no automatic reclamation sweep; the count exists so operators can
// spot jobs orphaned by a crashed worker.
func (s *Store) StuckRunning(ctx context.Context, cutoff time.Time) (int, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM jobs WHERE state = ? AND started_at IS NOT NULL AND started_at < ?`,
		StateRunning,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	var count int
	if err := row.Scan(&count); err != nil {
		if isMissingTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("count stuck running: %w", err)
	}
	return count, nil
}

// Clear removes all jobs.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearDone removes only done jobs.
func (s *Store) ClearDone(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE state = ?`, StateDone)
	if err != nil {
		return 0, fmt.Errorf("clear done: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed jobs.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE state = ?`, StateFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// CheckHealth returns diagnostic information about the jobs database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("jobs database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat jobs database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("jobs database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("jobs database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping jobs database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'jobs'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			health.TableExists = false
		} else {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
	}

	if health.TableExists {
		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM jobs")
		if err := row.Scan(&health.TotalJobs); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count jobs: %w", err)
		}
		stuck, err := s.StuckRunning(connCtx, time.Now().Add(-time.Hour))
		if err != nil {
			health.Error = err.Error()
			return health, err
		}
		health.StuckRunning = stuck
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
