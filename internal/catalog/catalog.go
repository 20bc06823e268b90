// Package catalog persists the track library in SQLite. The scanner writes
// rows, the stream orchestrator reads them to resolve track identity.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"phono/internal/config"
	"phono/internal/services"
)

const schema = `
CREATE TABLE IF NOT EXISTS tracks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    artist TEXT NOT NULL DEFAULT '',
    album TEXT NOT NULL DEFAULT '',
    ext TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    mtime TEXT NOT NULL,
    duration_seconds REAL NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tracks_artist_album ON tracks(artist, album);
`

// Store manages track persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the catalog database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "catalog.db"))
}

// OpenPath opens the catalog database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}
	return &Store{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

const trackColumns = `id, path, title, artist, album, ext, size_bytes, mtime, duration_seconds`

// Upsert inserts or refreshes a track keyed by path and returns its id.
func (s *Store) Upsert(ctx context.Context, in TrackInput) (int64, error) {
	if in.Path == "" {
		return 0, fmt.Errorf("upsert track: empty path")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tracks (path, title, artist, album, ext, size_bytes, mtime, duration_seconds, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(path) DO UPDATE SET
             title = excluded.title,
             artist = excluded.artist,
             album = excluded.album,
             ext = excluded.ext,
             size_bytes = excluded.size_bytes,
             mtime = excluded.mtime,
             duration_seconds = excluded.duration_seconds,
             updated_at = excluded.updated_at`,
		in.Path,
		in.Title,
		in.Artist,
		in.Album,
		in.Ext,
		in.SizeBytes,
		in.ModTime.UTC().Format(time.RFC3339Nano),
		in.DurationSeconds,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert track: %w", err)
	}

	var id int64
	row := s.db.QueryRowContext(ctx, `SELECT id FROM tracks WHERE path = ?`, in.Path)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve track id: %w", err)
	}
	return id, nil
}

// GetByID returns a track by id, or services.ErrNotFound when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*Track, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id)
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "get", fmt.Sprintf("track %d not in library", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return track, nil
}

// GetByPath returns a track by library path, or services.ErrNotFound.
func (s *Store) GetByPath(ctx context.Context, path string) (*Track, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE path = ?`, path)
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "get", fmt.Sprintf("path %q not in library", path), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return track, nil
}

// List returns all tracks ordered by artist, album, then title.
func (s *Store) List(ctx context.Context) ([]*Track, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+trackColumns+` FROM tracks ORDER BY artist, album, title`)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	var out []*Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, track)
	}
	return out, rows.Err()
}

// Count returns the number of cataloged tracks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tracks`)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count tracks: %w", err)
	}
	return count, nil
}

// PruneExcept removes tracks whose path is not in keep. The scanner calls
// this after a walk so vanished files drop out of the catalog.
func (s *Store) PruneExcept(ctx context.Context, keep map[string]struct{}) (int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, path FROM tracks`)
	if err != nil {
		return 0, fmt.Errorf("prune tracks: %w", err)
	}

	var stale []int64
	for rows.Next() {
		var (
			id   int64
			path string
		)
		if err := rows.Scan(&id, &path); err != nil {
			rows.Close()
			return 0, fmt.Errorf("prune tracks: %w", err)
		}
		if _, ok := keep[path]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("prune tracks: %w", err)
	}
	rows.Close()

	var removed int64
	for _, id := range stale {
		res, err := s.db.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id)
		if err != nil {
			return removed, fmt.Errorf("prune track %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("rows affected: %w", err)
		}
		removed += affected
	}
	return removed, nil
}

func scanTrack(scanner interface{ Scan(dest ...any) error }) (*Track, error) {
	var (
		track Track
		mtime string
	)
	if err := scanner.Scan(
		&track.ID,
		&track.Path,
		&track.Title,
		&track.Artist,
		&track.Album,
		&track.Ext,
		&track.SizeBytes,
		&mtime,
		&track.DurationSeconds,
	); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, mtime)
	if err != nil {
		return nil, fmt.Errorf("parse track mtime: %w", err)
	}
	track.ModTime = parsed
	return &track, nil
}
