package catalog

import "time"

// Track is one audio file in the library. Identity is the database id;
// path, size, and mtime describe the file as last scanned.
type Track struct {
	ID              int64     `json:"id"`
	Path            string    `json:"path"`
	Title           string    `json:"title"`
	Artist          string    `json:"artist"`
	Album           string    `json:"album"`
	Ext             string    `json:"ext"`
	SizeBytes       int64     `json:"size_bytes"`
	ModTime         time.Time `json:"mtime"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
}

// TrackInput carries the fields the scanner writes. Upsert matches on path,
// so a moved file becomes a new track with a new identity.
type TrackInput struct {
	Path            string
	Title           string
	Artist          string
	Album           string
	Ext             string
	SizeBytes       int64
	ModTime         time.Time
	DurationSeconds float64
}
