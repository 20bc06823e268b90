// Package jobs persists background work items in SQLite and exposes the
// claim-once queue the workers and the request orchestrator coordinate
// through.
//
// The Store manages database connections, schema initialization, the atomic
// ClaimNext transition, terminal Finish writes, and the per-resource-key
// lookups the orchestrator uses to deduplicate requests. A job's state only
// ever moves queued -> running -> done|failed; done and failed rows are
// immutable history, and a new version of a source file creates a new row
// under a new resource key rather than updating an old one.
//
// Read operations and Finish tolerate a missing jobs table (a cold-start race
// with schema provisioning) by reporting "no job" instead of failing; all
// other storage errors propagate.
//
// Treat this package as the single source of truth for queue semantics; when
// you add new states or columns, update schema.sql and bump schemaVersion.
package jobs
