// Package daemon hosts the phono background process: the job queue workers,
// the track catalog, and the HTTP API that clients poll for streaming
// readiness. One daemon instance runs per configuration; a file lock in the
// log directory rejects a second copy.
package daemon
