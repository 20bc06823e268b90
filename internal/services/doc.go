// Package services holds cross-cutting service plumbing: the sentinel error
// taxonomy shared by the orchestrator, worker, and artifact server, plus
// context annotations that thread job and request identity into logs.
package services
