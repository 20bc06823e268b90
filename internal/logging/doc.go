// Package logging wraps log/slog with phono's console and JSON handlers,
// standardized field keys, and context-derived attributes so every subsystem
// emits uniformly shaped records.
package logging
