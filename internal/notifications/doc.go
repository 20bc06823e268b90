// Package notifications delivers daemon events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. The worker pool emits stream-ready and failure events through the
// Service interface so job code never touches HTTP glue directly.
package notifications
