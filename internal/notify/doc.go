// Package notify delivers operator notifications without ever blocking the
// caller. Messages go into a bounded buffer, a background goroutine batches
// them, and each batch fans out to pluggable sinks such as structured logs, a
// chat webhook, Pub/Sub, or Prometheus counters.
package notify
