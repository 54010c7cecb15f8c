// Package notifier delivers due messages to their recipients.
//
// The dispatch loop only sees the Notifier interface: Send reports true when
// every recipient was accepted, false when the transport rejected the
// message permanently, and an error for a fault that should be retried on
// the next dispatch run.
//
// # Transport
//
// Service wraps a Transport (SMTP, or a log-only transport for development)
// with a send rate limit, bounded retries with jittered backoff for transient
// errors, and a dedup ledger keyed per delivery so a job that is re-claimed
// after a crash does not mail its recipients twice.
//
// # History
//
// The service keeps a small in-memory history of recent sends for the ops
// status endpoint.
package notifier
