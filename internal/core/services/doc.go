// Package services is the application core: account and settings
// management, the change normalizer, the action router, the connector
// pool, the poll orchestrator and the scheduler.
//
// Fetches are retried with backoff/v5, PollAll fans accounts out with
// errgroup, and each cycle is a "poll.cycle" span on the global tracer.
package services
