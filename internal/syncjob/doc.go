// Package syncjob implements the asynchronous "refresh all subscriptions"
// orchestrator.
//
// The core pieces are:
//   - [Service] : job admission, covering rate limiting, deduplication, syncable-set
//     resolution, job creation and queue fan-out, with a synchronous
//     in-process fallback when the queue is unavailable
//   - [Consumer] : processes per-subscription queue messages with
//     per-subscription error isolation; every message is acknowledged after
//     its outcome is recorded, so queue-level redelivery never drives retries
//   - [Tracker] : the forward-only job state machine (pending, processing,
//     completed) persisted in the TTL key-value store, plus the read paths
//     clients poll
//   - [DLQConsumer] : captures messages that exhausted the queue's retry
//     budget as inspectable entries behind a bounded most-recent-first index
//
// Stuck jobs have no watchdog: the job record and both per-user markers
// expire via TTL, which is the system's only recovery mechanism.
package syncjob
