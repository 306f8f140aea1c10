// Package models defines domain entities for the subscription sync service.
//
// The package contains three categories of types:
//
// 1. Sync orchestration records, persisted as JSON in the TTL key-value store:
//   - [SyncJob] : aggregate progress record for one "sync all" request
//   - [DLQEntry] : captured dead-lettered message with its retry metadata
//
// 2. Wire shapes:
//   - [SyncQueueMessage] : one per-subscription work unit on the message queue
//   - [JobStatusResponse] / [ActiveJobResponse] : the shapes clients poll
//
// 3. Relational entities backed by SQLite:
//   - [Subscription] : a channel/show the user follows
//   - [ProviderConnection] : a linked provider account
//
// Provider is a closed enum; every dispatch point switches over it
// exhaustively so that adding a provider is a compile-time-visible change.
package models
