// Package coordinator provides background and on-demand coordination of EOL sync passes.
//
// This package implements the orchestration layer on top of sync.Manager and handles:
//
//   - Scheduled passes using time.Ticker when sync.interval is configured
//   - An initial pass on startup
//   - On-demand passes through Trigger (HTTP route and CLI)
//   - Status persistence through state.StateService
//   - Pass metrics
//   - Graceful shutdown
//
// # Architecture
//
//   - internal/sync: one pass (authenticate, load, aggregate, persist)
//   - internal/sync/coordinator: when passes run, and what is recorded about them
//   - cmd/eol-sync/app: process lifecycle (starts and stops the coordinator)
//
// # Overlapping Triggers
//
// Triggers are coalesced with singleflight: a trigger that arrives while a pass
// is running waits for that pass and receives its outcome instead of starting a
// second one. This only covers one process. Two processes pointed at the same
// catalog can still interleave their updates, and the last write per service wins.
//
// # Status
//
// The status moves to Syncing when a pass starts and to Complete or Failed when
// it ends. A deferred update makes sure a pass never leaves the status in
// Syncing, and state.StateService resets a Syncing status left behind by a
// crashed process on the next start.
//
// # Error Handling
//
//   - Failed passes are logged and recorded as Failed with the failing stage
//   - The scheduling loop keeps running after failures; the next tick retries
//   - Status persistence errors are logged but don't stop the pass
package coordinator
