// Package sync runs the EOL sync pass for the EOL sync service.
//
// # Core Interface
//
//   - Manager: runs one pass end to end (PerformSync)
//
// A pass moves through fixed stages:
//
//	Idle -> Authenticating -> LoadingFrameworks -> LoadingServices -> Aggregating -> Persisting -> Completed
//
// Any stage may end in Failed. Authentication and both loads are fatal: no
// service is updated when one of them fails. Updates are issued one service
// at a time in the order the catalog returned the services.
//
// # Failure Policy
//
// With the abort policy (the default) the first failed update ends the pass
// and the remaining services are not attempted. With the continue policy every
// service is attempted and the failed ones are reported in Result.Failures.
//
// # Result Types
//
//   - Result: the outcome of a pass (pass ID, per-service counts, totals, timing)
//   - Error: the terminal failure of a pass, carrying the failed Stage and,
//     for update failures, the ServiceID
//
// # Coordinator Package
//
// The sync/coordinator subpackage runs passes on demand and on an interval,
// coalesces overlapping triggers and persists the status of the last pass.
// The Manager itself does no coordination.
package sync
