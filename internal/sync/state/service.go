// Package state holds the sync status of the service, cached in memory and
// written through to a StatusPersistence.
package state

import (
	"context"

	"github.com/stacklok/eol-sync/internal/status"
)

// StateService provides methods for inspecting and updating the sync status.
//
//go:generate mockgen -destination=mocks/mock_state_service.go -package=mocks github.com/stacklok/eol-sync/internal/sync/state StateService
//
//nolint:revive // This name is fine
type StateService interface {
	// Initialize loads the persisted status, resetting a pass that was
	// interrupted mid-run. It is called once at startup.
	Initialize(ctx context.Context, syncSchedule string) error
	// GetSyncStatus returns a copy of the current status.
	GetSyncStatus(ctx context.Context) (*status.SyncStatus, error)
	// UpdateStatusAtomically applies testAndUpdateFn to the current status and
	// persists it if the function reports a change, all under one lock.
	UpdateStatusAtomically(
		ctx context.Context,
		testAndUpdateFn func(syncStatus *status.SyncStatus) bool,
	) (bool, error)
}
