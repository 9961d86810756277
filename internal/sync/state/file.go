package state

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/stacklok/eol-sync/internal/status"
)

type fileStateService struct {
	statusPersistence status.StatusPersistence

	mu           sync.RWMutex
	cachedStatus *status.SyncStatus
}

// NewFileStateService creates a new state service backed by statusPersistence
func NewFileStateService(statusPersistence status.StatusPersistence) StateService {
	return &fileStateService{
		statusPersistence: statusPersistence,
	}
}

func (f *fileStateService) Initialize(ctx context.Context, syncSchedule string) error {
	syncStatus, err := f.statusPersistence.LoadStatus(ctx)
	if err != nil {
		slog.Warn("Failed to load sync status, initializing with defaults", "error", err)
		syncStatus = &status.SyncStatus{}
	}

	switch {
	case syncStatus.Phase == "" && syncStatus.LastSyncTime == nil:
		slog.Info("No previous sync status found, initializing with defaults")
		syncStatus.Phase = status.SyncPhaseFailed
		syncStatus.Message = "No previous sync status found"
	case syncStatus.Phase == status.SyncPhaseSyncing:
		// A status left in Syncing means the process stopped mid-pass
		slog.Warn("Previous sync was interrupted (status=Syncing), resetting to Failed",
			"passId", syncStatus.PassID)
		syncStatus.Phase = status.SyncPhaseFailed
		syncStatus.Message = "Previous sync was interrupted"
	}
	syncStatus.SyncSchedule = syncSchedule

	if err := f.statusPersistence.SaveStatus(ctx, syncStatus); err != nil {
		slog.Warn("Failed to persist initial sync status", "error", err)
	}

	if syncStatus.LastSyncTime != nil {
		slog.Info("Loaded sync status",
			"phase", syncStatus.Phase,
			"lastSyncTime", syncStatus.LastSyncTime.Format(time.RFC3339),
			"services", syncStatus.ServiceCount)
	} else {
		slog.Info("Sync status initialized", "phase", syncStatus.Phase)
	}

	f.mu.Lock()
	f.cachedStatus = syncStatus
	f.mu.Unlock()
	return nil
}

func (f *fileStateService) GetSyncStatus(_ context.Context) (*status.SyncStatus, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.cachedStatus == nil {
		return nil, errors.New("sync status not initialized")
	}
	return f.cachedStatus.Copy(), nil
}

func (f *fileStateService) UpdateStatusAtomically(
	ctx context.Context,
	testAndUpdateFn func(syncStatus *status.SyncStatus) bool,
) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cachedStatus == nil {
		return false, errors.New("sync status not initialized")
	}

	// Work on a copy so a failed save leaves the cache untouched
	syncStatus := f.cachedStatus.Copy()
	if !testAndUpdateFn(syncStatus) {
		return false, nil
	}
	if err := f.statusPersistence.SaveStatus(ctx, syncStatus); err != nil {
		return false, err
	}
	f.cachedStatus = syncStatus
	return true, nil
}
