package state

import (
	"log/slog"

	"github.com/stacklok/eol-sync/internal/status"
)

// NewStateService creates a StateService for the given data directory.
//
// With a data directory the status is written to a file inside it and
// survives restarts. Without one the status is kept in memory only.
func NewStateService(dataDir string) StateService {
	if dataDir == "" {
		slog.Debug("No data directory configured, sync status is kept in memory")
		return NewFileStateService(status.NewMemoryStatusPersistence())
	}
	return NewFileStateService(status.NewFileStatusPersistence(dataDir))
}
