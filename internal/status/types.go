package status

import "time"

// SyncPhase represents the current phase of a synchronization operation
type SyncPhase string

const (
	// SyncPhaseSyncing means sync is currently in progress
	SyncPhaseSyncing SyncPhase = "Syncing"

	// SyncPhaseComplete means sync completed successfully
	SyncPhaseComplete SyncPhase = "Complete"

	// SyncPhaseFailed means sync failed
	SyncPhaseFailed SyncPhase = "Failed"
)

// SyncStatus represents the outcome of the most recent sync pass
type SyncStatus struct {
	// Phase represents the current synchronization phase
	Phase SyncPhase `json:"phase"`

	// Message provides additional information about the sync status
	Message string `json:"message,omitempty"`

	// PassID identifies the pass this status describes
	PassID string `json:"passId,omitempty"`

	// Stage is the stage a failed pass stopped in
	Stage string `json:"stage,omitempty"`

	// FailedService is the service whose update failed, if any
	FailedService string `json:"failedService,omitempty"`

	// DryRun is set when the pass computed counts without updating services
	DryRun bool `json:"dryRun,omitempty"`

	// LastAttempt is the timestamp of the last sync attempt
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// AttemptCount is the number of sync attempts since last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastSyncTime is the timestamp of the last successful sync
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`

	// ServiceCount is the number of services seen by the last pass
	ServiceCount int `json:"serviceCount,omitempty"`

	// UpdatedCount is the number of services updated by the last pass
	UpdatedCount int `json:"updatedCount,omitempty"`

	// FailedCount is the number of service updates that failed in the last pass
	FailedCount int `json:"failedCount,omitempty"`

	// EOLTotal is the sum of EOL counts across services in the last pass
	EOLTotal int `json:"eolTotal,omitempty"`

	// SyncSchedule is the sync interval from configuration (e.g., "30m", "1h").
	// Empty when passes only run on demand.
	SyncSchedule string `json:"syncSchedule,omitempty"`
}

// Copy returns a shallow copy of the status; the time pointers are shared
// but never mutated in place.
func (s *SyncStatus) Copy() *SyncStatus {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
