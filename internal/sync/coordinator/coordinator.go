package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stacklok/eol-sync/internal/config"
	"github.com/stacklok/eol-sync/internal/status"
	pkgsync "github.com/stacklok/eol-sync/internal/sync"
	"github.com/stacklok/eol-sync/internal/sync/state"
	"github.com/stacklok/eol-sync/internal/telemetry"
)

// passKey is the singleflight key shared by every trigger
const passKey = "sync-pass"

var (
	// ErrAlreadyStarted is returned by a second call to Start
	ErrAlreadyStarted = errors.New("sync coordinator already started")
	// ErrStopped is returned by Start and Trigger once Stop has been called
	ErrStopped = errors.New("sync coordinator is stopped")
)

// Coordinator runs sync passes on demand and on the configured interval
//
//go:generate mockgen -destination=mocks/mock_coordinator.go -package=mocks github.com/stacklok/eol-sync/internal/sync/coordinator Coordinator
type Coordinator interface {
	// Start runs scheduled passes until the context is cancelled or Stop is called.
	// Without a sync interval it only waits, and passes run through Trigger.
	// Start may be called at most once.
	Start(ctx context.Context) error

	// Stop cancels the pass in flight, if any, and waits for it and the
	// scheduling loop to return. It is safe to call more than once.
	Stop() error

	// Trigger runs a pass, or joins the pass already in flight, and returns its outcome
	Trigger(ctx context.Context) (*pkgsync.Result, *pkgsync.Error)

	// Status returns the status of the most recent pass
	Status(ctx context.Context) (*status.SyncStatus, error)
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	manager pkgsync.Manager
	config  *config.Config

	// Lifecycle management
	mu         gosync.Mutex
	started    bool
	stopped    bool
	cancelFunc context.CancelFunc
	done       chan struct{}

	// lifetime is cancelled by Stop and bounds every pass
	lifetime     context.Context
	cancelPasses context.CancelFunc
	// waiters counts triggers whose pass has not returned yet
	waiters gosync.WaitGroup

	// Overlapping triggers share one pass
	group singleflight.Group

	statusSvc state.StateService

	syncMetrics *telemetry.SyncMetrics
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithSyncMetrics sets the sync metrics for the coordinator
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(c *defaultCoordinator) {
		c.syncMetrics = metrics
	}
}

// New creates a new coordinator with injected dependencies.
// statusSvc must already be initialized.
func New(
	manager pkgsync.Manager,
	statusSvc state.StateService,
	cfg *config.Config,
	opts ...Option,
) Coordinator {
	lifetime, cancelPasses := context.WithCancel(context.Background())
	c := &defaultCoordinator{
		manager:      manager,
		statusSvc:    statusSvc,
		config:       cfg,
		done:         make(chan struct{}),
		lifetime:     lifetime,
		cancelPasses: cancelPasses,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start runs scheduled passes until the context is cancelled
func (c *defaultCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.stopped:
		c.mu.Unlock()
		return ErrStopped
	case c.started:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	coordCtx, cancel := context.WithCancel(ctx)
	c.started = true
	c.cancelFunc = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		close(c.done)
		slog.Info("Background sync coordinator shutting down")
	}()

	interval := c.config.Sync.GetInterval()
	if interval <= 0 {
		slog.Info("No sync interval configured, passes run on demand only")
		<-coordCtx.Done()
		return nil
	}

	slog.Info("Starting background sync coordinator", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Perform initial pass
	c.runScheduled(coordCtx)

	for {
		select {
		case <-ticker.C:
			c.runScheduled(coordCtx)
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop cancels the running pass and waits for the coordinator to finish
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	first := !c.stopped
	c.stopped = true
	started := c.started
	cancel := c.cancelFunc
	c.mu.Unlock()

	if first {
		slog.Info("Stopping sync coordinator")
	}
	c.cancelPasses()
	if started {
		cancel()
		<-c.done
	}
	// Wait for the pass in flight to record its final status
	c.waiters.Wait()
	return nil
}

// Status returns the status of the most recent pass
func (c *defaultCoordinator) Status(ctx context.Context) (*status.SyncStatus, error) {
	return c.statusSvc.GetSyncStatus(ctx)
}

type passOutcome struct {
	result  *pkgsync.Result
	syncErr *pkgsync.Error
}

// Trigger runs a pass, or waits for the pass already in flight.
// The pass keeps the caller's values but is cancelled only by Stop, so a
// departing caller does not fail the pass for the callers sharing it.
func (c *defaultCoordinator) Trigger(ctx context.Context) (*pkgsync.Result, *pkgsync.Error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, &pkgsync.Error{
			Err:     ErrStopped,
			Message: ErrStopped.Error(),
			Stage:   pkgsync.StageIdle,
		}
	}
	c.waiters.Add(1)
	c.mu.Unlock()

	ch := c.group.DoChan(passKey, func() (any, error) {
		passCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		defer context.AfterFunc(c.lifetime, cancel)()

		result, syncErr := c.performSync(passCtx)
		return passOutcome{result: result, syncErr: syncErr}, nil
	})

	select {
	case res := <-ch:
		c.waiters.Done()
		if res.Shared {
			slog.DebugContext(ctx, "Joined sync pass already in flight")
		}
		outcome := res.Val.(passOutcome)
		return outcome.result, outcome.syncErr
	case <-ctx.Done():
		// The result channel is buffered, so the pass can still deliver
		go func() {
			<-ch
			c.waiters.Done()
		}()
		return nil, &pkgsync.Error{
			Err:     ctx.Err(),
			Message: fmt.Sprintf("stopped waiting for sync pass: %v", ctx.Err()),
			Stage:   pkgsync.StageFailed,
		}
	}
}

func (c *defaultCoordinator) runScheduled(ctx context.Context) {
	if _, syncErr := c.Trigger(ctx); syncErr != nil {
		slog.Warn("Scheduled sync pass failed, retrying on next tick", "error", syncErr.Message)
	}
}

// performSync executes one pass and records its status and metrics
func (c *defaultCoordinator) performSync(ctx context.Context) (*pkgsync.Result, *pkgsync.Error) {
	startTime := time.Now()

	var attemptCount int
	if _, err := c.statusSvc.UpdateStatusAtomically(ctx, func(syncStatus *status.SyncStatus) bool {
		now := time.Now()
		syncStatus.Phase = status.SyncPhaseSyncing
		syncStatus.Message = "Sync in progress"
		syncStatus.LastAttempt = &now
		syncStatus.AttemptCount++
		attemptCount = syncStatus.AttemptCount
		return true
	}); err != nil {
		slog.Warn("Failed to persist syncing status", "error", err)
	}

	// Set up the final status update in a defer block so the status always
	// leaves Syncing. The default covers a pass killed by an unexpected error.
	finalize := func(syncStatus *status.SyncStatus) {
		syncStatus.Phase = status.SyncPhaseFailed
		syncStatus.Message = "Unexpected failure while running sync pass"
	}
	defer func() {
		// A pass cancelled by Stop still records where it stopped
		finalCtx := context.WithoutCancel(ctx)
		if _, err := c.statusSvc.UpdateStatusAtomically(finalCtx, func(syncStatus *status.SyncStatus) bool {
			finalize(syncStatus)
			return true
		}); err != nil {
			slog.Error("Error updating sync status", "error", err)
		}
	}()

	slog.InfoContext(ctx, "Starting sync operation", "attempt", attemptCount)

	result, syncErr := c.manager.PerformSync(ctx)
	syncDuration := time.Since(startTime)
	now := time.Now()

	finalize = func(syncStatus *status.SyncStatus) {
		applyOutcome(syncStatus, result, syncErr, now)
	}
	c.recordMetrics(ctx, result, syncErr, syncDuration)

	if syncErr != nil {
		slog.ErrorContext(ctx, "Sync failed",
			"pass_id", syncErr.PassID,
			"stage", syncErr.Stage,
			"service", syncErr.ServiceID,
			"error", syncErr.Message)
		return result, syncErr
	}

	slog.InfoContext(ctx, "Sync completed successfully",
		"pass_id", result.PassID,
		"services", len(result.Services),
		"updated", result.UpdatedCount,
		"eol_total", result.EOLTotal)
	return result, nil
}

// applyOutcome writes the outcome of a pass onto the status
func applyOutcome(syncStatus *status.SyncStatus, result *pkgsync.Result, syncErr *pkgsync.Error, now time.Time) {
	syncStatus.Stage = ""
	syncStatus.FailedService = ""
	syncStatus.FailedCount = 0

	if result != nil {
		syncStatus.PassID = result.PassID
		syncStatus.DryRun = result.DryRun
		syncStatus.ServiceCount = len(result.Services)
		syncStatus.UpdatedCount = result.UpdatedCount
		syncStatus.FailedCount = len(result.Failures)
		syncStatus.EOLTotal = result.EOLTotal
	}

	if syncErr != nil {
		syncStatus.Phase = status.SyncPhaseFailed
		syncStatus.Message = syncErr.Message
		syncStatus.Stage = string(syncErr.Stage)
		syncStatus.FailedService = syncErr.ServiceID
		if result == nil {
			syncStatus.PassID = syncErr.PassID
			syncStatus.ServiceCount = 0
			syncStatus.UpdatedCount = 0
			syncStatus.EOLTotal = 0
		}
		return
	}

	syncStatus.Phase = status.SyncPhaseComplete
	syncStatus.Message = "Sync completed successfully"
	syncStatus.LastSyncTime = &now
	syncStatus.AttemptCount = 0
}

func (c *defaultCoordinator) recordMetrics(
	ctx context.Context, result *pkgsync.Result, syncErr *pkgsync.Error, duration time.Duration,
) {
	if c.syncMetrics == nil {
		return
	}

	stage := ""
	if syncErr != nil {
		stage = string(syncErr.Stage)
	}
	c.syncMetrics.RecordPass(ctx, duration, syncErr == nil, stage)

	if result == nil {
		if syncErr != nil && syncErr.ServiceID != "" {
			c.syncMetrics.RecordServiceUpdates(ctx, 0, 1)
		}
		return
	}

	c.syncMetrics.RecordServiceUpdates(ctx, result.UpdatedCount, len(result.Failures))
	for _, svc := range result.Services {
		c.syncMetrics.RecordEOLCount(ctx, svc.ServiceID, svc.EOLCount)
	}
}
