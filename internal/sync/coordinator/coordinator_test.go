package coordinator

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/eol-sync/internal/config"
	"github.com/stacklok/eol-sync/internal/status"
	"github.com/stacklok/eol-sync/internal/sync"
	syncmocks "github.com/stacklok/eol-sync/internal/sync/mocks"
	"github.com/stacklok/eol-sync/internal/sync/state"
	statemocks "github.com/stacklok/eol-sync/internal/sync/state/mocks"
	"github.com/stacklok/eol-sync/internal/telemetry"
)

func newStateService(t *testing.T) state.StateService {
	t.Helper()
	svc := state.NewStateService("")
	require.NoError(t, svc.Initialize(context.Background(), ""))
	return svc
}

func successResult() *sync.Result {
	return &sync.Result{
		PassID: "pass-1",
		Services: []sync.ServiceResult{
			{ServiceID: "s1", EOLCount: 1, Updated: true},
			{ServiceID: "s2", EOLCount: 2, Updated: true},
		},
		UpdatedCount: 2,
		EOLTotal:     3,
	}
}

func TestCoordinator_New(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	coordinator := New(syncmocks.NewMockManager(ctrl), statemocks.NewMockStateService(ctrl), &config.Config{})

	require.NotNil(t, coordinator)
}

func TestCoordinator_Stop_BeforeStart(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	coordinator := New(syncmocks.NewMockManager(ctrl), statemocks.NewMockStateService(ctrl), &config.Config{})

	// Stop should not block or panic if called before Start
	assert.NoError(t, coordinator.Stop())
}

func TestCoordinator_Trigger_Success(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockManager := syncmocks.NewMockManager(ctrl)
	mockManager.EXPECT().PerformSync(gomock.Any()).Return(successResult(), nil)

	stateSvc := newStateService(t)
	coordinator := New(mockManager, stateSvc, &config.Config{})

	result, syncErr := coordinator.Trigger(context.Background())
	require.Nil(t, syncErr)
	assert.Equal(t, "pass-1", result.PassID)

	got, err := coordinator.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseComplete, got.Phase)
	assert.Equal(t, "pass-1", got.PassID)
	assert.Equal(t, 2, got.ServiceCount)
	assert.Equal(t, 2, got.UpdatedCount)
	assert.Equal(t, 3, got.EOLTotal)
	assert.Zero(t, got.AttemptCount)
	assert.NotNil(t, got.LastSyncTime)
	assert.NotNil(t, got.LastAttempt)
}

func TestCoordinator_Trigger_Failure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		result      *sync.Result
		syncErr     *sync.Error
		wantStage   string
		wantService string
		wantUpdated int
		wantFailed  int
	}{
		{
			name: "framework fetch fails",
			syncErr: &sync.Error{
				Err:     errors.New("HTTP 502"),
				Message: "failed to fetch entities of blueprint \"framework\": HTTP 502",
				Stage:   sync.StageLoadingFrameworks,
				PassID:  "pass-2",
			},
			wantStage: "LoadingFrameworks",
		},
		{
			name: "update fails under abort",
			syncErr: &sync.Error{
				Err:       errors.New("HTTP 404"),
				Message:   "failed to update entity \"s1\"",
				Stage:     sync.StagePersisting,
				ServiceID: "s1",
				PassID:    "pass-2",
			},
			wantStage:   "Persisting",
			wantService: "s1",
		},
		{
			name: "update fails under continue",
			result: &sync.Result{
				PassID: "pass-2",
				Services: []sync.ServiceResult{
					{ServiceID: "s1", EOLCount: 1, Updated: true},
					{ServiceID: "s2", EOLCount: 0},
				},
				UpdatedCount: 1,
				EOLTotal:     1,
				Failures:     []sync.ServiceResult{{ServiceID: "s2"}},
			},
			syncErr: &sync.Error{
				Err:       errors.New("HTTP 404"),
				Message:   "1 of 2 service updates failed",
				Stage:     sync.StagePersisting,
				ServiceID: "s2",
				PassID:    "pass-2",
			},
			wantStage:   "Persisting",
			wantService: "s2",
			wantUpdated: 1,
			wantFailed:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			mockManager := syncmocks.NewMockManager(ctrl)
			mockManager.EXPECT().PerformSync(gomock.Any()).Return(tt.result, tt.syncErr).Times(2)

			coordinator := New(mockManager, newStateService(t), &config.Config{})

			_, syncErr := coordinator.Trigger(context.Background())
			require.NotNil(t, syncErr)
			_, syncErr = coordinator.Trigger(context.Background())
			require.NotNil(t, syncErr)

			got, err := coordinator.Status(context.Background())
			require.NoError(t, err)
			assert.Equal(t, status.SyncPhaseFailed, got.Phase)
			assert.Equal(t, tt.syncErr.Message, got.Message)
			assert.Equal(t, "pass-2", got.PassID)
			assert.Equal(t, tt.wantStage, got.Stage)
			assert.Equal(t, tt.wantService, got.FailedService)
			assert.Equal(t, tt.wantUpdated, got.UpdatedCount)
			assert.Equal(t, tt.wantFailed, got.FailedCount)
			assert.Equal(t, 2, got.AttemptCount)
			assert.Nil(t, got.LastSyncTime)
		})
	}
}

func TestCoordinator_Trigger_CoalescesOverlappingCalls(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockManager := syncmocks.NewMockManager(ctrl)

	started := make(chan struct{})
	release := make(chan struct{})
	mockManager.EXPECT().PerformSync(gomock.Any()).DoAndReturn(func(context.Context) (*sync.Result, *sync.Error) {
		close(started)
		<-release
		return successResult(), nil
	}).Times(1)

	coordinator := New(mockManager, newStateService(t), &config.Config{})

	results := make([]*sync.Result, 3)
	var wg gosync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = coordinator.Trigger(context.Background())
	}()
	<-started

	for i := 1; i < len(results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = coordinator.Trigger(context.Background())
		}(i)
	}

	// Give the joining triggers time to attach to the pass in flight
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "pass-1", r.PassID)
	}
}

func TestCoordinator_Trigger_CallerCancelled(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockManager := syncmocks.NewMockManager(ctrl)

	release := make(chan struct{})
	passCtxErr := make(chan error, 1)
	mockManager.EXPECT().PerformSync(gomock.Any()).DoAndReturn(func(ctx context.Context) (*sync.Result, *sync.Error) {
		<-release
		passCtxErr <- ctx.Err()
		return successResult(), nil
	})

	coordinator := New(mockManager, newStateService(t), &config.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, syncErr := coordinator.Trigger(ctx)
	assert.Nil(t, result)
	require.NotNil(t, syncErr)
	assert.ErrorIs(t, syncErr, context.DeadlineExceeded)

	// The pass itself is not cancelled by the departing caller
	close(release)
	assert.NoError(t, <-passCtxErr)
}

func TestCoordinator_Stop_CancelsRunningPass(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockManager := syncmocks.NewMockManager(ctrl)

	started := make(chan struct{})
	mockManager.EXPECT().PerformSync(gomock.Any()).DoAndReturn(func(ctx context.Context) (*sync.Result, *sync.Error) {
		close(started)
		<-ctx.Done()
		return nil, &sync.Error{
			Err:       ctx.Err(),
			Message:   "sync cancelled before updating service \"s2\": context canceled",
			Stage:     sync.StagePersisting,
			ServiceID: "s2",
			PassID:    "pass-3",
		}
	})

	coordinator := New(mockManager, newStateService(t), &config.Config{})

	type outcome struct {
		result  *sync.Result
		syncErr *sync.Error
	}
	outcomes := make(chan outcome, 1)
	go func() {
		result, syncErr := coordinator.Trigger(context.Background())
		outcomes <- outcome{result: result, syncErr: syncErr}
	}()
	<-started

	require.NoError(t, coordinator.Stop())

	// Stop returns only once the pass has recorded its final status
	got, err := coordinator.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseFailed, got.Phase)
	assert.Equal(t, "Persisting", got.Stage)
	assert.Equal(t, "s2", got.FailedService)
	assert.Equal(t, "pass-3", got.PassID)

	select {
	case o := <-outcomes:
		assert.Nil(t, o.result)
		require.NotNil(t, o.syncErr)
		assert.Equal(t, sync.StagePersisting, o.syncErr.Stage)
		assert.ErrorIs(t, o.syncErr, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("trigger did not return after Stop")
	}
}

func TestCoordinator_Trigger_AfterStop(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	// No PerformSync expectation: a stopped coordinator runs no pass
	coordinator := New(syncmocks.NewMockManager(ctrl), newStateService(t), &config.Config{})

	require.NoError(t, coordinator.Stop())
	require.NoError(t, coordinator.Stop())

	result, syncErr := coordinator.Trigger(context.Background())
	assert.Nil(t, result)
	require.NotNil(t, syncErr)
	assert.ErrorIs(t, syncErr, ErrStopped)

	assert.ErrorIs(t, coordinator.Start(context.Background()), ErrStopped)
}

func TestCoordinator_Start_Twice(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	coordinator := New(syncmocks.NewMockManager(ctrl), newStateService(t), &config.Config{})

	errCh := make(chan error, 2)
	for range 2 {
		go func() { errCh <- coordinator.Start(context.Background()) }()
	}

	// The call that loses the race returns at once
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrAlreadyStarted)
	case <-time.After(5 * time.Second):
		t.Fatal("second Start did not return")
	}

	require.NoError(t, coordinator.Stop())
	assert.NoError(t, <-errCh)
}

func TestCoordinator_Trigger_StatusErrorsAreNotFatal(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockManager := syncmocks.NewMockManager(ctrl)
	mockStateSvc := statemocks.NewMockStateService(ctrl)

	mockStateSvc.EXPECT().UpdateStatusAtomically(gomock.Any(), gomock.Any()).
		Return(false, errors.New("disk full")).Times(2)
	mockManager.EXPECT().PerformSync(gomock.Any()).Return(successResult(), nil)

	coordinator := New(mockManager, mockStateSvc, &config.Config{})

	result, syncErr := coordinator.Trigger(context.Background())
	require.Nil(t, syncErr)
	assert.Equal(t, 2, result.UpdatedCount)
}

func TestCoordinator_Trigger_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	metrics, err := telemetry.NewSyncMetrics(mp)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	mockManager := syncmocks.NewMockManager(ctrl)
	mockManager.EXPECT().PerformSync(gomock.Any()).Return(successResult(), nil)

	coordinator := New(mockManager, newStateService(t), &config.Config{}, WithSyncMetrics(metrics))
	_, syncErr := coordinator.Trigger(context.Background())
	require.Nil(t, syncErr)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := make(map[string]bool)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["eol_sync_pass_duration_seconds"])
	assert.True(t, names["eol_sync_service_updates_total"])
	assert.True(t, names["eol_sync_service_eol_packages"])
}

func TestCoordinator_Start_OnDemandOnly(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockManager := syncmocks.NewMockManager(ctrl)
	// No interval: Start must not run any pass

	coordinator := New(mockManager, newStateService(t), &config.Config{})

	errCh := make(chan error, 1)
	go func() { errCh <- coordinator.Start(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, coordinator.Stop())
	assert.NoError(t, <-errCh)
}

func TestCoordinator_Start_RunsInitialAndScheduledPasses(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockManager := syncmocks.NewMockManager(ctrl)

	passes := make(chan struct{}, 10)
	mockManager.EXPECT().PerformSync(gomock.Any()).DoAndReturn(func(context.Context) (*sync.Result, *sync.Error) {
		passes <- struct{}{}
		return successResult(), nil
	}).MinTimes(2)

	cfg := &config.Config{Sync: config.SyncConfig{Interval: "20ms"}}
	coordinator := New(mockManager, newStateService(t), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- coordinator.Start(ctx) }()

	for range 2 {
		select {
		case <-passes:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for scheduled pass")
		}
	}

	require.NoError(t, coordinator.Stop())
	assert.NoError(t, <-errCh)
}

func TestApplyOutcome_ClearsPreviousFailure(t *testing.T) {
	t.Parallel()

	syncStatus := &status.SyncStatus{
		Phase:         status.SyncPhaseFailed,
		Stage:         "Persisting",
		FailedService: "s1",
		FailedCount:   1,
		AttemptCount:  3,
	}

	now := time.Now()
	applyOutcome(syncStatus, successResult(), nil, now)

	assert.Equal(t, status.SyncPhaseComplete, syncStatus.Phase)
	assert.Empty(t, syncStatus.Stage)
	assert.Empty(t, syncStatus.FailedService)
	assert.Zero(t, syncStatus.FailedCount)
	assert.Zero(t, syncStatus.AttemptCount)
	assert.Equal(t, &now, syncStatus.LastSyncTime)
}
