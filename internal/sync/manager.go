package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/stacklok/eol-sync/internal/catalog"
	"github.com/stacklok/eol-sync/internal/config"
	"github.com/stacklok/eol-sync/internal/eol"
	"github.com/stacklok/eol-sync/internal/httpclient"
	"github.com/stacklok/eol-sync/internal/otel"
)

// Stage identifies where a pass is, or where it stopped
type Stage string

// Pass stages, in the order a pass moves through them
const (
	StageIdle              Stage = "Idle"
	StageAuthenticating    Stage = "Authenticating"
	StageLoadingFrameworks Stage = "LoadingFrameworks"
	StageLoadingServices   Stage = "LoadingServices"
	StageAggregating       Stage = "Aggregating"
	StagePersisting        Stage = "Persisting"
	StageCompleted         Stage = "Completed"
	StageFailed            Stage = "Failed"
)

// Error is the terminal failure of a pass. Stage is the stage that failed and
// ServiceID names the service whose update failed, when there is one.
type Error struct {
	Err       error
	Message   string
	Stage     Stage
	ServiceID string
	PassID    string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ServiceResult is the outcome for one service
type ServiceResult struct {
	ServiceID string
	EOLCount  int
	// Updated is false in dry-run mode and when the update failed
	Updated bool
	Err     error
}

// Result contains the result of a sync pass
type Result struct {
	PassID       string
	Services     []ServiceResult
	UpdatedCount int
	EOLTotal     int
	StartedAt    time.Time
	Duration     time.Duration
	DryRun       bool
	// Failures holds the services whose update failed under the continue policy
	Failures []ServiceResult
}

// Manager runs sync passes against the catalog.
// A Manager does no coordination of its own: two passes running at once
// interleave their writes and the last write per service wins.
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/stacklok/eol-sync/internal/sync Manager
type Manager interface {
	// PerformSync executes one complete pass: authenticate, load frameworks,
	// load services, then compute and persist each service's EOL count.
	PerformSync(ctx context.Context) (*Result, *Error)
}

// Option configures the default sync manager
type Option func(*defaultSyncManager)

// WithTracer sets the tracer used for the pass and stage spans
func WithTracer(tracer trace.Tracer) Option {
	return func(m *defaultSyncManager) {
		m.tracer = tracer
	}
}

// WithClock overrides the time source used for pass timing
func WithClock(now func() time.Time) Option {
	return func(m *defaultSyncManager) {
		m.now = now
	}
}

// defaultSyncManager is the default implementation of Manager
type defaultSyncManager struct {
	client catalog.Client
	cfg    *config.Config
	tracer trace.Tracer
	now    func() time.Time
}

// NewDefaultSyncManager creates a new defaultSyncManager
func NewDefaultSyncManager(client catalog.Client, cfg *config.Config, opts ...Option) Manager {
	m := &defaultSyncManager{
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PerformSync executes one complete pass.
// Under the abort policy the first failed update ends the pass with a nil
// result. Under the continue policy every service is attempted and the result
// is returned together with an error when any update failed.
func (s *defaultSyncManager) PerformSync(ctx context.Context) (*Result, *Error) {
	result := &Result{
		PassID:    uuid.NewString(),
		StartedAt: s.now(),
		DryRun:    s.cfg.Sync.DryRun,
	}
	policy := s.cfg.Sync.GetFailurePolicy()

	ctx, span := otel.StartSpan(ctx, s.tracer, "sync.pass",
		trace.WithAttributes(
			otel.AttrPassID.String(result.PassID),
			otel.AttrDryRun.Bool(result.DryRun),
			otel.AttrFailurePolicy.String(string(policy)),
		))
	defer span.End()

	logger := slog.With("pass_id", result.PassID)
	logger.InfoContext(ctx, "Starting sync pass",
		"serviceBlueprint", s.cfg.Catalog.ServiceBlueprint,
		"frameworkBlueprint", s.cfg.Catalog.FrameworkBlueprint,
		"failurePolicy", policy,
		"dryRun", result.DryRun)

	syncErr := s.run(ctx, logger, result, policy)
	result.Duration = s.now().Sub(result.StartedAt)

	if syncErr != nil {
		syncErr.PassID = result.PassID
		otel.RecordError(span, syncErr)
		span.SetAttributes(otel.AttrStage.String(string(syncErr.Stage)))
		logger.ErrorContext(ctx, "Sync pass failed",
			"stage", syncErr.Stage,
			"service", syncErr.ServiceID,
			"error", syncErr.Message,
			"duration", result.Duration)
		if policy == config.FailurePolicyContinue && syncErr.Stage == StagePersisting && result.Services != nil {
			return result, syncErr
		}
		return nil, syncErr
	}

	span.SetAttributes(
		otel.AttrStage.String(string(StageCompleted)),
		otel.AttrUpdatedCount.Int(result.UpdatedCount),
	)
	logger.InfoContext(ctx, "Sync pass completed",
		"services", len(result.Services),
		"updated", result.UpdatedCount,
		"eolTotal", result.EOLTotal,
		"duration", result.Duration)

	return result, nil
}

// run moves the pass through its stages, filling in result
func (s *defaultSyncManager) run(
	ctx context.Context, logger *slog.Logger, result *Result, policy config.FailurePolicy,
) *Error {
	token, syncErr := s.authenticate(ctx)
	if syncErr != nil {
		return syncErr
	}

	frameworks, syncErr := s.loadEntities(ctx, StageLoadingFrameworks, s.cfg.Catalog.FrameworkBlueprint, token)
	if syncErr != nil {
		return syncErr
	}

	services, syncErr := s.loadEntities(ctx, StageLoadingServices, s.cfg.Catalog.ServiceBlueprint, token)
	if syncErr != nil {
		return syncErr
	}

	index := eol.BuildStateIndex(frameworks, s.cfg.Mapping.StateProperty)
	logger.InfoContext(ctx, "Loaded catalog entities",
		"frameworks", len(index),
		"eolFrameworks", index.EOLCount(),
		"services", len(services))

	result.Services = s.aggregate(ctx, services, index)
	for _, svc := range result.Services {
		result.EOLTotal += svc.EOLCount
	}

	if result.DryRun {
		for _, svc := range result.Services {
			logger.InfoContext(ctx, "Dry run, skipping update", "service", svc.ServiceID, "eolCount", svc.EOLCount)
		}
		return nil
	}

	return s.persist(ctx, logger, result, token, policy)
}

func (s *defaultSyncManager) authenticate(ctx context.Context) (*oauth2.Token, *Error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "sync."+string(StageAuthenticating))
	defer span.End()

	secret, err := s.cfg.Catalog.GetClientSecret()
	if err != nil {
		otel.RecordError(span, err)
		return nil, &Error{
			Err:     err,
			Message: fmt.Sprintf("failed to resolve client secret: %v", err),
			Stage:   StageAuthenticating,
		}
	}

	token, err := s.client.Authenticate(ctx, s.cfg.Catalog.ClientID, secret)
	if err != nil {
		otel.RecordError(span, err)
		return nil, &Error{
			Err:     err,
			Message: err.Error(),
			Stage:   StageAuthenticating,
		}
	}

	return token, nil
}

func (s *defaultSyncManager) loadEntities(
	ctx context.Context, stage Stage, blueprint string, token *oauth2.Token,
) ([]catalog.Entity, *Error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "sync."+string(stage),
		trace.WithAttributes(otel.AttrBlueprint.String(blueprint)))
	defer span.End()

	entities, err := s.client.ListEntities(ctx, blueprint, token)
	if err != nil {
		otel.RecordError(span, err)
		return nil, &Error{
			Err:     err,
			Message: err.Error(),
			Stage:   stage,
		}
	}

	span.SetAttributes(otel.AttrResultCount.Int(len(entities)))
	return entities, nil
}

// aggregate computes the count of every service, keeping fetch order
func (s *defaultSyncManager) aggregate(
	ctx context.Context, services []catalog.Entity, index eol.StateIndex,
) []ServiceResult {
	_, span := otel.StartSpan(ctx, s.tracer, "sync."+string(StageAggregating))
	defer span.End()

	results := make([]ServiceResult, 0, len(services))
	for _, svc := range services {
		results = append(results, ServiceResult{
			ServiceID: svc.Identifier,
			EOLCount:  eol.CountEOL(svc, index, s.cfg.Mapping.Relation),
		})
	}

	span.SetAttributes(otel.AttrResultCount.Int(len(results)))
	return results
}

// persist patches each service in order according to the failure policy
func (s *defaultSyncManager) persist(
	ctx context.Context, logger *slog.Logger, result *Result, token *oauth2.Token, policy config.FailurePolicy,
) *Error {
	ctx, span := otel.StartSpan(ctx, s.tracer, "sync."+string(StagePersisting))
	defer span.End()

	blueprint := s.cfg.Catalog.ServiceBlueprint
	var errs []error

	for i := range result.Services {
		svc := &result.Services[i]

		// Cancellation stops the pass under either policy
		if err := ctx.Err(); err != nil {
			otel.RecordError(span, err)
			return &Error{
				Err:       err,
				Message:   fmt.Sprintf("sync cancelled before updating service %q: %v", svc.ServiceID, err),
				Stage:     StagePersisting,
				ServiceID: svc.ServiceID,
			}
		}

		properties := map[string]any{s.cfg.Mapping.CountProperty: svc.EOLCount}
		err := s.client.PatchEntityProperties(ctx, blueprint, svc.ServiceID, properties, token)
		if err == nil {
			svc.Updated = true
			result.UpdatedCount++
			logger.DebugContext(ctx, "Updated service", "service", svc.ServiceID, "eolCount", svc.EOLCount)
			continue
		}

		svc.Err = err
		otel.RecordError(span, err)

		reason := updateFailureReason(err)
		if policy != config.FailurePolicyContinue {
			logger.WarnContext(ctx, "Failed to update service, aborting pass",
				"service", svc.ServiceID, "reason", reason, "error", err)
			return &Error{
				Err:       err,
				Message:   err.Error(),
				Stage:     StagePersisting,
				ServiceID: svc.ServiceID,
			}
		}

		logger.WarnContext(ctx, "Failed to update service, continuing",
			"service", svc.ServiceID, "reason", reason, "error", err)
		result.Failures = append(result.Failures, *svc)
		errs = append(errs, err)
	}

	span.SetAttributes(
		otel.AttrUpdatedCount.Int(result.UpdatedCount),
		otel.AttrFailedCount.Int(len(result.Failures)),
	)

	if len(result.Failures) > 0 {
		return &Error{
			Err: errors.Join(errs...),
			Message: fmt.Sprintf("%d of %d service updates failed, first failure: %v",
				len(result.Failures), len(result.Services), result.Failures[0].Err),
			Stage:     StagePersisting,
			ServiceID: result.Failures[0].ServiceID,
		}
	}

	return nil
}

// updateFailureReason names the kind of failure behind a rejected update
func updateFailureReason(err error) string {
	var httpErr *httpclient.HTTPError
	switch {
	case httpclient.IsNotFound(err):
		return "not_found"
	case httpclient.IsUnauthorized(err):
		return "unauthorized"
	case errors.Is(err, catalog.ErrInvalidToken):
		return "missing_token"
	case errors.As(err, &httpErr):
		return "rejected"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "transport"
	}
}
