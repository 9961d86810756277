package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stacklok/eol-sync/internal/catalog"
	"github.com/stacklok/eol-sync/internal/config"
	"github.com/stacklok/eol-sync/internal/httpclient"
	pkgsync "github.com/stacklok/eol-sync/internal/sync"
	"github.com/stacklok/eol-sync/internal/sync/coordinator"
	"github.com/stacklok/eol-sync/internal/sync/state"
	"github.com/stacklok/eol-sync/internal/telemetry"
	"github.com/stacklok/eol-sync/internal/versions"
)

const tracerName = "github.com/stacklok/eol-sync"

// syncStack holds everything a command needs to run passes
type syncStack struct {
	cfg         *config.Config
	telemetry   *telemetry.Telemetry
	coordinator coordinator.Coordinator
}

func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		slog.Error("Error binding flag", "flag", flag.Name, "error", err)
	}
}

// loadConfig loads the configuration file named by the config flag, if any,
// with environment variables and flags from v on top
func loadConfig(v *viper.Viper) (*config.Config, error) {
	opts := []config.Option{config.WithViper(v)}
	if path := v.GetString(keyConfig); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}

	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newSyncStack wires the catalog client, sync manager, status service and
// coordinator for cfg. The caller owns the returned telemetry and must shut it down.
func newSyncStack(ctx context.Context, cfg *config.Config, dataDir string) (*syncStack, error) {
	info := versions.GetVersionInfo()
	if cfg.Telemetry != nil && cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = info.Version
	}

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	tracer := tel.Tracer(tracerName)

	client := catalog.NewHTTPClient(
		cfg.Catalog.APIBaseURL,
		httpclient.NewDefaultClient(cfg.Catalog.GetTimeout(),
			httpclient.WithRetry(uint(cfg.Catalog.GetMaxAttempts()), httpclient.DefaultRetryInterval)),
		catalog.WithTracer(tracer),
		catalog.WithUserAgent(info.UserAgent()),
	)
	manager := pkgsync.NewDefaultSyncManager(client, cfg, pkgsync.WithTracer(tracer))

	stateSvc := state.NewStateService(dataDir)
	if err := stateSvc.Initialize(ctx, cfg.Sync.Interval); err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize sync status: %w", err)
	}

	syncMetrics, err := telemetry.NewSyncMetrics(tel.MeterProvider())
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}

	return &syncStack{
		cfg:         cfg,
		telemetry:   tel,
		coordinator: coordinator.New(manager, stateSvc, cfg, coordinator.WithSyncMetrics(syncMetrics)),
	}, nil
}

func (s *syncStack) shutdown(ctx context.Context) {
	if err := s.coordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		slog.Error("Failed to shutdown telemetry", "error", err)
	}
}
