package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/eol-sync/internal/api"
	"github.com/stacklok/eol-sync/internal/sync/coordinator"
	"github.com/stacklok/eol-sync/internal/telemetry"
)

const (
	defaultAddress         = ":3001"
	defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time
	serverReadTimeout      = 10 * time.Second // Enough for headers and small requests
	serverIdleTimeout      = 60 * time.Second // Keep connections alive for reuse
	// A trigger request waits for a whole pass, so the request and write
	// timeouts are far longer than a plain API would use.
	serverRequestTimeout = 5 * time.Minute
	serverWriteTimeout   = serverRequestTimeout + 15*time.Second
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the EOL sync HTTP server",
		Long: `Start the HTTP server that runs EOL sync passes.

A pass runs on every request to /update-eol-packages and, when sync.interval is
configured, on start and then on every interval tick. The last pass outcome is
available on /status and drives /readiness.

Configuration comes from the optional --config file and EOL_SYNC_* environment
variables. See examples/ directory for sample configurations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	cmd.Flags().String("address", defaultAddress, "Address to listen on")
	cmd.Flags().String("interval", "", "Run a pass on start and then on this interval (e.g. 30m)")
	bindFlag(v, keyAddress, cmd.Flags().Lookup("address"))
	bindFlag(v, "sync.interval", cmd.Flags().Lookup("interval"))
	if err := v.BindEnv(keyAddress, "EOL_SYNC_ADDRESS"); err != nil {
		slog.Error("Error binding environment", "key", keyAddress, "error", err)
	}

	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	slog.Info("Loaded configuration",
		"apiBaseUrl", cfg.Catalog.APIBaseURL,
		"serviceBlueprint", cfg.Catalog.ServiceBlueprint,
		"frameworkBlueprint", cfg.Catalog.FrameworkBlueprint,
		"interval", cfg.Sync.Interval,
		"failurePolicy", cfg.Sync.GetFailurePolicy(),
		"dryRun", cfg.Sync.DryRun)

	stack, err := newSyncStack(ctx, cfg, v.GetString(keyDataDir))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		stack.shutdown(shutdownCtx)
	}()

	httpMetrics, err := telemetry.NewHTTPMetrics(stack.telemetry.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	router := api.NewServer(stack.coordinator,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			telemetry.TracingMiddleware(stack.telemetry.TracerProvider()),
			httpMetrics.Middleware,
			api.LoggingMiddleware,
		),
		api.WithMetricsHandler(stack.telemetry.MetricsHandler()),
	)

	address := v.GetString(keyAddress)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		if err := stack.coordinator.Start(ctx); err != nil && !errors.Is(err, coordinator.ErrStopped) {
			slog.Error("Sync coordinator failed", "error", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down server...")
	case err := <-serverErr:
		if err != nil {
			_ = stack.coordinator.Stop()
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	if err := stack.coordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}
