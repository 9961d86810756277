package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/eol-sync/internal/api/common"
	"github.com/stacklok/eol-sync/internal/status"
	"github.com/stacklok/eol-sync/internal/sync/coordinator"
	"github.com/stacklok/eol-sync/internal/versions"
)

const updateSuccessMessage = "Updated number of EOL packages for all services successfully!"

// SystemRouter creates a router for health, readiness, version and status endpoints
func SystemRouter(coord coordinator.Coordinator) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(coord))
	r.Get("/version", versionHandler)
	r.Get("/status", statusHandler(coord))

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, HealthResponse{Status: "healthy"}, http.StatusOK)
}

// readinessHandler reports not ready when the most recent pass that actually
// ran has failed. A service that has never run a pass is ready.
func readinessHandler(coord coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		syncStatus, err := coord.Status(r.Context())
		if err != nil {
			common.WriteErrorResponse(w, "Sync status unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}

		if syncStatus.Phase == status.SyncPhaseFailed && syncStatus.LastAttempt != nil {
			common.WriteErrorResponse(w, "Last sync pass failed: "+syncStatus.Message, http.StatusServiceUnavailable)
			return
		}

		common.WriteJSONResponse(w, ReadinessResponse{Status: "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	common.WriteJSONResponse(w, VersionResponse{
		Version:   info.Version,
		Commit:    info.Commit,
		BuildDate: info.BuildDate,
		GoVersion: info.GoVersion,
		Platform:  info.Platform,
		Release:   info.Release,
	}, http.StatusOK)
}

func statusHandler(coord coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		syncStatus, err := coord.Status(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to get sync status", "error", err)
			common.WriteErrorResponse(w, "Failed to get sync status", http.StatusInternalServerError)
			return
		}
		common.WriteJSONResponse(w, syncStatus, http.StatusOK)
	}
}

// updateHandler runs a sync pass and waits for it. Requests that arrive while
// a pass is running share that pass's outcome.
func updateHandler(coord coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, syncErr := coord.Trigger(r.Context())
		if syncErr != nil {
			slog.ErrorContext(r.Context(), "Error updating EOL packages",
				"passId", syncErr.PassID,
				"stage", syncErr.Stage,
				"service", syncErr.ServiceID,
				"error", syncErr.Message)
			code := http.StatusInternalServerError
			if errors.Is(syncErr, coordinator.ErrStopped) {
				code = http.StatusServiceUnavailable
			}
			common.WriteJSONResponse(w, UpdateErrorResponse{
				Error:   "Error updating EOL packages: " + syncErr.Message,
				PassID:  syncErr.PassID,
				Stage:   string(syncErr.Stage),
				Service: syncErr.ServiceID,
			}, code)
			return
		}

		common.WriteJSONResponse(w, UpdateResponse{
			Message:  updateSuccessMessage,
			PassID:   result.PassID,
			Services: len(result.Services),
			Updated:  result.UpdatedCount,
			EOLTotal: result.EOLTotal,
			DryRun:   result.DryRun,
		}, http.StatusOK)
	}
}
