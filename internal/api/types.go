package api

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status" example:"healthy"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string `json:"status" example:"ready"`
}

// VersionResponse represents the version information response
type VersionResponse struct {
	Version   string `json:"version" example:"v0.1.0"`
	Commit    string `json:"commit" example:"abc123def"`
	BuildDate string `json:"build_date" example:"2026-01-15 10:30:00 UTC"`
	GoVersion string `json:"go_version" example:"go1.25.1"`
	Platform  string `json:"platform" example:"linux/amd64"`
	Release   bool   `json:"release"`
}

// UpdateResponse is returned when a sync pass succeeds
type UpdateResponse struct {
	Message  string `json:"message"`
	PassID   string `json:"pass_id"`
	Services int    `json:"services"`
	Updated  int    `json:"updated"`
	EOLTotal int    `json:"eol_total"`
	DryRun   bool   `json:"dry_run,omitempty"`
}

// UpdateErrorResponse is returned when a sync pass fails
type UpdateErrorResponse struct {
	Error   string `json:"error"`
	PassID  string `json:"pass_id,omitempty"`
	Stage   string `json:"stage,omitempty"`
	Service string `json:"service,omitempty"`
}
