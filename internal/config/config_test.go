package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/eol-sync/internal/telemetry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		yamlContent string
		overrides   map[string]any
		wantConfig  *Config
		wantErr     string
	}{
		{
			name: "full_config",
			yamlContent: `catalog:
  apiBaseUrl: https://api.example.com/v1/
  clientId: my-client
  clientSecret: my-secret
  serviceBlueprint: service
  frameworkBlueprint: framework
  timeout: 5s
  maxAttempts: 5
sync:
  interval: 30m
  failurePolicy: continue
  dryRun: true
mapping:
  relation: frameworks
  stateProperty: lifecycle
  countProperty: eol_count`,
			wantConfig: &Config{
				Catalog: CatalogConfig{
					APIBaseURL:         "https://api.example.com/v1",
					ClientID:           "my-client",
					ClientSecret:       "my-secret",
					ServiceBlueprint:   "service",
					FrameworkBlueprint: "framework",
					Timeout:            "5s",
					MaxAttempts:        5,
				},
				Sync: SyncConfig{
					Interval:      "30m",
					FailurePolicy: FailurePolicyContinue,
					DryRun:        true,
				},
				Mapping: MappingConfig{
					Relation:      "frameworks",
					StateProperty: "lifecycle",
					CountProperty: "eol_count",
				},
			},
		},
		{
			name: "minimal_config_gets_defaults",
			yamlContent: `catalog:
  clientId: my-client
  clientSecret: my-secret
  serviceBlueprint: service
  frameworkBlueprint: framework`,
			wantConfig: &Config{
				Catalog: CatalogConfig{
					APIBaseURL:         DefaultAPIBaseURL,
					ClientID:           "my-client",
					ClientSecret:       "my-secret",
					ServiceBlueprint:   "service",
					FrameworkBlueprint: "framework",
				},
				Sync: SyncConfig{FailurePolicy: FailurePolicyAbort},
				Mapping: MappingConfig{
					Relation:      DefaultRelation,
					StateProperty: DefaultStateProperty,
					CountProperty: DefaultCountProperty,
				},
			},
		},
		{
			name: "overrides_win_over_file",
			yamlContent: `catalog:
  clientId: file-client
  clientSecret: file-secret
  serviceBlueprint: service
  frameworkBlueprint: framework`,
			overrides: map[string]any{
				"catalog.clientId":   "env-client",
				"sync.failurePolicy": "CONTINUE",
				"sync.dryRun":        true,
			},
			wantConfig: &Config{
				Catalog: CatalogConfig{
					APIBaseURL:         DefaultAPIBaseURL,
					ClientID:           "env-client",
					ClientSecret:       "file-secret",
					ServiceBlueprint:   "service",
					FrameworkBlueprint: "framework",
				},
				Sync: SyncConfig{FailurePolicy: FailurePolicyContinue, DryRun: true},
				Mapping: MappingConfig{
					Relation:      DefaultRelation,
					StateProperty: DefaultStateProperty,
					CountProperty: DefaultCountProperty,
				},
			},
		},
		{
			name: "missing_required_fields",
			yamlContent: `catalog:
  apiBaseUrl: https://api.example.com`,
			wantErr: "catalog.clientId is required",
		},
		{
			name: "invalid_interval",
			yamlContent: `catalog:
  clientId: c
  clientSecret: s
  serviceBlueprint: service
  frameworkBlueprint: framework
sync:
  interval: soon`,
			wantErr: "sync.interval must be a positive duration",
		},
		{
			name: "invalid_failure_policy",
			yamlContent: `catalog:
  clientId: c
  clientSecret: s
  serviceBlueprint: service
  frameworkBlueprint: framework
sync:
  failurePolicy: retry`,
			wantErr: "sync.failurePolicy must be",
		},
		{
			name: "invalid_base_url",
			yamlContent: `catalog:
  apiBaseUrl: not-a-url
  clientId: c
  clientSecret: s
  serviceBlueprint: service
  frameworkBlueprint: framework`,
			wantErr: "catalog.apiBaseUrl must be an absolute URL",
		},
		{
			name: "negative_max_attempts",
			yamlContent: `catalog:
  clientId: c
  clientSecret: s
  serviceBlueprint: service
  frameworkBlueprint: framework
  maxAttempts: -1`,
			wantErr: "catalog.maxAttempts must not be negative",
		},
		{
			name:        "invalid_yaml",
			yamlContent: "catalog: [unclosed",
			wantErr:     "failed to parse YAML config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfig(t, tt.yamlContent)
			v := viper.New()
			for key, value := range tt.overrides {
				v.Set(key, value)
			}

			cfg, err := LoadConfig(WithConfigPath(path), WithViper(v))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantConfig, cfg)
		})
	}
}

func TestLoadConfig_WithoutFile(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.Set("catalog.clientId", "c")
	v.Set("catalog.clientSecret", "s")
	v.Set("catalog.serviceBlueprint", "service")
	v.Set("catalog.frameworkBlueprint", "framework")

	cfg, err := LoadConfig(WithViper(v))
	require.NoError(t, err)
	assert.Equal(t, "c", cfg.Catalog.ClientID)
	assert.Equal(t, DefaultAPIBaseURL, cfg.Catalog.APIBaseURL)
}

func TestLoadConfig_WithTelemetry(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `catalog:
  clientId: c
  clientSecret: s
  serviceBlueprint: service
  frameworkBlueprint: framework
telemetry:
  enabled: true
  tracing:
    enabled: true
    sampling: 2.0`)

	_, err := LoadConfig(WithConfigPath(path), WithViper(viper.New()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sampling must be between")
}

func TestWithConfigPath(t *testing.T) {
	t.Parallel()

	t.Run("empty path", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfig(WithConfigPath(""))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "path is required")
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfig(WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to evaluate symlinks")
	})

	t.Run("nil viper", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfig(WithViper(nil))
		require.Error(t, err)
	})
}

func TestBindEnv(t *testing.T) {
	t.Setenv("CLIENT_ID", "legacy-client")
	t.Setenv(EnvPrefix+"_SERVICE_BLUEPRINT", "svc")
	t.Setenv("FRAMEWORK_BLUEPRINT", "fw")
	t.Setenv("CLIENT_SECRET", "legacy-secret")
	t.Setenv(EnvPrefix+"_SYNC_INTERVAL", "1h")
	t.Setenv(EnvPrefix+"_MAX_ATTEMPTS", "2")

	v := viper.New()
	require.NoError(t, BindEnv(v))

	cfg, err := LoadConfig(WithViper(v))
	require.NoError(t, err)
	assert.Equal(t, "legacy-client", cfg.Catalog.ClientID)
	assert.Equal(t, "legacy-secret", cfg.Catalog.ClientSecret)
	assert.Equal(t, "svc", cfg.Catalog.ServiceBlueprint)
	assert.Equal(t, "fw", cfg.Catalog.FrameworkBlueprint)
	assert.Equal(t, time.Hour, cfg.Sync.GetInterval())
	assert.Equal(t, 2, cfg.Catalog.MaxAttempts)
}

func TestCatalogConfig_GetClientSecret(t *testing.T) {
	t.Parallel()

	secretFile := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(secretFile, []byte("  from-file\n"), 0600))
	emptyFile := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(emptyFile, []byte("\n"), 0600))

	tests := []struct {
		name    string
		cfg     CatalogConfig
		want    string
		wantErr bool
	}{
		{name: "file takes priority", cfg: CatalogConfig{ClientSecret: "inline", ClientSecretFile: secretFile}, want: "from-file"},
		{name: "inline secret", cfg: CatalogConfig{ClientSecret: "inline"}, want: "inline"},
		{name: "missing file", cfg: CatalogConfig{ClientSecretFile: "/does/not/exist"}, wantErr: true},
		{name: "empty file", cfg: CatalogConfig{ClientSecretFile: emptyFile}, wantErr: true},
		{name: "nothing configured", cfg: CatalogConfig{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.cfg.GetClientSecret()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetters(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultTimeout, (&CatalogConfig{}).GetTimeout())
	assert.Equal(t, 3*time.Second, (&CatalogConfig{Timeout: "3s"}).GetTimeout())
	assert.Equal(t, DefaultTimeout, (&CatalogConfig{Timeout: "bogus"}).GetTimeout())

	assert.Equal(t, DefaultMaxAttempts, (&CatalogConfig{}).GetMaxAttempts())
	assert.Equal(t, 4, (&CatalogConfig{MaxAttempts: 4}).GetMaxAttempts())

	assert.Equal(t, time.Duration(0), (&SyncConfig{}).GetInterval())
	assert.Equal(t, 5*time.Minute, (&SyncConfig{Interval: "5m"}).GetInterval())
	assert.Equal(t, FailurePolicyAbort, (&SyncConfig{}).GetFailurePolicy())
	assert.Equal(t, FailurePolicyContinue, (&SyncConfig{FailurePolicy: FailurePolicyContinue}).GetFailurePolicy())
}

func TestValidate_NilConfig(t *testing.T) {
	t.Parallel()

	var cfg *Config
	require.Error(t, cfg.Validate())

	valid := &Config{
		Catalog: CatalogConfig{
			ClientID:           "c",
			ClientSecretFile:   "/run/secrets/catalog",
			ServiceBlueprint:   "service",
			FrameworkBlueprint: "framework",
		},
		Telemetry: &telemetry.Config{Enabled: false},
	}
	require.NoError(t, valid.Validate())
}
