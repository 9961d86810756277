// Package config provides configuration loading and management for the EOL sync service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/eol-sync/internal/telemetry"
)

const (
	// EnvPrefix is the prefix for environment variables read by the service
	EnvPrefix = "EOL_SYNC"

	// DefaultAPIBaseURL is the catalog API used when apiBaseUrl is not configured
	DefaultAPIBaseURL = "https://api.getport.io/v1"

	// DefaultTimeout is the per-request timeout for catalog calls
	DefaultTimeout = 10 * time.Second

	// DefaultMaxAttempts is how many times a catalog list request is tried.
	// A single attempt keeps failed fetches fatal on first error.
	DefaultMaxAttempts = 1

	// DefaultRelation is the service relation listing the frameworks a service uses
	DefaultRelation = "used_frameworks"

	// DefaultStateProperty is the framework property holding its lifecycle state
	DefaultStateProperty = "state"

	// DefaultCountProperty is the service property the EOL count is written to
	DefaultCountProperty = "number_of_eol_packages"
)

// FailurePolicy decides what a pass does when a service update fails
type FailurePolicy string

const (
	// FailurePolicyAbort stops the pass at the first failed update
	FailurePolicyAbort FailurePolicy = "abort"

	// FailurePolicyContinue attempts every service and reports the failed ones
	FailurePolicyContinue FailurePolicy = "continue"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path  string
	viper *viper.Viper
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// WithViper overlays values from v on top of the file configuration.
// The caller decides which environment variables and flags v is bound to,
// usually through BindEnv. Without this option LoadConfig binds the process
// environment itself.
func WithViper(v *viper.Viper) Option {
	return func(cfg *loaderConfig) error {
		if v == nil {
			return fmt.Errorf("viper instance is required")
		}
		cfg.viper = v
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Catalog   CatalogConfig     `yaml:"catalog"`
	Sync      SyncConfig        `yaml:"sync,omitempty"`
	Mapping   MappingConfig     `yaml:"mapping,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// CatalogConfig defines how to reach the entity catalog
type CatalogConfig struct {
	// APIBaseURL is the catalog API base URL, for example "https://api.getport.io/v1"
	APIBaseURL string `yaml:"apiBaseUrl,omitempty"`

	// ClientID is the client identifier used to obtain an access token
	ClientID string `yaml:"clientId"`

	// ClientSecret is the client secret. Prefer ClientSecretFile outside development.
	ClientSecret string `yaml:"clientSecret,omitempty"`

	// ClientSecretFile is the path to a file containing the client secret
	ClientSecretFile string `yaml:"clientSecretFile,omitempty"`

	// ServiceBlueprint names the collection holding service entities
	ServiceBlueprint string `yaml:"serviceBlueprint"`

	// FrameworkBlueprint names the collection holding framework entities
	FrameworkBlueprint string `yaml:"frameworkBlueprint"`

	// Timeout is the per-request timeout (e.g. "10s")
	Timeout string `yaml:"timeout,omitempty"`

	// MaxAttempts bounds the tries of a list request failing with a
	// transient error. 0 means DefaultMaxAttempts.
	MaxAttempts int `yaml:"maxAttempts,omitempty"`
}

// SyncConfig defines how passes are scheduled and how failures are handled
type SyncConfig struct {
	// Interval schedules a pass periodically (e.g. "30m"). Empty means on-demand only.
	Interval string `yaml:"interval,omitempty"`

	// FailurePolicy is either "abort" (default) or "continue"
	FailurePolicy FailurePolicy `yaml:"failurePolicy,omitempty"`

	// DryRun computes counts without patching any entity
	DryRun bool `yaml:"dryRun,omitempty"`
}

// MappingConfig names the relation and properties the aggregation reads and writes
type MappingConfig struct {
	Relation      string `yaml:"relation,omitempty"`
	StateProperty string `yaml:"stateProperty,omitempty"`
	CountProperty string `yaml:"countProperty,omitempty"`
}

// envBindings maps config keys to the environment variables they are read from.
// The unprefixed names are the ones the service has always been deployed with.
var envBindings = [][]string{
	{"catalog.clientId", EnvPrefix + "_CLIENT_ID", "CLIENT_ID"},
	{"catalog.clientSecret", EnvPrefix + "_CLIENT_SECRET", "CLIENT_SECRET"},
	{"catalog.clientSecretFile", EnvPrefix + "_CLIENT_SECRET_FILE"},
	{"catalog.apiBaseUrl", EnvPrefix + "_API_URL", "API_URL"},
	{"catalog.serviceBlueprint", EnvPrefix + "_SERVICE_BLUEPRINT", "SERVICE_BLUEPRINT"},
	{"catalog.frameworkBlueprint", EnvPrefix + "_FRAMEWORK_BLUEPRINT", "FRAMEWORK_BLUEPRINT"},
	{"catalog.timeout", EnvPrefix + "_TIMEOUT"},
	{"catalog.maxAttempts", EnvPrefix + "_MAX_ATTEMPTS"},
	{"sync.interval", EnvPrefix + "_SYNC_INTERVAL"},
	{"sync.failurePolicy", EnvPrefix + "_FAILURE_POLICY"},
	{"sync.dryRun", EnvPrefix + "_DRY_RUN"},
}

// BindEnv binds the configuration keys of v to their environment variables
func BindEnv(v *viper.Viper) error {
	for _, binding := range envBindings {
		if err := v.BindEnv(binding...); err != nil {
			return fmt.Errorf("failed to bind environment for %s: %w", binding[0], err)
		}
	}
	return nil
}

// LoadConfig loads the configuration file (if any), overlays environment
// variables and flags, applies defaults and validates the result
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	v := loaderCfg.viper
	if v == nil {
		v = viper.New()
		if err := BindEnv(v); err != nil {
			return nil, err
		}
	}
	config.overlay(v)
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// overlay copies every key set in v onto the configuration
func (c *Config) overlay(v *viper.Viper) {
	overlayString(v, "catalog.clientId", &c.Catalog.ClientID)
	overlayString(v, "catalog.clientSecret", &c.Catalog.ClientSecret)
	overlayString(v, "catalog.clientSecretFile", &c.Catalog.ClientSecretFile)
	overlayString(v, "catalog.apiBaseUrl", &c.Catalog.APIBaseURL)
	overlayString(v, "catalog.serviceBlueprint", &c.Catalog.ServiceBlueprint)
	overlayString(v, "catalog.frameworkBlueprint", &c.Catalog.FrameworkBlueprint)
	overlayString(v, "catalog.timeout", &c.Catalog.Timeout)
	if v.IsSet("catalog.maxAttempts") {
		c.Catalog.MaxAttempts = v.GetInt("catalog.maxAttempts")
	}
	overlayString(v, "sync.interval", &c.Sync.Interval)
	if v.IsSet("sync.failurePolicy") {
		c.Sync.FailurePolicy = FailurePolicy(strings.ToLower(v.GetString("sync.failurePolicy")))
	}
	if v.IsSet("sync.dryRun") {
		c.Sync.DryRun = v.GetBool("sync.dryRun")
	}
}

func overlayString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func (c *Config) applyDefaults() {
	if c.Catalog.APIBaseURL == "" {
		c.Catalog.APIBaseURL = DefaultAPIBaseURL
	}
	c.Catalog.APIBaseURL = strings.TrimRight(c.Catalog.APIBaseURL, "/")
	if c.Sync.FailurePolicy == "" {
		c.Sync.FailurePolicy = FailurePolicyAbort
	}
	if c.Mapping.Relation == "" {
		c.Mapping.Relation = DefaultRelation
	}
	if c.Mapping.StateProperty == "" {
		c.Mapping.StateProperty = DefaultStateProperty
	}
	if c.Mapping.CountProperty == "" {
		c.Mapping.CountProperty = DefaultCountProperty
	}
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	if c.Catalog.ClientID == "" {
		errs = append(errs, fmt.Errorf("catalog.clientId is required"))
	}
	if c.Catalog.ClientSecret == "" && c.Catalog.ClientSecretFile == "" {
		errs = append(errs, fmt.Errorf("one of catalog.clientSecret or catalog.clientSecretFile is required"))
	}
	if c.Catalog.ServiceBlueprint == "" {
		errs = append(errs, fmt.Errorf("catalog.serviceBlueprint is required"))
	}
	if c.Catalog.FrameworkBlueprint == "" {
		errs = append(errs, fmt.Errorf("catalog.frameworkBlueprint is required"))
	}
	if c.Catalog.APIBaseURL != "" {
		if u, err := url.Parse(c.Catalog.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("catalog.apiBaseUrl must be an absolute URL, got %q", c.Catalog.APIBaseURL))
		}
	}
	if c.Catalog.Timeout != "" {
		if d, err := time.ParseDuration(c.Catalog.Timeout); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("catalog.timeout must be a positive duration (e.g., '10s'), got %q", c.Catalog.Timeout))
		}
	}
	if c.Catalog.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("catalog.maxAttempts must not be negative, got %d", c.Catalog.MaxAttempts))
	}
	if c.Sync.Interval != "" {
		if d, err := time.ParseDuration(c.Sync.Interval); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("sync.interval must be a positive duration (e.g., '30m', '1h'), got %q", c.Sync.Interval))
		}
	}
	switch c.Sync.FailurePolicy {
	case "", FailurePolicyAbort, FailurePolicyContinue:
	default:
		errs = append(errs, fmt.Errorf("sync.failurePolicy must be %q or %q, got %q",
			FailurePolicyAbort, FailurePolicyContinue, c.Sync.FailurePolicy))
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

// GetClientSecret returns the client secret using the following priority:
// 1. Read from ClientSecretFile if specified
// 2. The ClientSecret value (from the file or the environment)
//
// The secret from file will have leading/trailing whitespace trimmed.
func (c *CatalogConfig) GetClientSecret() (string, error) {
	if c.ClientSecretFile != "" {
		cleanPath := filepath.Clean(c.ClientSecretFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read client secret from file %s: %w", c.ClientSecretFile, err)
		}

		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("client secret file %s is empty", c.ClientSecretFile)
		}
		return secret, nil
	}

	if c.ClientSecret != "" {
		return c.ClientSecret, nil
	}

	return "", fmt.Errorf(
		"no client secret configured: set clientSecretFile, clientSecret or %s_CLIENT_SECRET", EnvPrefix,
	)
}

// GetTimeout returns the per-request timeout, DefaultTimeout if not specified
func (c *CatalogConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return DefaultTimeout
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return DefaultTimeout
	}
	return d
}

// GetMaxAttempts returns the attempts for list requests, DefaultMaxAttempts if not specified
func (c *CatalogConfig) GetMaxAttempts() int {
	if c.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}

// GetInterval returns the periodic sync interval, or 0 when passes are on-demand only
func (s *SyncConfig) GetInterval() time.Duration {
	if s.Interval == "" {
		return 0
	}
	d, err := time.ParseDuration(s.Interval)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// GetFailurePolicy returns the failure policy, FailurePolicyAbort if not specified
func (s *SyncConfig) GetFailurePolicy() FailurePolicy {
	if s.FailurePolicy == "" {
		return FailurePolicyAbort
	}
	return s.FailurePolicy
}
