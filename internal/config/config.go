package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration represents the complete application configuration.
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Repo       RepoConfig       `yaml:"repo"`
	Cache      CacheConfig      `yaml:"cache"`
	Network    NetworkConfig    `yaml:"network"`
	Signing    SigningConfig    `yaml:"signing"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Mirror     MirrorConfig     `yaml:"mirror"`
	Sysroot    SysrootConfig    `yaml:"sysroot"`
}

// GlobalConfig represents global application settings.
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	MetricsPort int    `yaml:"metrics_port"`
	HealthPort  int    `yaml:"health_port"`
	ProfilePort int    `yaml:"profile_port"`
}

// RepoConfig represents object store settings.
type RepoConfig struct {
	Path          string `yaml:"path"`
	Mode          string `yaml:"mode"`
	FsyncPolicy   string `yaml:"fsync_policy"`
	MaxConcurrency int   `yaml:"max_concurrency"`
}

// CacheConfig represents the byte-range cache configuration.
type CacheConfig struct {
	TTL            time.Duration `yaml:"ttl"`
	MaxEntries     int           `yaml:"max_entries"`
	EvictionPolicy string        `yaml:"eviction_policy"`
	MaxBytes       string        `yaml:"max_bytes"`
}

// NetworkConfig represents pull engine network configuration.
type NetworkConfig struct {
	Timeouts       TimeoutConfig        `yaml:"timeouts"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	FetchPoolSize  int                  `yaml:"fetch_pool_size"`
	PreferDeltas   bool                 `yaml:"prefer_deltas"`
}

// TimeoutConfig represents timeout settings.
type TimeoutConfig struct {
	Connect time.Duration `yaml:"connect"`
	Read    time.Duration `yaml:"read"`
	Write   time.Duration `yaml:"write"`
}

// RetryConfig represents retry settings.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// CircuitBreakerConfig represents circuit breaker settings guarding a
// remote that is repeatedly failing.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// SigningConfig represents commit signature verification settings.
type SigningConfig struct {
	RequireSignature bool     `yaml:"require_signature"`
	GPGKeyringPath   string   `yaml:"gpg_keyring_path"`
	Ed25519PubKeys   []string `yaml:"ed25519_pubkeys"`
}

// MonitoringConfig represents monitoring settings.
type MonitoringConfig struct {
	Metrics      MetricsConfig      `yaml:"metrics"`
	HealthChecks HealthChecksConfig `yaml:"health_checks"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// MetricsConfig represents metrics settings.
type MetricsConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Prometheus   bool              `yaml:"prometheus"`
	CustomLabels map[string]string `yaml:"custom_labels"`
}

// HealthChecksConfig represents health check settings.
type HealthChecksConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Structured bool           `yaml:"structured"`
	Format     string         `yaml:"format"`
	Sampling   SamplingConfig `yaml:"sampling"`
}

// SamplingConfig represents log sampling settings.
type SamplingConfig struct {
	Enabled bool `yaml:"enabled"`
	Rate    int  `yaml:"rate"`
}

// MirrorConfig represents the optional S3 mirror/backup surface for a
// repository's static file tree.
type MirrorConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
	Region     string `yaml:"region"`
	StorageTier string `yaml:"storage_tier"`
}

// SysrootConfig represents deployment manager and bootloader settings.
type SysrootConfig struct {
	Path             string `yaml:"path"`
	BootloaderConfig string `yaml:"bootloader_config"`
	DefaultStateroot string `yaml:"default_stateroot"`
	KeepDeployments  int    `yaml:"keep_deployments"`
}

// NewDefault returns a configuration with sensible defaults.
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			LogFile:     "",
			MetricsPort: 8080,
			HealthPort:  8081,
			ProfilePort: 6060,
		},
		Repo: RepoConfig{
			Path:           "/ostree/repo",
			Mode:           "bare",
			FsyncPolicy:    "per-object",
			MaxConcurrency: 8,
		},
		Cache: CacheConfig{
			TTL:            5 * time.Minute,
			MaxEntries:     100000,
			EvictionPolicy: "weighted_lru",
			MaxBytes:       "2GB",
		},
		Network: NetworkConfig{
			Timeouts: TimeoutConfig{
				Connect: 10 * time.Second,
				Read:    30 * time.Second,
				Write:   300 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   1 * time.Second,
				MaxDelay:    30 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Timeout:          60 * time.Second,
			},
			FetchPoolSize: 8,
			PreferDeltas:  true,
		},
		Signing: SigningConfig{
			RequireSignature: false,
			GPGKeyringPath:   "",
			Ed25519PubKeys:   nil,
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:    true,
				Prometheus: true,
				CustomLabels: map[string]string{
					"service": "ostree",
				},
			},
			HealthChecks: HealthChecksConfig{
				Enabled:  true,
				Interval: 30 * time.Second,
				Timeout:  5 * time.Second,
			},
			Logging: LoggingConfig{
				Structured: true,
				Format:     "json",
				Sampling: SamplingConfig{
					Enabled: true,
					Rate:    1000,
				},
			},
		},
		Mirror: MirrorConfig{
			Enabled:     false,
			Prefix:      "ostree",
			StorageTier: "standard",
		},
		Sysroot: SysrootConfig{
			Path:             "/ostree",
			BootloaderConfig: "grub2",
			DefaultStateroot: "default",
			KeepDeployments:  2,
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables.
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := os.Getenv("OSTREE_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("OSTREE_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("OSTREE_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Global.MetricsPort = port
		}
	}

	// Repo settings
	if val := os.Getenv("OSTREE_REPO_PATH"); val != "" {
		c.Repo.Path = val
	}
	if val := os.Getenv("OSTREE_REPO_MODE"); val != "" {
		c.Repo.Mode = val
	}
	if val := os.Getenv("OSTREE_REPO_MAX_CONCURRENCY"); val != "" {
		if concurrency, err := strconv.Atoi(val); err == nil {
			c.Repo.MaxConcurrency = concurrency
		}
	}

	// Cache settings
	if val := os.Getenv("OSTREE_CACHE_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Cache.TTL = duration
		}
	}

	// Network settings
	if val := os.Getenv("OSTREE_FETCH_POOL_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			c.Network.FetchPoolSize = size
		}
	}
	if val := os.Getenv("OSTREE_PREFER_DELTAS"); val != "" {
		c.Network.PreferDeltas = strings.ToLower(val) == "true"
	}

	// Signing settings
	if val := os.Getenv("OSTREE_REQUIRE_SIGNATURE"); val != "" {
		c.Signing.RequireSignature = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("OSTREE_GPG_KEYRING_PATH"); val != "" {
		c.Signing.GPGKeyringPath = val
	}

	// Mirror settings
	if val := os.Getenv("OSTREE_MIRROR_ENABLED"); val != "" {
		c.Mirror.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("OSTREE_MIRROR_BUCKET"); val != "" {
		c.Mirror.Bucket = val
	}

	// Sysroot settings
	if val := os.Getenv("OSTREE_SYSROOT_PATH"); val != "" {
		c.Sysroot.Path = val
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Configuration) Validate() error {
	if c.Repo.MaxConcurrency <= 0 {
		return fmt.Errorf("repo.max_concurrency must be greater than 0")
	}

	validModes := []string{"archive", "bare", "bare-user", "bare-user-only"}
	modeValid := false
	for _, mode := range validModes {
		if c.Repo.Mode == mode {
			modeValid = true
			break
		}
	}
	if !modeValid {
		return fmt.Errorf("invalid repo.mode: %s (must be one of: %s)",
			c.Repo.Mode, strings.Join(validModes, ", "))
	}

	validFsyncPolicies := []string{"always", "never", "per-object"}
	fsyncValid := false
	for _, policy := range validFsyncPolicies {
		if c.Repo.FsyncPolicy == policy {
			fsyncValid = true
			break
		}
	}
	if !fsyncValid {
		return fmt.Errorf("invalid repo.fsync_policy: %s (must be one of: %s)",
			c.Repo.FsyncPolicy, strings.Join(validFsyncPolicies, ", "))
	}

	if c.Global.MetricsPort == c.Global.HealthPort {
		return fmt.Errorf("metrics_port and health_port cannot be the same")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Mirror.Enabled && c.Mirror.Bucket == "" {
		return fmt.Errorf("mirror.bucket is required when mirror.enabled is true")
	}

	return nil
}
