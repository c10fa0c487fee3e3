// Copyright 2025 Alephnode Protocol
//
// Configuration loading for the message-processing pipeline core.
// Settings load from a YAML file with ${VAR_NAME} / ${VAR_NAME:-default}
// environment substitution, with an env-only fallback for container
// deployments that prefer not to mount a file.

package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a node.
type Config struct {
	Environment string `yaml:"environment"`

	Node     NodeSettings     `yaml:"node"`
	Database DatabaseSettings `yaml:"database"`
	Storage  StorageSettings  `yaml:"storage"`
	Chains   []ChainSettings  `yaml:"chains"`
	Worker   WorkerSettings   `yaml:"worker"`
	Cost     CostSettings     `yaml:"cost"`
	Aggregates AggregateSettings `yaml:"aggregates"`
	Balances BalanceSettings  `yaml:"balances"`
	GC       GCSettings       `yaml:"gc"`
	Admin    AdminSettings    `yaml:"admin"`
	Logging  LoggingSettings  `yaml:"logging"`
}

// NodeSettings identifies this node instance.
type NodeSettings struct {
	ID      string `yaml:"id"`
	Role    string `yaml:"role"`
	DataDir string `yaml:"data_dir"`
}

// DatabaseSettings contains database connection configuration.
type DatabaseSettings struct {
	URL            string   `yaml:"url"`
	MaxConnections int      `yaml:"max_connections"`
	MinConnections int      `yaml:"min_connections"`
	MaxIdleTime    Duration `yaml:"max_idle_time"`
	MaxLifetime    Duration `yaml:"max_lifetime"`
	Required       bool     `yaml:"required"`
	AutoMigrate    bool     `yaml:"auto_migrate"`
}

// StorageSettings selects and configures the content-addressed blob backend.
type StorageSettings struct {
	Backend               string `yaml:"backend"` // "local" or "remote"
	LocalDir              string `yaml:"local_dir"`
	RemoteBucket          string `yaml:"remote_bucket"`
	RemoteCredentialsFile string `yaml:"remote_credentials_file"`
	MaxInlineSize         int64  `yaml:"max_inline_size"`
}

// ChainSettings configures one pluggable chain reader / verifier source.
type ChainSettings struct {
	Name               string   `yaml:"name"` // e.g. "ethereum", "accumulate"
	Kind               string   `yaml:"kind"` // "ethereum" or "accumulate"
	RPCURL             string   `yaml:"rpc_url"`
	ChainID            int64    `yaml:"chain_id"`
	ContractAddress    string   `yaml:"contract_address"` // sync-anchor contract, "ethereum" kind only
	PollInterval       Duration `yaml:"poll_interval"`
	ConfirmationBlocks int      `yaml:"confirmation_blocks"`
	BlockLookback      int64    `yaml:"block_lookback"`
}

// WorkerSettings configures the pending-message worker pool.
type WorkerSettings struct {
	PoolSize      int      `yaml:"pool_size"`
	ClaimBatch    int      `yaml:"claim_batch"`
	LeaseDuration Duration `yaml:"lease_duration"`
	MaxRetries    int      `yaml:"max_retries"`
	RetryBackoff  Duration `yaml:"retry_backoff"`
	PollInterval  Duration `yaml:"poll_interval"`
}

// CostSettings configures balance-gating behavior.
type CostSettings struct {
	Enabled  bool     `yaml:"enabled"`
	CacheTTL Duration `yaml:"cache_ttl"`
}

// AggregateSettings holds AGGREGATE settings. DirtyThreshold is loaded
// but not passed to the AGGREGATE handler, which uses the fixed
// handlers.FullRecomputeThreshold.
type AggregateSettings struct {
	DirtyThreshold int `yaml:"dirty_threshold"`
}

// BalanceSettings configures the optional Firestore balances mirror and
// the POST-message oracle path that feeds it (spec.md 4.6/6).
type BalanceSettings struct {
	FirestoreEnabled        bool     `yaml:"firestore_enabled"`
	FirebaseProjectID       string   `yaml:"firebase_project_id"`
	FirebaseCredentialsFile string   `yaml:"firebase_credentials_file"`
	PostType                string   `yaml:"post_type"`
	OracleAddresses         []string `yaml:"oracle_addresses"`
}

// GCSettings configures the pin-liveness garbage collector sweep.
// GracePeriod is loaded but not read: the STORE handler's grace-period
// pin uses the fixed handlers.GracePeriod (25h).
type GCSettings struct {
	Enabled      bool     `yaml:"enabled"`
	SweepInterval Duration `yaml:"sweep_interval"`
	GracePeriod  Duration `yaml:"grace_period"`
}

// AdminSettings configures the minimal health/metrics/introspection HTTP surface.
type AdminSettings struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsPath string `yaml:"metrics_path"`
	HealthPath  string `yaml:"health_path"`
}

// LoggingSettings configures structured log output.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ==============================================================================
// Duration Type for YAML Parsing
// ==============================================================================

// Duration wraps time.Duration for YAML unmarshaling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ==============================================================================
// Configuration Loading
// ==============================================================================

// Load reads configuration from a YAML file, substituting ${VAR_NAME} and
// ${VAR_NAME:-default} references with environment variable values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv builds a Config entirely from environment variables, for
// deployments that prefer not to mount a YAML file.
func LoadFromEnv() *Config {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Node: NodeSettings{
			ID:      getEnv("NODE_ID", "node-default"),
			Role:    getEnv("NODE_ROLE", "full"),
			DataDir: getEnv("DATA_DIR", "./data"),
		},
		Database: DatabaseSettings{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNS", 25),
			MinConnections: getEnvInt("DATABASE_MIN_CONNS", 5),
			MaxIdleTime:    Duration(5 * time.Minute),
			MaxLifetime:    Duration(1 * time.Hour),
			Required:       getEnvBool("DATABASE_REQUIRED", true),
			AutoMigrate:    getEnvBool("DATABASE_AUTO_MIGRATE", false),
		},
		Storage: StorageSettings{
			Backend:               getEnv("STORAGE_BACKEND", "local"),
			LocalDir:              getEnv("STORAGE_LOCAL_DIR", "./data/storage"),
			RemoteBucket:          getEnv("STORAGE_REMOTE_BUCKET", ""),
			RemoteCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			MaxInlineSize:         int64(getEnvInt("STORAGE_MAX_INLINE_SIZE", 200*1024)),
		},
		Chains: []ChainSettings{
			{
				Name:               "ethereum",
				Kind:               "ethereum",
				RPCURL:             getEnv("ETHEREUM_URL", ""),
				ChainID:            getEnvInt64("ETH_CHAIN_ID", 1),
				ContractAddress:    getEnv("ANCHOR_CONTRACT_ADDRESS", ""),
				PollInterval:       Duration(15 * time.Second),
				ConfirmationBlocks: getEnvInt("CONFIRMATION_BLOCKS", 12),
				BlockLookback:      int64(getEnvInt("BLOCK_LOOKBACK", 100)),
			},
			{
				Name:               "accumulate",
				Kind:               "accumulate",
				RPCURL:             getEnv("ACCUMULATE_URL", ""),
				PollInterval:       Duration(15 * time.Second),
				ConfirmationBlocks: 1,
			},
		},
		Worker: WorkerSettings{
			PoolSize:      getEnvInt("WORKER_POOL_SIZE", 8),
			ClaimBatch:    getEnvInt("WORKER_CLAIM_BATCH", 32),
			LeaseDuration: Duration(30 * time.Second),
			MaxRetries:    getEnvInt("WORKER_MAX_RETRIES", 10),
			RetryBackoff:  Duration(5 * time.Second),
			PollInterval:  Duration(500 * time.Millisecond),
		},
		Cost: CostSettings{
			Enabled:  getEnvBool("COST_GATING_ENABLED", true),
			CacheTTL: Duration(30 * time.Second),
		},
		Aggregates: AggregateSettings{
			DirtyThreshold: getEnvInt("AGGREGATE_DIRTY_THRESHOLD", 1000),
		},
		Balances: BalanceSettings{
			FirestoreEnabled:        getEnvBool("FIRESTORE_ENABLED", false),
			FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			FirebaseCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		GC: GCSettings{
			Enabled:       getEnvBool("GC_ENABLED", true),
			SweepInterval: Duration(1 * time.Hour),
			GracePeriod:   Duration(24 * time.Hour),
		},
		Admin: AdminSettings{
			ListenAddr:  getEnv("ADMIN_ADDR", "0.0.0.0:8081"),
			MetricsPath: "/metrics",
			HealthPath:  "/health",
		},
		Logging: LoggingSettings{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
	return cfg
}

// applyDefaults fills in zero-valued fields not set by the YAML file.
func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Node.DataDir == "" {
		c.Node.DataDir = "./data"
	}
	if c.Database.MaxConnections == 0 {
		c.Database.MaxConnections = 25
	}
	if c.Database.MinConnections == 0 {
		c.Database.MinConnections = 5
	}
	if c.Database.MaxIdleTime == 0 {
		c.Database.MaxIdleTime = Duration(5 * time.Minute)
	}
	if c.Database.MaxLifetime == 0 {
		c.Database.MaxLifetime = Duration(1 * time.Hour)
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "./data/storage"
	}
	if c.Storage.MaxInlineSize == 0 {
		c.Storage.MaxInlineSize = 200 * 1024
	}
	if c.Worker.PoolSize == 0 {
		c.Worker.PoolSize = 8
	}
	if c.Worker.ClaimBatch == 0 {
		c.Worker.ClaimBatch = 32
	}
	if c.Worker.LeaseDuration == 0 {
		c.Worker.LeaseDuration = Duration(30 * time.Second)
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 10
	}
	if c.Worker.RetryBackoff == 0 {
		c.Worker.RetryBackoff = Duration(5 * time.Second)
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = Duration(500 * time.Millisecond)
	}
	if c.Cost.CacheTTL == 0 {
		c.Cost.CacheTTL = Duration(30 * time.Second)
	}
	if c.Aggregates.DirtyThreshold == 0 {
		c.Aggregates.DirtyThreshold = 1000
	}
	if c.GC.SweepInterval == 0 {
		c.GC.SweepInterval = Duration(1 * time.Hour)
	}
	if c.GC.GracePeriod == 0 {
		c.GC.GracePeriod = Duration(24 * time.Hour)
	}
	if c.Admin.ListenAddr == "" {
		c.Admin.ListenAddr = "0.0.0.0:8081"
	}
	if c.Admin.MetricsPath == "" {
		c.Admin.MetricsPath = "/metrics"
	}
	if c.Admin.HealthPath == "" {
		c.Admin.HealthPath = "/health"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	for i := range c.Chains {
		if c.Chains[i].PollInterval == 0 {
			c.Chains[i].PollInterval = Duration(15 * time.Second)
		}
	}
}

// ==============================================================================
// Environment Variable Substitution
// ==============================================================================

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}

		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// ==============================================================================
// Validation
// ==============================================================================

// Validate checks that required configuration is present for production use.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.URL == "" {
		errs = append(errs, "database.url is required but not set")
	}
	if c.Storage.Backend == "remote" && c.Storage.RemoteBucket == "" {
		errs = append(errs, "storage.remote_bucket is required when storage.backend is \"remote\"")
	}

	hasChain := false
	for _, ch := range c.Chains {
		if ch.RPCURL != "" {
			hasChain = true
		}
	}
	if !hasChain {
		errs = append(errs, "at least one chains[].rpc_url must be configured")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Helper functions for environment variable parsing.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
