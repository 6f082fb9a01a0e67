// Package config loads the keeld server's TOML configuration file through
// viper, with environment (KEELD_*) > file > default precedence, following
// the loading shape of the teacher's pkg/config package. No config value is
// bound to a CLI flag.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the root of the server's static configuration (spec.md §6: TOML
// sections network/database/file/auth/logging/tls, plus controlplane and
// telemetry added for the admin HTTP API and tracing/profiling).
type Config struct {
	Network      NetworkConfig      `mapstructure:"network" validate:"required"`
	Database     DatabaseConfig     `mapstructure:"database" validate:"required"`
	File         FileConfig         `mapstructure:"file" validate:"required"`
	Auth         AuthConfig         `mapstructure:"auth" validate:"required"`
	Logging      LoggingConfig      `mapstructure:"logging" validate:"required"`
	TLS          TLSConfig          `mapstructure:"tls" validate:"required"`
	ControlPlane ControlPlaneConfig `mapstructure:"controlplane"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	ColdStore    ColdStoreConfig    `mapstructure:"coldstore"`
	HandleCache  HandleCacheConfig  `mapstructure:"handlecache"`

	// shutdown carries CLEANUP_WAITING_PERIOD/SHUTDOWN_POLL_INTERVAL, which
	// are environment-only per spec.md §6 and have no TOML section.
	shutdown shutdownConfig
}

type shutdownConfig struct {
	cleanupWaitingPeriod time.Duration
	pollInterval         time.Duration
}

// NetworkConfig is the `[network]` section: host, port, timeouts.
type NetworkConfig struct {
	Host        string        `mapstructure:"host" validate:"required"`
	Port        int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"required,gt=0"`
	HeaderWidth int           `mapstructure:"header_width" validate:"required,gt=0"`
}

// DatabaseConfig is the `[database]` section: pool sizes per lane, lease and
// refresh intervals for internal/pool's three priority lanes.
type DatabaseConfig struct {
	DSN            string        `mapstructure:"dsn"`
	HighPoolSize   int           `mapstructure:"high_pool_size" validate:"required,gt=0"`
	MidPoolSize    int           `mapstructure:"mid_pool_size" validate:"required,gt=0"`
	LowPoolSize    int           `mapstructure:"low_pool_size" validate:"required,gt=0"`
	DefaultLease   time.Duration `mapstructure:"default_lease" validate:"required,gt=0"`
	MaxLease       time.Duration `mapstructure:"max_lease" validate:"required,gt=0"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" validate:"required,gt=0"`
}

// FileConfig is the `[file]` section: caches, TTLs, chunk max, contention
// timeout, transfer timeout, root directory, per-user file cap.
type FileConfig struct {
	RootDirectory         string        `mapstructure:"root_directory" validate:"required"`
	ChunkMaxSize          int           `mapstructure:"chunk_max_size" validate:"required,gt=0"`
	FileContentionTimeout time.Duration `mapstructure:"file_contention_timeout" validate:"required,gt=0"`
	FileLockTTL           time.Duration `mapstructure:"file_lock_ttl" validate:"required,gt=0"`
	ReaderCacheTTL        time.Duration `mapstructure:"reader_cache_ttl" validate:"required,gt=0"`
	AmendmentCacheTTL     time.Duration `mapstructure:"amendment_cache_ttl" validate:"required,gt=0"`
	DeletedCacheTTL       time.Duration `mapstructure:"deleted_cache_ttl" validate:"required,gt=0"`
	TransferTimeout       time.Duration `mapstructure:"transfer_timeout" validate:"required,gt=0"`
	UserMaxFiles          int           `mapstructure:"user_max_files" validate:"required,gt=0"`
	DiskFlushInterval     time.Duration `mapstructure:"disk_flush_interval" validate:"required,gt=0"`
	FlushBatchSize        int           `mapstructure:"flush_batch_size" validate:"required,gt=0"`
	StorageCacheSize      int           `mapstructure:"storage_cache_size" validate:"required,gt=0"`
}

// ColdStoreConfig is the `[coldstore]` section: the S3 archival mirror for
// file bodies past ArchiveAfter, restorable on read-miss.
type ColdStoreConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Bucket          string        `mapstructure:"bucket"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	ForcePathStyle  bool          `mapstructure:"force_path_style"`
	ArchiveAfter    time.Duration `mapstructure:"archive_after" validate:"omitempty,gt=0"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval" validate:"omitempty,gt=0"`
}

// HandleCacheConfig is the `[handlecache]` section: the badger-backed
// durable mirror of fileops's in-memory cursor cache.
type HandleCacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// AuthConfig is the `[auth]` section: attempt limits, lock timeouts,
// session lifespan.
type AuthConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"required,gt=0"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout" validate:"required,gt=0"`
	SessionLifespan time.Duration `mapstructure:"session_lifespan" validate:"required,gt=0"`
	DigestHistory   int           `mapstructure:"digest_history" validate:"required,gt=0"`
}

// LoggingConfig is the `[logging]` section: activity log batch size,
// interval, and backpressure waiting period.
type LoggingConfig struct {
	Level         string        `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format        string        `mapstructure:"format" validate:"required,oneof=text json"`
	Output        string        `mapstructure:"output" validate:"required"`
	BatchSize     int           `mapstructure:"batch_size" validate:"required,gt=0"`
	FlushInterval time.Duration `mapstructure:"interval" validate:"required,gt=0"`
	WaitingPeriod time.Duration `mapstructure:"waiting_period" validate:"required,gt=0"`
	MaxRetries    int           `mapstructure:"max_retries" validate:"required,gt=0"`
	QueueCapacity int           `mapstructure:"queue_capacity" validate:"required,gt=0"`
}

// TLSConfig is the `[tls]` section: cert/key paths, ciphers, rollover
// grace, nonce length, ledger history length.
type TLSConfig struct {
	CertPath              string        `mapstructure:"cert_path" validate:"required"`
	KeyPath               string        `mapstructure:"key_path" validate:"required"`
	LedgerPath            string        `mapstructure:"ledger_path" validate:"required"`
	DNSNames              []string      `mapstructure:"dns_names" validate:"required,min=1"`
	RolloverGrace         time.Duration `mapstructure:"rollover_grace" validate:"required,gt=0"`
	NonceLength           int           `mapstructure:"nonce_length" validate:"required,gt=0"`
	RolloverHistoryLength int           `mapstructure:"rollover_history_length" validate:"required,gt=0"`
	RolloverCheckPoll     time.Duration `mapstructure:"rollover_check_poll_interval" validate:"required,gt=0"`
}

// ControlPlaneConfig configures the separate admin HTTP API (chi + JWT),
// distinct from the wire protocol's own session tokens.
type ControlPlaneConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Port        int           `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	JWTSecret   string        `mapstructure:"jwt_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	MetricsPort int           `mapstructure:"metrics_port" validate:"omitempty,min=1,max=65535"`
}

// TelemetryConfig controls OpenTelemetry tracing and optional Pyroscope
// profiling, mirrored from the teacher's TelemetryConfig/ProfilingConfig.
type TelemetryConfig struct {
	Enabled    bool            `mapstructure:"enabled"`
	Endpoint   string          `mapstructure:"endpoint"`
	Insecure   bool            `mapstructure:"insecure"`
	SampleRate float64         `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1"`
	Profiling  ProfilingConfig `mapstructure:"profiling"`
}

// ProfilingConfig is the `[telemetry.profiling]` section.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Endpoint     string   `mapstructure:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types"`
}

// Load reads configPath (TOML) through viper, applies CLEANUP_WAITING_PERIOD/
// SHUTDOWN_POLL_INTERVAL and PG_* environment overrides, fills defaults, and
// validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
			return nil, fmt.Errorf("config: unmarshal failed: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// Validate runs struct-tag validation via go-playground/validator.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("KEELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(".")
	v.SetConfigName("keeld")
	v.SetConfigType("toml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: failed to read config file: %w", err)
	}
	return true, nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// applyEnvOverrides wires the environment variables spec.md §6 names
// explicitly, rather than relying on viper's automatic KEELD_ prefix, since
// these are externally mandated names (PG_*, CLEANUP_WAITING_PERIOD,
// SHUTDOWN_POLL_INTERVAL) that don't follow the app's own naming scheme.
func applyEnvOverrides(cfg *Config) {
	if dsn := buildPGDSN(); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if v := os.Getenv("CLEANUP_WAITING_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.shutdown.cleanupWaitingPeriod = d
		}
	}
	if v := os.Getenv("SHUTDOWN_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.shutdown.pollInterval = d
		}
	}
}

func buildPGDSN() string {
	user := os.Getenv("PG_USERNAME")
	pass := os.Getenv("PG_PASSWORD")
	host := os.Getenv("PG_HOST")
	port := os.Getenv("PG_PORT")
	db := os.Getenv("PG_DBNAME")
	if user == "" && host == "" && db == "" {
		return ""
	}
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, db)
}

// ShutdownDurations returns the server-process-lifetime timings that
// CLEANUP_WAITING_PERIOD/SHUTDOWN_POLL_INTERVAL override.
func (c *Config) ShutdownDurations() (cleanupWait, pollInterval time.Duration) {
	return c.shutdown.cleanupWaitingPeriod, c.shutdown.pollInterval
}

// EnsureDirectories creates the file root and TLS credential directories if
// missing, matching the teacher's SaveConfig pattern of MkdirAll before use.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.File.RootDirectory, 0o755); err != nil {
		return fmt.Errorf("config: create root directory: %w", err)
	}
	for _, p := range []string{c.TLS.CertPath, c.TLS.KeyPath, c.TLS.LedgerPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("config: create tls directory: %w", err)
		}
	}
	if c.HandleCache.Enabled {
		if err := os.MkdirAll(c.HandleCache.Dir, 0o755); err != nil {
			return fmt.Errorf("config: create handle cache directory: %w", err)
		}
	}
	return nil
}
