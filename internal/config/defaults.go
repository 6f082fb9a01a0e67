package config

import "time"

// defaultConfig returns a fully-populated Config with sensible defaults,
// used as the unmarshal target so any field absent from the TOML file keeps
// its default rather than zeroing out, mirroring the teacher's
// ApplyDefaults/GetDefaultConfig split (here folded into one constructor
// since viper unmarshals onto the existing struct in place).
func defaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			Host:        "0.0.0.0",
			Port:        9443,
			ReadTimeout: 30 * time.Second,
			HeaderWidth: 256,
		},
		Database: DatabaseConfig{
			HighPoolSize:   8,
			MidPoolSize:    16,
			LowPoolSize:    4,
			DefaultLease:   5 * time.Second,
			MaxLease:       30 * time.Second,
			AcquireTimeout: 5 * time.Second,
		},
		File: FileConfig{
			RootDirectory:         "./data/root",
			ChunkMaxSize:          1 << 20,
			FileContentionTimeout: 3 * time.Second,
			FileLockTTL:           10 * time.Second,
			ReaderCacheTTL:        60 * time.Second,
			AmendmentCacheTTL:     60 * time.Second,
			DeletedCacheTTL:       5 * time.Second,
			TransferTimeout:       10 * time.Second,
			UserMaxFiles:          10000,
			DiskFlushInterval:     5 * time.Second,
			FlushBatchSize:        100,
			StorageCacheSize:      1024,
		},
		Auth: AuthConfig{
			MaxAttempts:     5,
			LockTimeout:     5 * time.Minute,
			SessionLifespan: 1 * time.Hour,
			DigestHistory:   2,
		},
		Logging: LoggingConfig{
			Level:         "INFO",
			Format:        "text",
			Output:        "stdout",
			BatchSize:     50,
			FlushInterval: 2 * time.Second,
			WaitingPeriod: 1 * time.Second,
			MaxRetries:    3,
			QueueCapacity: 4096,
		},
		TLS: TLSConfig{
			CertPath:              "./data/tls/certfile.crt",
			KeyPath:               "./data/tls/keyfile.pem",
			LedgerPath:            "./data/tls/rollover.json",
			DNSNames:              []string{"localhost"},
			RolloverGrace:         72 * time.Hour,
			NonceLength:           32,
			RolloverHistoryLength: 10,
			RolloverCheckPoll:     30 * time.Second,
		},
		ControlPlane: ControlPlaneConfig{
			Enabled:     false,
			Port:        8443,
			TokenTTL:    15 * time.Minute,
			MetricsPort: 9090,
		},
		Telemetry: TelemetryConfig{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: 1.0,
			Profiling: ProfilingConfig{
				Enabled:      false,
				Endpoint:     "http://localhost:4040",
				ProfileTypes: []string{"cpu", "alloc_space"},
			},
		},
		ColdStore: ColdStoreConfig{
			Enabled:       false,
			KeyPrefix:     "keeld/",
			Region:        "us-east-1",
			ArchiveAfter:  30 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		HandleCache: HandleCacheConfig{
			Enabled: false,
			Dir:     "/var/lib/keeld/handlecache",
		},
		shutdown: shutdownConfig{
			cleanupWaitingPeriod: 10 * time.Second,
			pollInterval:         500 * time.Millisecond,
		},
	}
}
