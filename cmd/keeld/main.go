// Command keeld runs the file-access server: it loads configuration, wires
// together the connection pool, stores, session/permission/file-ops
// engines, the admin API, and the TLS accept loop, then serves until an
// interrupt or terminate signal triggers graceful shutdown. Grounded on
// the teacher's cmd/dittofs/main.go runStart flow (load config, init
// logger, build the registry, start the server, wait on a signal channel).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keelfs/keeld/internal/activitylog"
	"github.com/keelfs/keeld/internal/adminapi"
	"github.com/keelfs/keeld/internal/coldstore"
	"github.com/keelfs/keeld/internal/config"
	"github.com/keelfs/keeld/internal/dispatch"
	"github.com/keelfs/keeld/internal/fileops"
	"github.com/keelfs/keeld/internal/handlecache"
	"github.com/keelfs/keeld/internal/logger"
	"github.com/keelfs/keeld/internal/permission"
	"github.com/keelfs/keeld/internal/pool"
	"github.com/keelfs/keeld/internal/server"
	"github.com/keelfs/keeld/internal/session"
	"github.com/keelfs/keeld/internal/storagecache"
	"github.com/keelfs/keeld/internal/store/controlstore"
	"github.com/keelfs/keeld/internal/store/filestore"
	"github.com/keelfs/keeld/internal/store/migrate"
	"github.com/keelfs/keeld/internal/telemetry"
	"github.com/keelfs/keeld/internal/tlscred"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	configPath := flag.String("config", "", "path to the keeld TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("keeld: failed to load configuration: %v", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		log.Fatalf("keeld: failed to initialize logger: %v", err)
	}
	logger.Info("keeld starting", "version", version, "commit", commit)

	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("keeld: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
		ServiceName:    "keeld",
		ServiceVersion: version,
	})
	if err != nil {
		log.Fatalf("keeld: failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "keeld",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		log.Fatalf("keeld: failed to initialize profiling: %v", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	if err := migrate.Run(ctx, cfg.Database.DSN); err != nil {
		log.Fatalf("keeld: failed to run migrations: %v", err)
	}

	connPool, err := pool.New(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("keeld: failed to create connection pool: %v", err)
	}
	defer connPool.Close()

	control, err := controlstore.New(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("keeld: failed to open control store: %v", err)
	}

	files := filestore.New(connPool, cfg.Database.DefaultLease)

	storage, err := storagecache.New(control, cfg.File.StorageCacheSize, cfg.File.FlushBatchSize, cfg.File.DiskFlushInterval)
	if err != nil {
		log.Fatalf("keeld: failed to create storage cache: %v", err)
	}
	storage.Start(ctx)
	defer storage.Stop(ctx)

	fileOps := fileops.New(&cfg.File, storage, files)

	if cfg.ColdStore.Enabled {
		s3Client, err := coldstore.NewClient(ctx, &cfg.ColdStore)
		if err != nil {
			log.Fatalf("keeld: failed to create cold storage client: %v", err)
		}
		cold, err := coldstore.New(ctx, s3Client, &cfg.ColdStore)
		if err != nil {
			log.Fatalf("keeld: failed to initialize cold storage: %v", err)
		}
		fileOps.SetColdStore(cold)
		go cold.Sweep(ctx, fileOps, cfg.ColdStore.SweepInterval, cfg.ColdStore.ArchiveAfter)
	}

	if cfg.HandleCache.Enabled {
		checkpoint, err := handlecache.Open(cfg.HandleCache.Dir)
		if err != nil {
			log.Fatalf("keeld: failed to open handle cache checkpoint: %v", err)
		}
		defer checkpoint.Close()
		fileOps.SetCheckpoint(checkpoint)

		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := checkpoint.GC(0.5); err != nil {
						logger.Error("handle cache checkpoint gc failed", logger.Err(err))
					}
				}
			}
		}()
	}

	sessions := session.NewManager(control, fileOps, fileOps, cfg.Auth.SessionLifespan)

	perms := permission.New(connPool, files, fileOps, cfg.Database.DefaultLease)

	activity := activitylog.New(control, activitylog.Config{
		QueueCapacity: cfg.Logging.QueueCapacity,
		BatchSize:     cfg.Logging.BatchSize,
		WaitingPeriod: cfg.Logging.WaitingPeriod,
		MaxRetries:    cfg.Logging.MaxRetries,
	})
	activity.Start(ctx)
	defer activity.Stop(5 * time.Second)

	creds := tlscred.New(&cfg.TLS, cfg.Network.Host, cfg.Network.Port)
	if err := creds.Bootstrap(); err != nil {
		log.Fatalf("keeld: failed to bootstrap TLS credentials: %v", err)
	}
	watchCh := creds.Watch(ctx, cfg.TLS.RolloverCheckPoll)
	go func() {
		for range watchCh {
			logger.Info("tls credential file changed, reloaded for next handshake")
		}
	}()

	registry := dispatch.New(cfg, sessions, fileOps, files, perms, activity, storage, creds)

	srv := server.New(cfg, creds.ServerTLSConfig(nil), registry)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.ListenAndServe(ctx)
	}()

	if cfg.ControlPlane.Enabled {
		adminSrv, err := adminapi.New(cfg.ControlPlane, sessions, control)
		if err != nil {
			log.Fatalf("keeld: failed to create admin api: %v", err)
		}
		go func() {
			if err := adminSrv.Start(ctx); err != nil {
				logger.Error("admin api stopped", logger.Err(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("keeld is running", "addr", fmt.Sprintf("%s:%d", cfg.Network.Host, cfg.Network.Port))

	select {
	case sig := <-sigCh:
		signal.Stop(sigCh)
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", logger.Err(err))
			os.Exit(1)
		}
		logger.Info("keeld stopped gracefully")
	case err := <-serverDone:
		signal.Stop(sigCh)
		if err != nil {
			logger.Error("server error", logger.Err(err))
			os.Exit(1)
		}
		logger.Info("keeld stopped")
	}
}
