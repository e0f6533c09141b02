// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/floodgate/internal/api"
	"github.com/ManuGH/floodgate/internal/config"
	"github.com/ManuGH/floodgate/internal/daemon"
	fglog "github.com/ManuGH/floodgate/internal/log"
	"github.com/ManuGH/floodgate/internal/objstore"
	"github.com/ManuGH/floodgate/internal/persistence/sqlite"
	platformnet "github.com/ManuGH/floodgate/internal/platform/net"
	"github.com/ManuGH/floodgate/internal/projects"
	"github.com/ManuGH/floodgate/internal/scanner"
	"github.com/ManuGH/floodgate/internal/scheduler"
	"github.com/ManuGH/floodgate/internal/telemetry"
	"github.com/ManuGH/floodgate/internal/uploads"
	"github.com/ManuGH/floodgate/internal/validation"
	"github.com/ManuGH/floodgate/internal/version"
)

const serviceName = "floodgate"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded
	fglog.Configure(fglog.Config{
		Level:   "info",
		Service: serviceName,
		Version: version.Version,
	})

	logger := fglog.WithComponent("daemon")

	// Create a context that listens for the interrupt signal from the OS
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Determine config path: explicit via --config, otherwise FLOODGATE_CONFIG.
	// With neither set the loader runs on environment and defaults alone.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		effectiveConfigPath = strings.TrimSpace(os.Getenv("FLOODGATE_CONFIG"))
	}

	// Load configuration with precedence: ENV > File > Defaults
	loader := config.NewLoader(effectiveConfigPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	// Re-configure logger with loaded configuration
	fglog.Configure(fglog.Config{
		Level:   cfg.LogLevel,
		Service: serviceName,
		Version: version.Version,
		Pretty:  cfg.LogPretty,
	})

	if effectiveConfigPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", effectiveConfigPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	// -------------------------------------------------------------------------
	// Pre-flight Checks (Fail Fast)
	// -------------------------------------------------------------------------
	if err := validation.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("Startup checks failed. Please verify configuration and permissions.")
	}
	// -------------------------------------------------------------------------

	serverCfg := config.ParseServerConfig(cfg.APIListen)

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", serverCfg.ListenAddr).
		Msg("starting floodgate")

	// Log key configuration
	logger.Info().Msgf("→ Database: %s (backend for records and %s locks)", cfg.DBPath, cfg.Scheduler.LockBackend)
	logger.Info().Msgf("→ Scan service: %s", platformnet.SanitizeURL(cfg.Scan.BaseURL))
	logger.Info().Msgf("→ Storage: bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	if cfg.Uploads.CallbackEnabled {
		logger.Info().Msgf("→ Scan callback: %s", platformnet.SanitizeURL(cfg.Uploads.CallbackBaseURL))
	} else {
		logger.Info().Msg("→ Scan callback: disabled (status is reconciled on read)")
	}
	logger.Info().Msgf("→ Lease timeout: %s (refresh every %s)", cfg.Scheduler.LockTimeout, cfg.Scheduler.LockRefreshInterval)

	// Shared SQLite pool for upload records, attachments and the sqlite lock
	// backend. WAL mode and the busy timeout ride in the DSN.
	db, err := sqlite.Open(cfg.DBPath, sqlite.Config{
		BusyTimeout:  cfg.DBBusyTimeout,
		MaxOpenConns: cfg.DBMaxOpenConns,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "db.open_failed").
			Str("path", cfg.DBPath).
			Msg("failed to open database")
	}
	if err := sqlite.Migrate(db); err != nil {
		_ = db.Close()
		logger.Fatal().
			Err(err).
			Str("event", "db.migrate_failed").
			Msg("failed to run database migrations")
	}

	// Lock store backend: sqlite shares the pool above, redis talks to a
	// separate server so multiple replicas on different hosts can compete.
	var lockStore scheduler.LockStore
	var redisClient *redis.Client
	switch cfg.Scheduler.LockBackend {
	case config.LockBackendRedis:
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Scheduler.RedisAddr,
			Password: cfg.Scheduler.RedisPassword,
			DB:       cfg.Scheduler.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = db.Close()
			logger.Fatal().
				Err(err).
				Str("event", "redis.ping_failed").
				Str("addr", cfg.Scheduler.RedisAddr).
				Msg("failed to reach redis lock backend")
		}
		lockStore = scheduler.NewRedisLockStore(redisClient)
	default:
		lockStore = scheduler.NewSqliteLockStore(db)
	}

	scanClient := scanner.NewClient(cfg.Scan.BaseURL, scanner.Options{
		Timeout:          cfg.Scan.Timeout,
		RateLimitRPS:     cfg.Scan.RateLimitRPS,
		BreakerThreshold: cfg.Scan.BreakerThreshold,
		BreakerReset:     cfg.Scan.BreakerReset,
	})

	objectStore, err := objstore.NewS3Store(ctx, objstore.Options{
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		ForcePathStyle:  cfg.Storage.ForcePathStyle,
	})
	if err != nil {
		_ = db.Close()
		logger.Fatal().
			Err(err).
			Str("event", "objstore.init_failed").
			Msg("failed to initialise object store client")
	}

	engine := uploads.NewEngine(
		uploads.NewSqliteRecordStore(db),
		scanClient,
		objectStore,
		projects.NewSqliteAttachmentStore(db),
		uploads.Config{
			MaxFileSize:       cfg.Uploads.MaxFileSize,
			AllowedMIMETypes:  cfg.Uploads.AllowedMIMETypes,
			AllowedExtensions: cfg.Uploads.AllowedArchiveExtensions,
			DownloadURLTTL:    cfg.Uploads.DownloadURLTTL,
			CallbackEnabled:   cfg.Uploads.CallbackEnabled,
			CallbackBaseURL:   cfg.Uploads.CallbackBaseURL,
			StorageBucket:     cfg.Storage.Bucket,
			StoragePathPrefix: cfg.Storage.PathPrefix,
			Outbound:          outboundPolicy(cfg.Uploads.RedirectAllowlist),
		},
	)

	// Scheduler: one registry of periodic tasks, one lease service, one
	// runner. Every replica runs the same registration; the lock store
	// decides who actually executes.
	registry := scheduler.NewRegistry(cfg.Scheduler.LockTimeout)
	lockSvc := scheduler.NewService(lockStore, cfg.Scheduler.LockTimeout, cfg.Scheduler.LockRefreshInterval)
	runner := scheduler.NewRunner(registry, lockSvc, lockStore, scheduler.RunnerConfig{
		SweepInterval: cfg.Scheduler.SweepInterval,
	})

	if err := registry.Register(uploads.SweepTask(engine, cfg.Scheduler.SweepInterval, cfg.Uploads.SweepStaleAfter)); err != nil {
		_ = db.Close()
		logger.Fatal().
			Err(err).
			Str("event", "scheduler.register_failed").
			Msg("failed to register upload sweep task")
	}

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: version.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Protocol,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		_ = db.Close()
		logger.Fatal().
			Err(err).
			Str("event", "telemetry.init_failed").
			Msg("failed to initialise tracing")
	}

	tracingService := ""
	if cfg.Telemetry.Enabled {
		tracingService = serviceName
	}
	srv := api.NewServer(api.Config{
		Version:        version.Version,
		RateLimitRPM:   cfg.API.RateLimitRPM,
		TracingService: tracingService,
	}, api.Deps{
		Uploads:  engine,
		Locks:    lockStore,
		Registry: registry,
		LockSvc:  lockSvc,
		Ready: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
			var locks int
			return db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scheduler_locks`).Scan(&locks)
		},
	})

	mgr, err := daemon.NewManager(serverCfg, daemon.Deps{
		Logger:         logger,
		APIHandler:     srv.Handler(),
		MetricsHandler: promhttp.Handler(),
		MetricsAddr:    cfg.MetricsListen,
	})
	if err != nil {
		_ = db.Close()
		logger.Fatal().
			Err(err).
			Str("event", "manager.creation.failed").
			Msg("failed to create daemon manager")
	}

	// The telemetry flush runs as a shutdown hook once the HTTP servers
	// drained. The stores stay open past that: the runner still releases
	// its leases through them while it drains, so they close only after
	// Run returns.
	mgr.RegisterShutdownHook("telemetry", tracing.Shutdown)

	// Hot reload support: watch config file and allow SIGHUP-triggered reload.
	cfgHolder := config.NewConfigHolder(cfg, config.NewLoader(effectiveConfigPath, version.Version), effectiveConfigPath)

	app := daemon.NewApp(logger, mgr, cfgHolder, runner)
	runErr := app.Run(ctx)

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if err := db.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close database")
	}

	if runErr != nil {
		logger.Fatal().
			Err(runErr).
			Str("event", "manager.failed").
			Msg("daemon app failed")
	}

	logger.Info().Msg("server exiting")
}

// outboundPolicy builds the redirect/download URL policy from the configured
// allowlist. An empty allowlist leaves the policy disabled and every
// well-formed URL passes.
func outboundPolicy(hosts []string) platformnet.OutboundPolicy {
	if len(hosts) == 0 {
		return platformnet.OutboundPolicy{}
	}
	return platformnet.OutboundPolicy{
		Enabled: true,
		Allow: platformnet.OutboundAllowlist{
			Hosts:   hosts,
			Schemes: []string{"https", "http"},
			Ports:   []int{443, 80},
		},
	}
}
