package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	inventoryapp "github.com/coccinelle/backend/internal/application/inventory"
	integrationapp "github.com/coccinelle/backend/internal/application/integration"
	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/infrastructure/cache"
	"github.com/coccinelle/backend/internal/infrastructure/config"
	"github.com/coccinelle/backend/internal/infrastructure/connector/httpx"
	"github.com/coccinelle/backend/internal/infrastructure/connector/hubspot"
	"github.com/coccinelle/backend/internal/infrastructure/connector/mock"
	"github.com/coccinelle/backend/internal/infrastructure/connector/native"
	"github.com/coccinelle/backend/internal/infrastructure/connector/salesforce"
	"github.com/coccinelle/backend/internal/infrastructure/connector/woocommerce"
	"github.com/coccinelle/backend/internal/infrastructure/event"
	"github.com/coccinelle/backend/internal/infrastructure/logger"
	"github.com/coccinelle/backend/internal/infrastructure/migration"
	"github.com/coccinelle/backend/internal/infrastructure/persistence"
	"github.com/coccinelle/backend/internal/infrastructure/scheduler"
	"github.com/coccinelle/backend/internal/infrastructure/security"
	"github.com/coccinelle/backend/internal/infrastructure/storage"
	"github.com/coccinelle/backend/internal/infrastructure/telemetry"
	"github.com/coccinelle/backend/internal/interfaces/http/handler"
	"github.com/coccinelle/backend/internal/interfaces/http/middleware"
	"github.com/coccinelle/backend/internal/interfaces/http/router"
	"github.com/coccinelle/backend/migrations"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.Telemetry.ServiceName,
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Telemetry: traces, logs, metrics, profiles
	otlp := telemetry.Config{
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Environment:       cfg.App.Env,
		Insecure:          cfg.Telemetry.Insecure,
	}
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.TracesConfig{
		Config:        otlp,
		Enabled:       cfg.Telemetry.Enabled,
		SamplingRatio: cfg.Telemetry.SamplingRatio,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Config:  otlp,
		Enabled: cfg.Telemetry.LogsEnabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	if cfg.Telemetry.LogsEnabled {
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: lp,
			Level:          logger.ParseLevel(cfg.Log.Level),
		})
		if bridged, err := logger.New(logCfg, otelCore); err == nil {
			log = bridged
		} else {
			log.Warn("Failed to bridge logs to OpenTelemetry", zap.Error(err))
		}
	}
	defer func() {
		_ = log.Sync()
	}()

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Config:         otlp,
		Enabled:        cfg.Telemetry.MetricsEnabled,
		ExportInterval: cfg.Telemetry.MetricsInterval,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeURL,
		ApplicationName: cfg.Telemetry.ServiceName,
		ProfileTypes:    cfg.Telemetry.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize profiler", zap.Error(err))
	}
	if cfg.Telemetry.ProfilingEnabled {
		if err := tp.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to link spans to profiles", zap.Error(err))
		}
	}

	log.Info("Starting Coccinelle backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	if cfg.Database.AutoMigrate {
		if err := migration.Apply(cfg.Database.DSN(), migrations.Files, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	// Database with zap-backed GORM logger, tracing and pool metrics
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	connectCtx, cancelConnect := context.WithTimeout(ctx, 10*time.Second)
	db, err := persistence.Open(connectCtx, &cfg.Database, gormLog)
	cancelConnect()
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if cfg.Telemetry.DBTraceEnabled {
		tracingCfg := telemetry.DefaultDBTracingConfig()
		tracingCfg.Enabled = true
		if cfg.Telemetry.DBSlowQueryThresh > 0 {
			tracingCfg.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
		}
		if err := telemetry.NewDBTracingPlugin(tracingCfg, log).RegisterOtelGorm(db.DB); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}
	}
	dbMetricsCfg := telemetry.DefaultDBMetricsConfig()
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		dbMetricsCfg.SlowQueryThreshold = cfg.Telemetry.DBSlowQueryThresh
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, mp, dbMetricsCfg, log)
	if err != nil {
		log.Warn("Failed to register database metrics", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Repositories
	sealer := security.NewSealer(cfg.Security.CredentialsKey)
	if _, ok := sealer.(*security.SecretBox); !ok {
		log.Warn("No credentials key configured, integration credentials are stored unsealed")
	}
	productRepo := persistence.NewGormProductRepository(db.DB)
	reservationRepo := persistence.NewGormReservationRepository(db.DB)
	customerRepo := persistence.NewGormCustomerRepository(db.DB)
	configRepo := persistence.NewGormIntegrationConfigRepository(db.DB, sealer)
	mappingRepo := persistence.NewGormSyncMappingRepository(db.DB)

	// Event bus, optionally forwarding to a broker
	eventBus, closeEvents, err := event.Setup(cfg.Event, log)
	if err != nil {
		log.Fatal("Failed to initialize event bus", zap.Error(err))
	}

	// Inventory engine
	inventoryService := inventoryapp.NewInventoryService(
		productRepo,
		reservationRepo,
		persistence.NewGormTransactionScope(db.DB),
		eventBus,
		log,
	)
	expirationService := inventoryapp.NewReservationExpirationService(
		reservationRepo,
		persistence.NewGormTransactionScope(db.DB),
		eventBus,
		log,
		cfg.Reservation.SweepBatchSize,
	)

	// Connectors
	connectorHTTP := httpx.Config{
		Timeout:     cfg.Connector.HTTPTimeout,
		MaxRetries:  cfg.Connector.MaxRetries,
		BackoffBase: cfg.CRMSync.BackoffBase,
		BackoffMax:  cfg.CRMSync.BackoffMax,
	}
	connectorOpts := []httpx.Option{
		httpx.WithMetrics(httpx.DefaultMetrics()),
		httpx.WithLogger(log.Named("connector")),
	}
	connectors, err := integrationapp.NewConnectorFactory(configRepo, cfg.Connector.CacheSize, log)
	if err != nil {
		log.Fatal("Failed to initialize connector factory", zap.Error(err))
	}
	connectors.Register(integration.SystemMock, mock.Builder())
	connectors.Register(integration.SystemNative, native.Builder(inventoryService, customerRepo))
	connectors.Register(integration.SystemHubSpot, hubspot.Builder(connectorHTTP, connectorOpts...))
	connectors.Register(integration.SystemSalesforce, salesforce.Builder(connectorHTTP, connectorOpts...))
	connectors.Register(integration.SystemWooCommerce, woocommerce.Builder(connectorHTTP, connectorOpts...))

	// CRM sync
	crmSyncService := integrationapp.NewCRMSyncService(
		connectors,
		configRepo,
		customerRepo,
		mappingRepo,
		persistence.NewGormSyncTransactionScope(db.DB),
		eventBus,
		integrationapp.CRMSyncConfig{
			QPS:          cfg.CRMSync.QPS,
			Burst:        cfg.CRMSync.Burst,
			MaxCustomers: cfg.CRMSync.MaxCustomers,
		},
		log,
	)
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3ReportArchive(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize sync report archive", zap.Error(err))
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Warn("Sync report bucket unavailable, reports will not be archived", zap.Error(err))
		} else {
			crmSyncService.SetArchive(archive)
		}
	}
	healthService := integrationapp.NewHealthService(connectors, configRepo, cfg.Connector.HTTPTimeout, log)

	// Event handlers
	var businessMetrics *telemetry.BusinessMetrics
	if cfg.Telemetry.MetricsEnabled {
		businessMetrics, err = telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
			Meter:             mp.Meter("coccinelle/business"),
			Logger:            log,
			InventoryProvider: telemetry.NewGormInventoryMetricsProvider(db.DB),
		})
		if err != nil {
			log.Warn("Failed to initialize business metrics", zap.Error(err))
		} else {
			eventBus.Subscribe(businessMetrics, businessMetrics.EventTypes()...)
			businessMetrics.StartPeriodicCollection(ctx, telemetry.NewGormTenantProvider(db.DB), 0)
		}
	}
	lowStockHandler := inventoryapp.NewLowStockHandler(log).
		WithNotifier(inventoryapp.NewLoggingStockAlertNotifier(log))
	eventBus.Subscribe(lowStockHandler, lowStockHandler.EventTypes()...)

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Background workers
	var sweeper *scheduler.ReservationSweeper
	if cfg.Reservation.SweepEnabled {
		locker, err := cache.NewLockerFactory(cfg.Redis,
			cache.WithLogger(log),
			cache.WithInMemoryFallback(cfg.App.Env != "production"),
		).CreateLocker()
		if err != nil {
			log.Fatal("Failed to initialize leader lock", zap.Error(err))
		}
		sweeper, err = scheduler.NewReservationSweeper(scheduler.ReservationSweeperConfig{
			Interval: cfg.Reservation.SweepInterval,
			LockTTL:  cfg.Reservation.LeaderLockTTL,
		}, expirationService, locker, log.Named("sweeper"))
		if err != nil {
			log.Fatal("Failed to initialize reservation sweeper", zap.Error(err))
		}
		if businessMetrics != nil {
			sweeper.SetRecorder(businessMetrics)
		}
		if err := sweeper.Start(ctx); err != nil {
			log.Fatal("Failed to start reservation sweeper", zap.Error(err))
		}
	}

	var syncScheduler *scheduler.CRMSyncScheduler
	var syncJobs handler.SyncJobQueue
	if cfg.CRMSync.SchedulerEnabled {
		schedCfg := scheduler.DefaultCRMSyncSchedulerConfig()
		if cfg.CRMSync.SchedulerWorkers > 0 {
			schedCfg.Workers = cfg.CRMSync.SchedulerWorkers
		}
		if cfg.CRMSync.HistorySize > 0 {
			schedCfg.HistorySize = cfg.CRMSync.HistorySize
		}
		if cfg.CRMSync.BackoffBase > 0 && cfg.CRMSync.BackoffMax >= cfg.CRMSync.BackoffBase {
			schedCfg.BackoffBase = cfg.CRMSync.BackoffBase
			schedCfg.BackoffMax = cfg.CRMSync.BackoffMax
		}
		schedCfg.MaxRetries = cfg.CRMSync.MaxRetries
		syncScheduler, err = scheduler.NewCRMSyncScheduler(schedCfg, crmSyncService, log.Named("crm-sync"))
		if err != nil {
			log.Fatal("Failed to initialize CRM sync scheduler", zap.Error(err))
		}
		if businessMetrics != nil {
			syncScheduler.SetRecorder(businessMetrics)
		}
		if err := syncScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start CRM sync scheduler", zap.Error(err))
		}
		syncJobs = syncScheduler
	}

	// HTTP
	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitRPS > 0 {
		limiter, err = middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst, 0)
		if err != nil {
			log.Fatal("Failed to initialize rate limiter", zap.Error(err))
		}
	}

	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		TracingEnabled:   cfg.Telemetry.Enabled,
		ProfilingEnabled: cfg.Telemetry.ProfilingEnabled,
		MaxBodySize:      cfg.HTTP.MaxBodySize,
		RequestTimeout:   cfg.HTTP.RequestTimeout,
		TrustedProxies:   cfg.HTTP.TrustedProxies,
		RateLimiter:      limiter,
		Meter:            mp.Meter("coccinelle/http"),
		Logger:           log,
	}, router.Handlers{
		Inventory:   handler.NewInventoryHandler(inventoryService),
		Reservation: handler.NewReservationHandler(inventoryService, cfg.Reservation.DefaultHoldMinutes),
		CRMSync:     handler.NewCRMSyncHandler(crmSyncService, syncJobs, healthService),
		System: handler.NewSystemHandler(cfg.App.Name, version, map[string]handler.Pinger{
			"database": db,
		}),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Stop producers before the bus and the bus before its sinks
	if syncScheduler != nil {
		if err := syncScheduler.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping CRM sync scheduler", zap.Error(err))
		}
	}
	if sweeper != nil {
		if err := sweeper.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping reservation sweeper", zap.Error(err))
		}
	}
	stop()
	if businessMetrics != nil {
		businessMetrics.Stop()
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping event bus", zap.Error(err))
	}
	if err := closeEvents(); err != nil {
		log.Error("Error closing event transport", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.Stop()
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := mp.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := lp.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down logger provider", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
