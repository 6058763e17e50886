package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/salesrecon/internal/application/closing"
	"github.com/erp/salesrecon/internal/application/report"
	"github.com/erp/salesrecon/internal/infrastructure/auth"
	"github.com/erp/salesrecon/internal/infrastructure/cache"
	"github.com/erp/salesrecon/internal/infrastructure/config"
	"github.com/erp/salesrecon/internal/infrastructure/logger"
	"github.com/erp/salesrecon/internal/infrastructure/migration"
	"github.com/erp/salesrecon/internal/infrastructure/persistence"
	"github.com/erp/salesrecon/internal/infrastructure/telemetry"
	"github.com/erp/salesrecon/internal/infrastructure/upstream"
	"github.com/erp/salesrecon/internal/interfaces/http/handler"
	"github.com/erp/salesrecon/internal/interfaces/http/middleware"
	"github.com/erp/salesrecon/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Sales Reconciliation API
//	@version		1.0
//	@description	Multi-currency sales report and invoice close reconciliation for jewelry points of sale

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync(log)

	log.Info("Starting sales reconciliation service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	logLevel, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		logLevel = zapcore.InfoLevel
	}
	log = logsProvider.Bridge(log, logLevel)

	reconMetrics, err := telemetry.NewReconMetrics(meterProvider.Meter("salesrecon"))
	if err != nil {
		log.Fatal("Failed to register reconciliation metrics", zap.Error(err))
	}

	// Close audit journal
	db := openJournal(cfg, log)
	var journal *persistence.GormCloseAttemptRepository
	var dbPinger handler.Pinger
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				log.Error("Error closing database", zap.Error(err))
			}
		}()
		journal = persistence.NewGormCloseAttemptRepository(db.DB)
		dbPinger = db
	}

	// Caches
	caches := cache.NewFactory(cfg, cache.WithLogger(log), cache.WithInMemoryFallback(!cfg.App.IsProduction()))
	defer func() {
		if err := caches.Close(); err != nil {
			log.Error("Error closing cache", zap.Error(err))
		}
	}()
	watches, err := caches.WatchDetailCache()
	if err != nil {
		log.Fatal("Failed to create watch detail cache", zap.Error(err))
	}
	sessions, err := caches.SessionStore()
	if err != nil {
		log.Fatal("Failed to create close session store", zap.Error(err))
	}

	// Jewelry backend
	client, err := upstream.New(cfg.Upstream, upstream.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to create upstream client", zap.Error(err))
	}

	// Application services
	reportService := report.NewService(client, watches,
		report.WithLogger(log),
		report.WithMetrics(reconMetrics),
		report.WithMaxConcurrency(cfg.Report.MaxConcurrency),
		report.WithDefaultSeller(cfg.Upstream.DefaultUser),
	)
	closeOpts := []closing.Option{
		closing.WithLogger(log),
		closing.WithMetrics(reconMetrics),
	}
	if journal != nil {
		closeOpts = append(closeOpts, closing.WithJournal(journal))
	}
	closeService := closing.NewService(client, sessions, closeOpts...)

	// Set Gin mode based on environment
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	opts := router.Options{
		HTTP:          cfg.HTTP,
		Security:      middleware.DefaultSecurityConfig(),
		Tracing:       middleware.TracingConfig{ServiceName: cfg.Telemetry.ServiceName, Enabled: cfg.Telemetry.Enabled},
		MeterProvider: meterProvider,
		Logger:        log,
	}
	if cfg.JWT.Secret != "" {
		jwtConfig := middleware.DefaultJWTConfig(auth.NewJWTService(cfg.JWT))
		jwtConfig.Required = cfg.JWT.Required
		jwtConfig.SkipPaths = append(jwtConfig.SkipPaths, "/api/v1/system/info")
		opts.JWT = &jwtConfig
	} else {
		log.Warn("JWT secret not set, API routes are unauthenticated")
	}

	engine, stop := router.New(opts, router.Handlers{
		Health: handler.NewHealthHandler(dbPinger, version),
		Report: handler.NewReportHandler(reportService),
		Close:  handler.NewCloseSessionHandler(closeService),
	})
	defer stop()

	// Create HTTP server with timeouts from config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := logsProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down logger provider", zap.Error(err))
	}

	log.Info("Server exited")
}

// openJournal connects the close audit journal and brings its schema up to
// date. Outside production an unreachable database disables the journal.
func openJournal(cfg *config.Config, log *zap.Logger) *persistence.Database {
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		if cfg.App.IsProduction() {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		log.Warn("Close audit journal disabled", zap.Error(err))
		return nil
	}
	log.Info("Database connected successfully", zap.String("driver", db.Driver()))

	tracer := telemetry.NewJournalTracer(telemetry.JournalTracingConfig{
		Enabled:   cfg.Telemetry.Enabled,
		Driver:    db.Driver(),
		SlowQuery: cfg.Telemetry.DBSlowQuery,
	}, log)
	if err := tracer.Register(db.DB); err != nil {
		log.Warn("Journal tracing unavailable", zap.Error(err))
	}

	if db.UsesMigrations() {
		err = migrateJournal(cfg, log)
	} else {
		err = db.AutoMigrate()
	}
	if err != nil {
		_ = db.Close()
		log.Fatal("Failed to migrate close audit journal", zap.Error(err))
	}
	return db
}

// migrateJournal applies the embedded migrations over a dedicated
// connection; closing the migrator closes the connection it was given
func migrateJournal(cfg *config.Config, log *zap.Logger) error {
	conn, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return err
	}
	m, err := migration.NewEmbedded(conn, log)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer m.Close()
	return m.Up()
}
