// Package wire provides dependency injection for the escalator application.
// It creates singleton services with lazy initialization.
package wire

import (
	"database/sql"
	"log"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/example/escalator/internal/adapters/notify"
	"github.com/example/escalator/internal/adapters/sqlite"
	"github.com/example/escalator/internal/app"
	"github.com/example/escalator/internal/config"
	"github.com/example/escalator/internal/db"
	"github.com/example/escalator/internal/logging"
	"github.com/example/escalator/internal/metrics"
	"github.com/example/escalator/internal/ports/primary"
	"github.com/example/escalator/internal/ports/secondary"
)

var (
	cfg               *config.Config
	logger            *zap.Logger
	registry          *metrics.Metrics
	database          *sql.DB
	auditLog          secondary.AuditWriter
	dispatcher        *app.Dispatcher
	escalationService primary.EscalationService
	chainService      primary.ChainService
	scheduler         primary.Scheduler
	once              sync.Once

	// background is set by long-running commands before first use.
	background bool
)

// EnableBackgroundDispatch makes the dispatcher queue notifications for
// worker goroutines instead of delivering inline. Must be called before any
// service accessor; `serve` runs the workers with Dispatcher().Run.
func EnableBackgroundDispatch() {
	background = true
}

// Config returns the loaded configuration.
func Config() *config.Config {
	once.Do(initServices)
	return cfg
}

// Logger returns the root logger.
func Logger() *zap.Logger {
	once.Do(initServices)
	return logger
}

// Metrics returns the collector set.
func Metrics() *metrics.Metrics {
	once.Do(initServices)
	return registry
}

// EscalationService returns the singleton EscalationService instance.
func EscalationService() primary.EscalationService {
	once.Do(initServices)
	return escalationService
}

// ChainService returns the singleton ChainService instance.
func ChainService() primary.ChainService {
	once.Do(initServices)
	return chainService
}

// Scheduler returns the singleton Scheduler instance.
func Scheduler() primary.Scheduler {
	once.Do(initServices)
	return scheduler
}

// Dispatcher returns the notification dispatcher.
func Dispatcher() *app.Dispatcher {
	once.Do(initServices)
	return dispatcher
}

// DB returns the database handle.
func DB() *sql.DB {
	once.Do(initServices)
	return database
}

// AuditLog returns the audit log reader/writer.
func AuditLog() secondary.AuditWriter {
	once.Do(initServices)
	return auditLog
}

// Close releases the database handle and flushes the logger.
func Close() {
	if database != nil {
		_ = database.Close()
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatalf("failed to get working directory: %v", err)
	}
	cfg, err = config.LoadOrDefault(cwd)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	registry = metrics.New()

	database, err = db.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("path", cfg.Database.Path), zap.Error(err))
	}

	// Create repository adapters (secondary ports) - sqlite adapters with injected DB
	chainRepo := sqlite.NewChainRepository(database)
	caseRepo := sqlite.NewCaseRepository(database)
	auditLog = sqlite.NewAuditLogRepository(database)

	gateway := notificationGateway()

	n := cfg.Notifications
	dispatcher = app.NewDispatcher(gateway, caseRepo, app.DispatcherConfig{
		QueueSize:           n.QueueSize,
		Workers:             n.Workers,
		Timeout:             n.Timeout,
		Inline:              !background,
		BreakerMaxRequests:  n.Breaker.MaxRequests,
		BreakerInterval:     n.Breaker.Interval,
		BreakerOpenTimeout:  n.Breaker.OpenTimeout,
		BreakerMinRequests:  n.Breaker.MinRequests,
		BreakerFailureRatio: n.Breaker.FailureRatio,
	}, logging.Component(logger, "dispatcher"), registry)

	// Create effect executor with injected adapters
	executor := app.NewEffectExecutor(dispatcher, auditLog, logging.Component(logger, "effects"))

	// Create services (primary ports implementation)
	escalations := app.NewEscalationService(chainRepo, caseRepo, executor,
		logging.Component(logger, "escalation"), registry, cfg.Cases.DedupeOpenCases)
	escalationService = escalations
	chainService = app.NewChainService(chainRepo, executor, logging.Component(logger, "chain"))
	scheduler = app.NewScheduler(caseRepo, escalations, app.SchedulerConfig{
		TickInterval:    cfg.Scheduler.TickInterval,
		BatchSize:       cfg.Scheduler.BatchSize,
		Parallelism:     cfg.Scheduler.Parallelism,
		RetryBackoff:    cfg.Scheduler.RetryBackoff,
		MaxRetryBackoff: cfg.Scheduler.MaxRetryBackoff,
	}, logging.Component(logger, "scheduler"), registry)
}

func notificationGateway() secondary.NotificationGateway {
	n := cfg.Notifications
	if n.Gateway == config.GatewayRedis {
		client := notify.NewRedisClient(n.RedisAddr)
		return notify.NewRedisGateway(client, n.RedisStream, n.RedisMaxLen)
	}
	return notify.NewLogGateway(logging.Component(logger, "gateway"))
}
