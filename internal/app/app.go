// Package app assembles the tracker from configuration: the SQLite store, the
// optional Redis, Kafka and MinIO backends, metrics, and every application
// service.  The CLI, the API server and the worker share one App.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/edefter-tracker/internal/application/backup"
	"github.com/turtacn/edefter-tracker/internal/application/monitoring"
	"github.com/turtacn/edefter-tracker/internal/application/notification"
	"github.com/turtacn/edefter-tracker/internal/application/registry"
	"github.com/turtacn/edefter-tracker/internal/application/reporting"
	"github.com/turtacn/edefter-tracker/internal/application/tracking"
	"github.com/turtacn/edefter-tracker/internal/config"
	"github.com/turtacn/edefter-tracker/internal/domain/company"
	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/internal/domain/upload"
	redisclient "github.com/turtacn/edefter-tracker/internal/infrastructure/database/redis"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/database/sqlite"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/database/sqlite/repositories"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/messaging/smtp"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/storage/minio"
)

// sentAlertRetention is how long SQLite keeps reminder markers.
const sentAlertRetention = 30

// ─────────────────────────────────────────────────────────────────────────────
// Options
// ─────────────────────────────────────────────────────────────────────────────

// Options tunes how New builds the App.
type Options struct {
	// ConfigPath is included in backups when set.
	ConfigPath string

	// Now replaces time.Now in every service.
	Now func() time.Time

	// Offline skips Redis, Kafka and MinIO even when enabled.  One-shot CLI
	// commands that never need them use it.
	Offline bool
}

// ─────────────────────────────────────────────────────────────────────────────
// App
// ─────────────────────────────────────────────────────────────────────────────

// App holds the infrastructure clients and application services of one
// process.
type App struct {
	Config   *config.Config
	Logger   logging.Logger
	Location *time.Location

	DB        *sqlite.Connection
	Redis     *redisclient.Client
	Producer  *kafka.Producer
	MinIO     *minio.MinIOClient
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics

	Companies  company.Repository
	Uploads    upload.Repository
	SentAlerts *repositories.SentAlertRepo

	Engine    *deadline.Engine
	Tracking  tracking.Service
	Registry  registry.Service
	Monitor   *monitoring.Monitor
	Scheduler *notification.Scheduler
	Exporter  *reporting.Exporter
	Backup    *backup.Service
}

// New connects every configured backend and builds the services.  On error
// everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, Location: loc}
	if err := a.initInfrastructure(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initServices(opts); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("application initialized",
		logging.String("database", cfg.Database.Path),
		logging.Bool("redis", a.Redis != nil),
		logging.Bool("kafka", a.Producer != nil),
		logging.Bool("minio", a.MinIO != nil),
		logging.Bool("metrics", a.Metrics != nil))
	return a, nil
}

func (a *App) initInfrastructure(ctx context.Context, opts Options) error {
	cfg := a.Config

	db, err := sqlite.Open(ctx, sqlite.SQLiteConfig{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout,
	}, a.Logger.Named("sqlite"))
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	a.DB = db

	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		a.Collector = collector
		a.Metrics = prometheus.NewAppMetrics(collector)
	}

	if opts.Offline {
		return nil
	}

	if cfg.Redis.Enabled {
		cli, err := redisclient.NewClient(&redisclient.RedisConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, a.Logger.Named("redis"))
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.Redis = cli
	}

	if cfg.Kafka.Enabled {
		p, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			BatchSize:    cfg.Kafka.BatchSize,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		}, a.Logger.Named("kafka"))
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		a.Producer = p
	}

	if cfg.MinIO.Enabled {
		cli, err := minio.NewMinIOClient(ctx, minio.MinIOConfig{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKeyID,
			SecretAccessKey: cfg.MinIO.SecretAccessKey,
			UseSSL:          cfg.MinIO.UseSSL,
			Region:          cfg.MinIO.Region,
			Bucket:          cfg.MinIO.Bucket,
			Prefix:          cfg.MinIO.Prefix,
		}, a.Logger.Named("minio"))
		if err != nil {
			return fmt.Errorf("minio: %w", err)
		}
		a.MinIO = cli
	}
	return nil
}

func (a *App) initServices(opts Options) error {
	cfg := a.Config
	log := a.Logger

	holidays, err := cfg.HolidayDates()
	if err != nil {
		return err
	}
	a.Engine = deadline.NewEngine(deadline.WithCalendar(deadline.NewHolidayCalendar(holidays...)))

	a.Companies = repositories.NewCompanyRepo(a.DB, log)
	a.Uploads = repositories.NewUploadRepo(a.DB, log)
	a.SentAlerts = repositories.NewSentAlertRepo(a.DB, log)

	trackingOpts := []tracking.Option{
		tracking.WithClock(opts.Now),
		tracking.WithLocation(a.Location),
		tracking.WithMetrics(a.Metrics),
	}
	if a.Redis != nil {
		cache := redisclient.NewRedisCache(a.Redis, log.Named("cache"),
			redisclient.WithPrefix(cfg.Redis.KeyPrefix),
			redisclient.WithDefaultTTL(cfg.Redis.DefaultTTL))
		trackingOpts = append(trackingOpts, tracking.WithCache(cache, cfg.Redis.DefaultTTL))
	}
	a.Tracking = tracking.NewService(a.Engine, a.Companies, a.Uploads, log.Named("tracking"), trackingOpts...)
	a.Registry = registry.NewService(a.Companies, a.Uploads, a.Tracking, log.Named("registry"))

	a.Monitor = monitoring.NewMonitor(a.Uploads, log.Named("monitor"),
		monitoring.WithDebounce(cfg.Archive.Debounce),
		monitoring.WithMetrics(a.Metrics),
		monitoring.WithClock(opts.Now),
		monitoring.WithOnChange(func(ctx context.Context, touched int) {
			if err := a.Tracking.Invalidate(ctx); err != nil {
				log.Warn("failed to invalidate deadlines after scan", logging.Int("touched", touched), logging.Err(err))
			}
		}))

	if err := a.initScheduler(opts); err != nil {
		return err
	}

	a.Exporter = reporting.NewExporter(log.Named("export"), reporting.WithMetrics(a.Metrics))

	backupOpts := []backup.Option{backup.WithMetrics(a.Metrics), backup.WithClock(opts.Now)}
	if a.MinIO != nil {
		backupOpts = append(backupOpts, backup.WithRemote(minio.NewBackupStore(a.MinIO, log.Named("minio"))))
	}
	a.Backup = backup.NewService(backup.Config{
		Dir:        cfg.Backup.Dir,
		Retain:     cfg.Backup.Retain,
		DBPath:     cfg.Database.Path,
		ConfigPath: opts.ConfigPath,
	}, a.DB, log.Named("backup"), backupOpts...)
	return nil
}

func (a *App) initScheduler(opts Options) error {
	cfg := a.Config
	log := a.Logger

	ncfg, err := notification.ConfigFrom(cfg)
	if err != nil {
		return err
	}

	var mailer notification.Mailer
	if cfg.Notification.Enabled {
		sender, err := smtp.NewSender(smtp.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			UseTLS:   cfg.SMTP.UseTLS,
			Timeout:  cfg.SMTP.Timeout,
			From:     cfg.Notification.From,
		}, log.Named("smtp"))
		if err != nil {
			return fmt.Errorf("smtp: %w", err)
		}
		mailer = sender
	}

	var sent notification.SentRegistry = a.SentAlerts
	schedOpts := []notification.Option{
		notification.WithClock(opts.Now),
		notification.WithMetrics(a.Metrics),
	}
	if a.Redis != nil {
		sent = redisclient.NewSentAlertRegistry(a.Redis, cfg.Redis.KeyPrefix)
		schedOpts = append(schedOpts, notification.WithLocker(redisclient.NewLockFactory(a.Redis, cfg.Redis.KeyPrefix, log)))
	}
	if a.Producer != nil {
		pub := kafka.NewAlertPublisher(a.Producer, cfg.Kafka.Topic, cfg.App.Name, log.Named("events"))
		schedOpts = append(schedOpts, notification.WithPublisher(pub))
	}

	a.Scheduler = notification.NewScheduler(ncfg, a.Tracking, mailer, sent, log.Named("scheduler"), schedOpts...)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Operations shared by the entry points
// ─────────────────────────────────────────────────────────────────────────────

// ScanArchive runs one scan of archive.root.
func (a *App) ScanArchive(ctx context.Context) (*monitoring.ScanResult, error) {
	return a.Monitor.Scan(ctx, a.Config.Archive.Root)
}

// PruneSentAlerts drops SQLite reminder markers older than the retention
// window.  Redis markers expire on their own.
func (a *App) PruneSentAlerts(ctx context.Context) (int64, error) {
	cutoff := deadline.DateOf(a.Tracking.Now()).AddDays(-sentAlertRetention)
	n, err := a.SentAlerts.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.Logger.Info("pruned sent reminder markers", logging.Int64("removed", n), logging.String("before", cutoff.String()))
	}
	return n, nil
}

// Check pings every connected backend.  The result maps component name to
// its error, nil when healthy.
func (a *App) Check(ctx context.Context) map[string]error {
	out := map[string]error{"sqlite": a.DB.HealthCheck(ctx)}
	if a.Redis != nil {
		out["redis"] = a.Redis.Ping(ctx)
	}
	if a.MinIO != nil {
		out["minio"] = a.MinIO.HealthCheck(ctx)
	}
	for name, err := range out {
		prometheus.RecordHealth(a.Metrics, name, err == nil)
	}
	return out
}

// Close releases every backend in reverse order of opening.
func (a *App) Close() {
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			a.Logger.Warn("kafka producer close failed", logging.Err(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("redis close failed", logging.Err(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("sqlite close failed", logging.Err(err))
		}
	}
}
