// Command worker runs the background jobs of the e-Defter tracker: it
// watches the archive folder, mails reminder digests at the configured alert
// times and takes the daily backup.  Probes and metrics are served on the
// metrics port.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/edefter-tracker/internal/app"
	"github.com/turtacn/edefter-tracker/internal/application/notification"
	"github.com/turtacn/edefter-tracker/internal/config"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/prometheus"
	httpapi "github.com/turtacn/edefter-tracker/internal/interfaces/http"
	"github.com/turtacn/edefter-tracker/internal/interfaces/http/handlers"
	"github.com/turtacn/edefter-tracker/internal/interfaces/http/middleware"
)

const (
	defaultWorkerConfigPath = "configs/edefter.yaml"
	defaultShutdownTimeout  = 30 * time.Second
	backupTick              = 30 * time.Second
)

// Build-time variables injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", defaultWorkerConfigPath, "path to configuration file (empty: environment only)")
	noWatch := flag.Bool("no-watch", false, "do not watch the archive folder")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(cfg, *configPath, !*noWatch, logger); err != nil {
		logger.Error("worker failed", logging.Err(err))
		os.Exit(1)
	}
}

// job is one long-running worker loop.
type job struct {
	name string
	run  func(ctx context.Context) error
}

func run(cfg *config.Config, configPath string, watch bool, logger logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger, app.Options{ConfigPath: configPath})
	if err != nil {
		return err
	}
	defer a.Close()

	if n, err := a.PruneSentAlerts(ctx); err != nil {
		logger.Warn("failed to prune sent alert markers", logging.Err(err))
	} else if n > 0 {
		logger.Info("pruned sent alert markers", logging.Int64("removed", n))
	}

	if cfg.Kafka.Enabled && cfg.Kafka.CreateTopic {
		ensureAlertTopic(ctx, cfg, logger)
	}

	jobs, err := buildJobs(a, watch)
	if err != nil {
		return err
	}

	if configPath != "" {
		config.Watch(configPath, func(next *config.Config) {
			ncfg, err := notification.ConfigFrom(next)
			if err != nil {
				logger.Warn("ignoring invalid notification settings", logging.Err(err))
				return
			}
			a.Scheduler.Reconfigure(ncfg)
		}, func(err error) {
			logger.Warn("config reload failed", logging.Err(err))
		})
	}

	healthSrv := startHealthServer(a, logger)

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			if err := j.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("worker job stopped", logging.String("job", j.name), logging.Err(err))
				prometheus.RecordError(a.Metrics, "worker", j.name)
			}
		}(j)
	}
	logger.Info("edefter worker started",
		logging.String("version", version),
		logging.Int("jobs", len(jobs)))

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("received shutdown signal", logging.String("signal", sig.String()))

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("all jobs finished")
	case <-time.After(defaultShutdownTimeout):
		logger.Warn("shutdown timeout exceeded, forcing exit")
	}

	if healthSrv != nil {
		if err := healthSrv.Stop(context.Background()); err != nil {
			logger.Error("health server shutdown error", logging.Err(err))
		}
	}
	logger.Info("edefter worker stopped")
	return nil
}

// ensureAlertTopic creates the alert topic when the broker lacks it.  Failure
// is logged; publishing still reports its own errors.
func ensureAlertTopic(ctx context.Context, cfg *config.Config, logger logging.Logger) {
	tm, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger.Named("kafka"))
	if err != nil {
		logger.Warn("cannot reach kafka to create topic", logging.Err(err))
		return
	}
	defer tm.Close()
	if err := tm.EnsureTopic(ctx, kafka.AlertTopicConfig(cfg.Kafka.Topic)); err != nil {
		logger.Warn("failed to ensure alert topic", logging.String("topic", cfg.Kafka.Topic), logging.Err(err))
	}
}

// buildJobs selects the loops the configuration enables.
func buildJobs(a *app.App, watch bool) ([]job, error) {
	cfg := a.Config
	var jobs []job

	if root := cfg.Archive.Root; watch && root != "" {
		jobs = append(jobs, job{name: "archive-watch", run: func(ctx context.Context) error {
			return a.Monitor.Watch(ctx, root)
		}})
	}

	if cfg.Notification.Enabled {
		jobs = append(jobs, job{name: "notification", run: a.Scheduler.Run})
	}

	if cfg.Backup.DailyAt != "" {
		at, err := config.ParseClockTime(cfg.Backup.DailyAt)
		if err != nil {
			return nil, fmt.Errorf("backup.daily_at: %w", err)
		}
		loc := a.Location
		jobs = append(jobs, job{name: "backup", run: func(ctx context.Context) error {
			return a.Backup.RunDaily(ctx, at, loc, backupTick)
		}})
	}
	return jobs, nil
}

// startHealthServer serves /healthz, /readyz and /metrics on the metrics
// port.  It returns nil when metrics are disabled.
func startHealthServer(a *app.App, logger logging.Logger) *httpapi.Server {
	cfg := a.Config
	if !cfg.Metrics.Enabled || a.Collector == nil {
		return nil
	}

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(httpapi.RouterConfig{
		HealthHandler:  handlers.NewHealthHandler(version, a.Check),
		Logging:        middleware.DefaultLoggingConfig(),
		Logger:         logger.Named("health"),
		Metrics:        a.Metrics,
		MetricsHandler: a.Collector.Handler(),
		MetricsPath:    cfg.Metrics.Path,
	})
	srv := httpapi.NewServer(httpapi.ServerConfig{
		Addr:            fmt.Sprintf(":%d", cfg.Metrics.Port),
		ShutdownTimeout: 5 * time.Second,
	}, router, logger.Named("health"))

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("health server error", logging.Err(err))
		}
	}()
	return srv
}
