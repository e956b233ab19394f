// Command apiserver serves the JSON API of the e-Defter tracker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/edefter-tracker/internal/app"
	"github.com/turtacn/edefter-tracker/internal/config"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	httpapi "github.com/turtacn/edefter-tracker/internal/interfaces/http"
)

const defaultConfigPath = "configs/edefter.yaml"

// Build-time variables injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file (empty: environment only)")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *httpPort > 0 {
		cfg.Server.Port = *httpPort
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Error("apiserver failed", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, logger logging.Logger) error {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger, app.Options{ConfigPath: configPath})
	if err != nil {
		return err
	}
	defer a.Close()

	router, err := httpapi.NewAppRouter(a, version)
	if err != nil {
		return err
	}
	srv := httpapi.NewServer(httpapi.ServerConfig{
		Addr:            cfg.ServerAddr(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, router, logger.Named("http"))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info("edefter apiserver started",
		logging.String("version", version),
		logging.String("addr", cfg.ServerAddr()))

	// Wait for shutdown signal or a listener failure.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", logging.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	if err := srv.Stop(ctx); err != nil {
		return err
	}
	logger.Info("edefter apiserver stopped")
	return nil
}
