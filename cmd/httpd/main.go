// Command httpd runs the catalog classification service: the product-update
// webhook listener, the command API, and the backfill job runner.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonesrussell/catalog-classifier/internal/bootstrap"
	"github.com/jonesrussell/catalog-classifier/internal/config"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
)

const defaultConfigPath = "config.yml"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "catalog-classifier: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load[config.Config](configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := bootstrap.New(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	app.Logger.Info("Starting catalog classifier",
		logger.String("service", cfg.Service.Name),
		logger.String("version", cfg.Service.Version),
		logger.Int("port", cfg.Service.Port),
		logger.String("shop", cfg.Shop.ShopURL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.WatchRules(ctx)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.Server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err = <-serverErrors:
		return err
	case sig := <-shutdown:
		app.Logger.Info("Shutdown signal received", logger.String("signal", sig.String()))
	}

	cancel()
	return app.Server.Shutdown(context.Background())
}
