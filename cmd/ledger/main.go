// Command ledger serves the reward ledger REST API.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/axomx/reward-ledger/internal/app/runtime"
	"github.com/axomx/reward-ledger/internal/config"
	"github.com/axomx/reward-ledger/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (defaults to $LEDGER_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logr := logger.New(cfg.Logging)

	application, err := runtime.NewApplication(cfg, logr)
	if err != nil {
		logr.WithError(err).Fatal("initialise application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := application.Run(ctx)
	if runErr != nil {
		logr.WithError(runErr).Error("server stopped")
	} else {
		logr.Info("shutting down")
	}

	if err := application.Shutdown(context.Background()); err != nil {
		logr.WithError(err).Error("shutdown")
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
