package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"election-ledger/api"
	"election-ledger/config"
	"election-ledger/logging"
	"election-ledger/scheduler"
	"election-ledger/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	votingService, err := service.NewVotingService(service.OptionsFromConfig(cfg), logger)
	if err != nil {
		logger.Fatal("Failed to initialize voting service", zap.Error(err))
	}

	var snapshots *scheduler.SnapshotScheduler
	if cfg.Snapshot.Schedule != "" {
		snapshots, err = scheduler.NewSnapshotScheduler(votingService, cfg.Snapshot.Schedule, logger)
		if err != nil {
			logger.Fatal("Failed to schedule snapshots", zap.Error(err))
		}
		snapshots.Start()
	}

	server := api.NewServer(votingService, logger, cfg.Port)
	if snapshots != nil {
		server.WithSnapshotScheduler(snapshots)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	serverChan := make(chan error, 1)
	go func() {
		serverChan <- server.Start()
	}()

	select {
	case err := <-serverChan:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	case sig := <-sigChan:
		logger.Info("Received signal", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down server", zap.Error(err))
	}
	if snapshots != nil {
		snapshots.Stop()
	}
	if err := votingService.Close(); err != nil {
		logger.Error("Error during ledger shutdown", zap.Error(err))
	}
	logger.Info("Server shutdown completed",
		zap.String("admin", votingService.Admin().Hex()))
}
