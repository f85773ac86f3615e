package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/INLOpen/motionrelay/client"
	"github.com/INLOpen/motionrelay/config"
	"github.com/INLOpen/motionrelay/sensor"
	"github.com/INLOpen/motionrelay/status"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	budget := client.Unbounded()
	if cfg.Client.MaxAttempts > 0 {
		budget = client.Bounded(cfg.Client.MaxAttempts)
	}

	c, err := client.New(client.Options{
		Address:     cfg.Client.ServerAddress,
		SourceID:    cfg.Client.SourceID,
		Budget:      budget,
		Indicator:   status.NewLogIndicator(logger),
		Logger:      logger,
		DialTimeout: config.ParseDuration(cfg.Client.DialTimeout, 5*time.Second, logger),
	})
	if err != nil {
		logger.Error("Failed to create client", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	interval := config.ParseDuration(cfg.Client.SampleInterval, 100*time.Millisecond, logger)
	logger.Info("Sender running", "source_id", cfg.Client.SourceID,
		"server", cfg.Client.ServerAddress, "sample_interval", interval.String())

	if err := c.Run(ctx, sensor.NewSimSource(), interval); err != nil {
		if errors.Is(err, client.ErrAborted) {
			logger.Error("Sender aborted: could not reach the collector", "attempts", c.Attempts())
			os.Exit(1)
		}
		logger.Error("Sender exited with an error", "error", err)
		os.Exit(1)
	}

	logger.Info("Sender stopped.")
}
