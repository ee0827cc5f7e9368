package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldline/trajet/internal/agent"
	"github.com/fieldline/trajet/internal/dashboard"
	"github.com/fieldline/trajet/internal/db"
	"github.com/fieldline/trajet/internal/recorder"
	"github.com/fieldline/trajet/internal/session"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the trajet API server",
		Long:  "Launches the HTTP API for starting sessions, steering them, and watching their trajectories live.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "trajet.yaml", "path to trajet config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	gen, emb, err := buildBackends(cfg.Backend)
	if err != nil {
		return err
	}
	agents := agent.FromConfig(cfg.Agents)
	if len(agents) == 0 {
		return fmt.Errorf("config has no agents")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	reg := session.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	go session.RunSweeper(ctx, reg, cfg.Scheduler.SessionTTL.Std(), session.DefaultSweepCron, logger)

	if port == 0 {
		port = cfg.Server.Port
	}
	fmt.Fprintf(cmd.OutOrStdout(), "trajet API listening on :%d\n", port)

	return dashboard.Start(ctx, dashboard.Opts{
		Registry:  reg,
		Store:     recorder.New(gormDB),
		Agents:    agents,
		Generator: gen,
		Embedder:  emb,
		Scheduler: cfg.Scheduler,
		Analysis:  cfg.Analysis,
		Retries:   cfg.Backend.MaxRetries,
		Backoff:   cfg.Backend.RetryBackoff.Std(),
		Logger:    logger,
		Port:      port,
	})
}
