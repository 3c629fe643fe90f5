package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/backscale/backscale/internal/backend"
	"github.com/backscale/backscale/internal/config"
	"github.com/backscale/backscale/internal/drive"
	"github.com/backscale/backscale/internal/fleetapi"
	"github.com/backscale/backscale/internal/logging"
	"github.com/backscale/backscale/internal/policy"
	"github.com/backscale/backscale/internal/reconcile"
	"github.com/backscale/backscale/internal/wsclient"
	"github.com/backscale/backscale/pkg/scaling"
)

func main() {
	// Load .env if present; flags and real env still win.
	_ = godotenv.Load()

	cfg := config.ParseClientConfig()
	logger := logging.New("backscale", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Watch {
		if err := watch(ctx, cfg); err != nil && ctx.Err() == nil {
			logger.Error("watch failed", "error", err)
			os.Exit(1)
		}
		return
	}

	pol, err := policy.ForVariant(cfg.PolicyVariant, cfg.BurstFactor)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var (
		queue backend.QueueBackend
		fleet backend.FleetBackend
		work  backend.WorkBackend
	)
	if cfg.DryRun {
		mem := backend.NewMemory(cfg.MaxUnits)
		mem.SetBacklog(cfg.Backlog, 0)
		for i := uint(0); i < cfg.MaxUnits; i++ {
			mem.AddStopped(scaling.UnitID(fmt.Sprintf("i-%d", i+1)))
		}
		queue, fleet, work = mem, mem, mem
	} else {
		client := fleetapi.New(cfg.FleetAPIURL, cfg.QueueID, cfg.FleetID)
		queue, fleet, work = client, client, client
	}

	reader := backend.NewStateReader(queue, fleet, work, logger)
	driver := drive.NewDriver(fleet, logger)
	dispatcher := drive.NewDispatcher(work,
		backend.LaunchSpec{Cluster: cfg.Cluster, TaskDefinition: cfg.TaskDefinition},
		cfg.WaitTimeout, cfg.WaitInterval, logger)
	reconciler := reconcile.New(reader, pol, driver, dispatcher, logger)

	res, err := reconciler.RunTick(ctx)
	printResult(res)
	if err != nil {
		os.Exit(1)
	}
}

// watch streams tick results from a running daemon and prints each as JSON.
func watch(ctx context.Context, cfg config.ClientConfig) error {
	logger := logging.New("backscale", cfg.LogLevel)
	conn, err := wsclient.Dial(ctx, cfg.ServerURL, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.ReadLoop(ctx, func(res scaling.TickResult) {
		printResult(res)
	})
}

func printResult(res scaling.TickResult) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
}
