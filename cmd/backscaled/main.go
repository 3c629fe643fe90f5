package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/backscale/backscale/internal/backend"
	"github.com/backscale/backscale/internal/config"
	"github.com/backscale/backscale/internal/drive"
	"github.com/backscale/backscale/internal/events"
	"github.com/backscale/backscale/internal/fleetapi"
	"github.com/backscale/backscale/internal/history"
	"github.com/backscale/backscale/internal/logging"
	"github.com/backscale/backscale/internal/metrics"
	"github.com/backscale/backscale/internal/policy"
	"github.com/backscale/backscale/internal/reconcile"
	"github.com/backscale/backscale/pkg/scaling"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // ops surface, not exposed publicly
	},
}

const version = "v0.2.0"

func main() {
	if hasFlag(os.Args[1:], "--version", "-v") {
		fmt.Println(version)
		return
	}

	// Load .env if present; flags and real env still win.
	_ = godotenv.Load()

	cfg := config.ParseDaemonConfig()
	logger := logging.New("backscaled", cfg.LogLevel)

	pol, err := policy.ForVariant(cfg.PolicyVariant, cfg.BurstFactor)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	client := fleetapi.New(cfg.FleetAPIURL, cfg.QueueID, cfg.FleetID)
	reader := backend.NewStateReader(client, client, client, logger)
	driver := drive.NewDriver(client, logger)
	dispatcher := drive.NewDispatcher(client,
		backend.LaunchSpec{Cluster: cfg.Cluster, TaskDefinition: cfg.TaskDefinition},
		cfg.WaitTimeout, cfg.WaitInterval, logger)
	reconciler := reconcile.New(reader, pol, driver, dispatcher, logger)

	hub := events.NewHub()
	store := history.NewStore(cfg.HistoryLimit, time.Hour)
	exporter, err := metrics.NewExporter("backscale", nil)
	if err != nil {
		logger.Error("metrics setup failed", "error", err)
		os.Exit(1)
	}

	// One tick at a time for this fleet: a tick still in progress makes the
	// next trigger (timer or manual) a no-op.
	var inFlight int32
	runTick := func(ctx context.Context) (scaling.TickResult, bool) {
		if !atomic.CompareAndSwapInt32(&inFlight, 0, 1) {
			logger.Warn("tick still in progress, skipping trigger")
			return scaling.TickResult{}, false
		}
		defer atomic.StoreInt32(&inFlight, 0)

		res, err := reconciler.RunTick(ctx)
		if err != nil {
			logger.Error("tick failed", "tick_id", res.TickID, "error", err)
		}
		exporter.Observe(res)
		store.Add(res)
		hub.Publish(res)
		return res, true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "version": version})
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/tick", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		res, ran := runTick(r.Context())
		if !ran {
			http.Error(w, "tick already in progress", http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if res.Status == scaling.StatusStateUnavailable {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(res)
	})
	mux.HandleFunc("/v1/history", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(store.Recent(0))
	})
	mux.HandleFunc("/v1/ticks", func(w http.ResponseWriter, r *http.Request) {
		handleTickStream(w, r, hub, logger)
	})

	server := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		logger.Info("ops surface listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops surface failed", "error", err)
			stop()
		}
	}()

	logger.Info("reconciliation loop starting",
		"policy", pol.Name(),
		"interval", cfg.TickInterval,
		"fleet_api", cfg.FleetAPIURL,
		"queue", cfg.QueueID,
		"fleet", cfg.FleetID)

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()
	cleanup := time.NewTicker(10 * time.Minute)
	defer cleanup.Stop()

	runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
			return
		case <-ticker.C:
			runTick(ctx)
		case <-cleanup.C:
			store.CleanupExpired(time.Now())
		}
	}
}

// handleTickStream upgrades the request and forwards every published tick
// result until the client goes away.
func handleTickStream(w http.ResponseWriter, r *http.Request, hub *events.Hub, logger *slog.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("tick stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	results, cancel := hub.Subscribe()
	defer cancel()

	// Reads are discarded; their only purpose is detecting disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(res); err != nil {
				return
			}
		}
	}
}

func hasFlag(args []string, names ...string) bool {
	for _, arg := range args {
		for _, name := range names {
			if arg == name {
				return true
			}
		}
	}
	return false
}
