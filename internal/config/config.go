package config

import (
	"flag"
	"os"
	"time"
)

// DaemonConfig holds configuration for the backscaled daemon.
type DaemonConfig struct {
	Addr           string        // ops HTTP listen address
	LogLevel       string        // debug, info, warn, error
	FleetAPIURL    string        // base URL of the fleet-manager API
	QueueID        string        // queue identifier passed to the backend
	FleetID        string        // fleet identifier passed to the backend
	Cluster        string        // work-scheduler cluster
	TaskDefinition string        // work unit definition to launch
	PolicyVariant  string        // "ephemeral" or "pool"
	BurstFactor    uint          // pool-policy backlog multiplier (default 2)
	TickInterval   time.Duration // time between reconciliation ticks
	WaitTimeout    time.Duration // capacity-wait ceiling (default 60s)
	WaitInterval   time.Duration // capacity-wait poll interval (default 10s)
	HistoryLimit   int           // tick results kept for /v1/history
}

// ClientConfig holds configuration for the backscale one-shot CLI.
type ClientConfig struct {
	ServerURL      string // daemon URL for -watch
	FleetAPIURL    string // fleet-manager API for one-shot ticks
	LogLevel       string
	QueueID        string
	FleetID        string
	Cluster        string
	TaskDefinition string
	PolicyVariant  string
	BurstFactor    uint
	WaitTimeout    time.Duration
	WaitInterval   time.Duration
	DryRun         bool // run against the in-memory backend
	Watch          bool // stream tick results from a daemon
	Backlog        uint // seeded backlog for -dry-run
	MaxUnits       uint // seeded fleet ceiling for -dry-run
}

// ParseDaemonConfig parses daemon configuration from flags and environment
// variables. Flags take precedence over environment variables.
func ParseDaemonConfig() DaemonConfig {
	return parseDaemonConfigWithFlagSet(flag.CommandLine, os.Args[1:])
}

// parseDaemonConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseDaemonConfigWithFlagSet(fs *flag.FlagSet, args []string) DaemonConfig {
	cfg := DaemonConfig{
		Addr:          ":8480",
		LogLevel:      "info",
		FleetAPIURL:   "http://localhost:8481",
		PolicyVariant: "ephemeral",
		BurstFactor:   2,
		TickInterval:  60 * time.Second,
		WaitTimeout:   60 * time.Second,
		WaitInterval:  10 * time.Second,
		HistoryLimit:  100,
	}

	// Read from environment first
	if addr := os.Getenv("BACKSCALE_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if logLevel := os.Getenv("BACKSCALE_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if apiURL := os.Getenv("BACKSCALE_FLEET_API_URL"); apiURL != "" {
		cfg.FleetAPIURL = apiURL
	}
	if queueID := os.Getenv("BACKSCALE_QUEUE_ID"); queueID != "" {
		cfg.QueueID = queueID
	}
	if fleetID := os.Getenv("BACKSCALE_FLEET_ID"); fleetID != "" {
		cfg.FleetID = fleetID
	}
	if cluster := os.Getenv("BACKSCALE_CLUSTER"); cluster != "" {
		cfg.Cluster = cluster
	}
	if taskDef := os.Getenv("BACKSCALE_TASK_DEFINITION"); taskDef != "" {
		cfg.TaskDefinition = taskDef
	}
	if variant := os.Getenv("BACKSCALE_POLICY"); variant != "" {
		cfg.PolicyVariant = variant
	}
	if interval := os.Getenv("BACKSCALE_TICK_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.TickInterval = d
		}
	}
	if wait := os.Getenv("BACKSCALE_CAPACITY_WAIT"); wait != "" {
		if d, err := time.ParseDuration(wait); err == nil {
			cfg.WaitTimeout = d
		}
	}
	if interval := os.Getenv("BACKSCALE_CAPACITY_WAIT_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.WaitInterval = d
		}
	}

	// Flags override environment
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "ops HTTP listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.FleetAPIURL, "fleet-api", cfg.FleetAPIURL, "fleet-manager API base URL")
	fs.StringVar(&cfg.QueueID, "queue", cfg.QueueID, "queue identifier")
	fs.StringVar(&cfg.FleetID, "fleet", cfg.FleetID, "fleet identifier")
	fs.StringVar(&cfg.Cluster, "cluster", cfg.Cluster, "work-scheduler cluster")
	fs.StringVar(&cfg.TaskDefinition, "task-definition", cfg.TaskDefinition, "work unit definition to launch")
	fs.StringVar(&cfg.PolicyVariant, "policy", cfg.PolicyVariant, "scaling policy variant (ephemeral, pool)")
	fs.UintVar(&cfg.BurstFactor, "burst-factor", cfg.BurstFactor, "pool policy backlog multiplier")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", cfg.TickInterval, "time between reconciliation ticks")
	fs.DurationVar(&cfg.WaitTimeout, "capacity-wait", cfg.WaitTimeout, "capacity-wait ceiling")
	fs.DurationVar(&cfg.WaitInterval, "capacity-wait-interval", cfg.WaitInterval, "capacity-wait poll interval")
	fs.IntVar(&cfg.HistoryLimit, "history-limit", cfg.HistoryLimit, "tick results kept for /v1/history")
	fs.Parse(args)

	if cfg.TickInterval < time.Second {
		cfg.TickInterval = time.Second
	}
	if cfg.WaitInterval < time.Second {
		cfg.WaitInterval = time.Second
	}
	if cfg.BurstFactor < 1 {
		cfg.BurstFactor = 1
	}
	if cfg.HistoryLimit < 1 {
		cfg.HistoryLimit = 1
	}

	return cfg
}

// ParseClientConfig parses CLI configuration from flags and environment
// variables. Flags take precedence over environment variables.
func ParseClientConfig() ClientConfig {
	return parseClientConfigWithFlagSet(flag.CommandLine, os.Args[1:])
}

// parseClientConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseClientConfigWithFlagSet(fs *flag.FlagSet, args []string) ClientConfig {
	cfg := ClientConfig{
		ServerURL:     "http://localhost:8480",
		FleetAPIURL:   "http://localhost:8481",
		LogLevel:      "info",
		PolicyVariant: "ephemeral",
		BurstFactor:   2,
		WaitTimeout:   60 * time.Second,
		WaitInterval:  10 * time.Second,
		MaxUnits:      10,
	}

	// Read from environment first
	if serverURL := os.Getenv("BACKSCALE_SERVER_URL"); serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if apiURL := os.Getenv("BACKSCALE_FLEET_API_URL"); apiURL != "" {
		cfg.FleetAPIURL = apiURL
	}
	if logLevel := os.Getenv("BACKSCALE_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if queueID := os.Getenv("BACKSCALE_QUEUE_ID"); queueID != "" {
		cfg.QueueID = queueID
	}
	if fleetID := os.Getenv("BACKSCALE_FLEET_ID"); fleetID != "" {
		cfg.FleetID = fleetID
	}
	if cluster := os.Getenv("BACKSCALE_CLUSTER"); cluster != "" {
		cfg.Cluster = cluster
	}
	if taskDef := os.Getenv("BACKSCALE_TASK_DEFINITION"); taskDef != "" {
		cfg.TaskDefinition = taskDef
	}
	if variant := os.Getenv("BACKSCALE_POLICY"); variant != "" {
		cfg.PolicyVariant = variant
	}
	if wait := os.Getenv("BACKSCALE_CAPACITY_WAIT"); wait != "" {
		if d, err := time.ParseDuration(wait); err == nil {
			cfg.WaitTimeout = d
		}
	}
	if interval := os.Getenv("BACKSCALE_CAPACITY_WAIT_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.WaitInterval = d
		}
	}

	// Flags override environment
	fs.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "daemon URL for -watch")
	fs.StringVar(&cfg.FleetAPIURL, "fleet-api", cfg.FleetAPIURL, "fleet-manager API base URL")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.QueueID, "queue", cfg.QueueID, "queue identifier")
	fs.StringVar(&cfg.FleetID, "fleet", cfg.FleetID, "fleet identifier")
	fs.StringVar(&cfg.Cluster, "cluster", cfg.Cluster, "work-scheduler cluster")
	fs.StringVar(&cfg.TaskDefinition, "task-definition", cfg.TaskDefinition, "work unit definition to launch")
	fs.StringVar(&cfg.PolicyVariant, "policy", cfg.PolicyVariant, "scaling policy variant (ephemeral, pool)")
	fs.UintVar(&cfg.BurstFactor, "burst-factor", cfg.BurstFactor, "pool policy backlog multiplier")
	fs.DurationVar(&cfg.WaitTimeout, "capacity-wait", cfg.WaitTimeout, "capacity-wait ceiling")
	fs.DurationVar(&cfg.WaitInterval, "capacity-wait-interval", cfg.WaitInterval, "capacity-wait poll interval")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "run one tick against an in-memory backend")
	fs.BoolVar(&cfg.Watch, "watch", false, "stream tick results from a daemon")
	fs.UintVar(&cfg.Backlog, "backlog", 0, "seeded backlog for -dry-run")
	fs.UintVar(&cfg.MaxUnits, "max-units", cfg.MaxUnits, "seeded fleet ceiling for -dry-run")
	fs.Parse(args)

	if cfg.BurstFactor < 1 {
		cfg.BurstFactor = 1
	}

	return cfg
}
