package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/verdantlabs/grove/pkg/allocator"
	"github.com/verdantlabs/grove/pkg/journal"
	"github.com/verdantlabs/grove/pkg/log"
	"github.com/verdantlabs/grove/pkg/metrics"
	"github.com/verdantlabs/grove/pkg/tree"
)

// FileConfig is the YAML shape of a grove.yaml daemon configuration.
// Zero values fall back to the defaults below; flags override the file.
type FileConfig struct {
	Depth        int    `yaml:"depth"`
	Branches     int    `yaml:"branches"`
	TotalMemory  uint64 `yaml:"totalMemory"`
	TotalCompute uint64 `yaml:"totalCompute"`
	MaxPerNode   uint64 `yaml:"maxPerNode"`
	Scale        string `yaml:"scale"`
	PathSuffix   bool   `yaml:"pathSuffix"`

	SessionTimeout time.Duration `yaml:"sessionTimeout"`
	TrustThreshold float64       `yaml:"trustThreshold"`
	ScanWindow     time.Duration `yaml:"scanWindow"`

	ClosedLoop bool `yaml:"closedLoop"`
	DropExcess bool `yaml:"dropExcess"`

	RebalanceInterval time.Duration `yaml:"rebalanceInterval"`
	RescanInterval    time.Duration `yaml:"rescanInterval"`
	SweepInterval     time.Duration `yaml:"sweepInterval"`
	CollectInterval   time.Duration `yaml:"collectInterval"`

	Listen   string `yaml:"listen"`
	DataDir  string `yaml:"dataDir"`
	LogLevel string `yaml:"logLevel"`
	LogJSON  bool   `yaml:"logJSON"`
}

func defaultFileConfig() FileConfig {
	return FileConfig{
		Depth:             4,
		Branches:          4,
		TotalMemory:       1 << 30,
		TotalCompute:      100000,
		RebalanceInterval: 30 * time.Second,
		RescanInterval:    45 * time.Second,
		SweepInterval:     time.Minute,
		CollectInterval:   15 * time.Second,
		Listen:            ":9690",
		LogLevel:          "info",
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Grove allocator daemon",
	Long: `Run the allocator with its operational surfaces: Prometheus metrics,
health endpoints, the rebalance/rescan/sweep tickers, and (when a data
directory is configured) the bbolt audit journal.

Examples:
  # Defaults, metrics on :9690
  grove serve

  # From a config file, with the listen address overridden
  grove serve --config grove.yaml --listen :9700`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "YAML configuration file")
	serveCmd.Flags().String("listen", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().String("data-dir", "", "Journal data directory (overrides config)")

	rootCmd.AddCommand(serveCmd)
}

func loadFileConfig(path string) (FileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadFileConfig(configPath)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Listen = listen
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("daemon")
	metrics.SetVersion(Version)

	alloc, err := allocator.New(allocator.Config{
		Depth:          cfg.Depth,
		Branches:       cfg.Branches,
		TotalMemory:    cfg.TotalMemory,
		TotalCompute:   cfg.TotalCompute,
		MaxPerNode:     cfg.MaxPerNode,
		Scale:          tree.LevelScale(cfg.Scale),
		PathSuffix:     cfg.PathSuffix,
		SessionTimeout: cfg.SessionTimeout,
		TrustThreshold: cfg.TrustThreshold,
		ScanWindow:     cfg.ScanWindow,
		ClosedLoop:     cfg.ClosedLoop,
		DropExcess:     cfg.DropExcess,
	})
	if err != nil {
		return fmt.Errorf("failed to create allocator: %w", err)
	}
	metrics.RegisterComponent("allocator", true, "running")
	metrics.RegisterComponent("broker", true, "running")

	// Optional audit journal, fed from the event broker.
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		j, err := journal.Open(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer j.Close()
		sub := alloc.Broker().Subscribe()
		go j.Record(sub)
		metrics.RegisterComponent("journal", true, "recording")
		logger.Info().Str("data_dir", cfg.DataDir).Msg("audit journal enabled")
	}

	collector := metrics.NewCollector(alloc, cfg.CollectInterval)
	collector.Start()
	defer collector.Stop()

	// Caller-owned periodic work: rebalance, trust rescans, session
	// sweeps. The library runs no timers of its own.
	stopTickers := make(chan struct{})
	go runTicker(cfg.RebalanceInterval, stopTickers, alloc.Rebalance)
	go runTicker(cfg.RescanInterval, stopTickers, alloc.RescanAll)
	go runTicker(cfg.SweepInterval, stopTickers, func() {
		if n := alloc.CleanupExpiredSessions(); n > 0 {
			logger.Debug().Int("removed", n).Msg("expired sessions swept")
		}
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", metrics.HealthHandler())
	mux.HandleFunc("/readyz", metrics.ReadyHandler())
	mux.HandleFunc("/livez", metrics.LivenessHandler())

	server := &http.Server{Addr: cfg.Listen, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("listen", cfg.Listen).Msg("metrics server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Shutdown is explicit and signal-driven; the exit hook is a
	// safety net, not the primary mechanism.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("metrics server failed")
	}

	close(stopTickers)
	metrics.UpdateComponent("allocator", false, "shutting down")
	alloc.Shutdown()
	_ = server.Close()
	return nil
}

// runTicker invokes fn on every tick until stop closes.
func runTicker(interval time.Duration, stop <-chan struct{}, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-stop:
			return
		}
	}
}
