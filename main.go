package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/game"
	"github.com/pthm-cable/slime/gpu/soft"
	"github.com/pthm-cable/slime/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml or config.json (empty = use defaults)")
	headless := flag.Bool("headless", false, "Run without a window")
	terminal := flag.Bool("terminal", false, "Render to the terminal instead of a window")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	logText := flag.Bool("log-text", false, "Log as text instead of JSON")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, config snapshot and PNG snapshots")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	seed := flag.Uint64("seed", 0, "Agent RNG seed (0 = use config)")
	maxFrames := flag.Uint64("max-frames", 0, "Stop after N frames (0 = unlimited)")
	workers := flag.Int("workers", 0, "Software device worker count (0 = GOMAXPROCS)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, nil)
	if *logText {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(handler))

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *seed != 0 {
		cfg.RandomSeed = *seed
	}

	output, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}
	defer output.Close()
	if err := output.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config snapshot", "error", err)
	}

	var metrics *telemetry.Metrics
	if *metricsAddr != "" {
		metrics = telemetry.NewMetrics()
		go serveMetrics(*metricsAddr, metrics)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := runner{
		cfg:       cfg,
		maxFrames: *maxFrames,
		device:    soft.Options{Workers: *workers},
		opts: game.Options{
			LogStats: *logStats,
			Output:   output,
			Metrics:  metrics,
		},
	}

	switch {
	case *headless:
		err = run.headless(ctx)
	case *terminal:
		err = run.terminal(ctx)
	default:
		err = run.window(ctx)
	}
	if err != nil {
		slog.Error("simulation failed", "error", err)
		output.Close()
		os.Exit(1)
	}
}

func serveMetrics(addr string, m *telemetry.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server failed", "error", err)
	}
}
