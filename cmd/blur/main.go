package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go-boxblur/pkg/codec"
	"go-boxblur/pkg/common"
	"go-boxblur/pkg/config"
	"go-boxblur/pkg/pipeline"
	"go-boxblur/pkg/processor"
	"go-boxblur/pkg/queue"
	"go-boxblur/pkg/report"
	"go-boxblur/pkg/stats"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file")
		mode       = flag.String("mode", "", "Mode: sequential, parallel, compare, coordinator or worker")
		numWorkers = flag.Int("workers", 0, "Number of workers")
		inputDir   = flag.String("input", "", "Input directory (default: numbered images/image%d.jpg)")
		outputDir  = flag.String("output", "", "Output directory")
		quality    = flag.Int("quality", 0, "JPEG quality")
		redisAddr  = flag.String("redis", "", "Redis address")
		mqttBroker = flag.String("mqtt", "", "MQTT broker host:port for run reports")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = *mode
		case "workers":
			cfg.Workers = *numWorkers
		case "input":
			cfg.Input.Dir = *inputDir
		case "output":
			cfg.Output.Dir = *outputDir
		case "quality":
			cfg.Quality = *quality
		case "redis":
			cfg.Redis.Addr = *redisAddr
		case "mqtt":
			cfg.MQTT.Broker = *mqttBroker
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hostname, _ := os.Hostname()
	serviceID := fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
	slog.Info("starting box blur", "mode", cfg.Mode, "service_id", serviceID, "workers", cfg.Workers)

	if err := run(ctx, cfg, serviceID); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, serviceID string) error {
	if cfg.Mode == config.ModeWorker {
		return runWorker(ctx, cfg, serviceID)
	}

	paths, err := cfg.Input.Paths()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: no images found", common.ErrNoInput)
	}

	pcfg := pipeline.Config{
		Workers:       cfg.Workers,
		Quality:       cfg.Quality,
		OutputDir:     cfg.Output.Dir,
		OutputPattern: cfg.Output.Pattern,
	}
	files := codec.File{}

	var reports []*pipeline.Report
	var runErr error

	switch cfg.Mode {
	case config.ModeSequential:
		fmt.Println("Running sequential box blur...")
		r, err := pipeline.RunSequential(ctx, pcfg, paths, files)
		reports, runErr = appendReport(reports, r), err

	case config.ModeParallel:
		fmt.Printf("Running parallel box blur with %d workers...\n", cfg.Workers)
		r, err := pipeline.Run(ctx, pcfg, paths, files)
		reports, runErr = appendReport(reports, r), err

	case config.ModeCompare:
		seqCfg := pcfg
		seqCfg.OutputDir = filepath.Join(cfg.Output.Dir, pipeline.ModeSequential)
		fmt.Println("1. Running sequential box blur:")
		r, err := pipeline.RunSequential(ctx, seqCfg, paths, files)
		reports = appendReport(reports, r)
		if err != nil {
			runErr = err
			break
		}
		printSummary(r)

		parCfg := pcfg
		parCfg.OutputDir = filepath.Join(cfg.Output.Dir, pipeline.ModeParallel)
		fmt.Printf("\n2. Running parallel box blur with %d workers:\n", cfg.Workers)
		r, runErr = pipeline.Run(ctx, parCfg, paths, files)
		reports = appendReport(reports, r)

	case config.ModeCoordinator:
		rq, err := queue.NewRedisQueue(ctx, cfg.Redis.Addr, cfg.Redis.Prefix, cfg.Redis.PollTimeout)
		if err != nil {
			return err
		}
		defer rq.Close()
		if err := rq.Reset(ctx); err != nil {
			return err
		}

		fmt.Printf("Coordinating %d images for %d remote workers...\n", len(paths), cfg.Workers)
		r, err := pipeline.RunDistributed(ctx, pcfg, paths, files, rq)
		reports, runErr = appendReport(reports, r), err

	default:
		return fmt.Errorf("invalid mode: %s", cfg.Mode)
	}

	if len(reports) > 0 {
		printSummary(reports[len(reports)-1])
		writeStats(cfg, reports)
		publish(cfg, reports)
	}
	return runErr
}

func runWorker(ctx context.Context, cfg *config.Config, serviceID string) error {
	rq, err := queue.NewRedisQueue(ctx, cfg.Redis.Addr, cfg.Redis.Prefix, cfg.Redis.PollTimeout)
	if err != nil {
		return err
	}
	defer rq.Close()

	pool := processor.NewWorkerPool(rq, rq, cfg.Workers, serviceID)
	startTime := time.Now()
	pool.Run(ctx)

	s := pool.Stats()
	fmt.Printf("\n=== Worker %s Complete ===\n", serviceID)
	fmt.Printf("Images processed: %d\n", s.Processed)
	fmt.Printf("Failed jobs: %d\n", s.Failed)
	for i, n := range s.PerWorker {
		fmt.Printf("  worker %d: %d\n", i, n)
	}
	fmt.Printf("Total blur time: %.2fs\n", s.BlurTime.Seconds())
	fmt.Printf("Total time: %.2fs\n", time.Since(startTime).Seconds())

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func appendReport(reports []*pipeline.Report, r *pipeline.Report) []*pipeline.Report {
	if r == nil {
		return reports
	}
	return append(reports, r)
}

func printSummary(r *pipeline.Report) {
	fmt.Printf("\n=== %s Box Blur Complete ===\n", r.Mode)
	fmt.Printf("Run ID: %s\n", r.RunID)
	fmt.Printf("Images loaded: %d of %d\n", r.Loaded, r.Attempted)
	fmt.Printf("Images processed: %d\n", r.Processed)
	fmt.Printf("Images saved: %d\n", r.Saved)
	fmt.Printf("Workers: %d\n", r.Workers)
	fmt.Printf("Total blur time: %.2fs\n", r.BlurTime.Seconds())
	fmt.Printf("Total time: %.2fs\n", r.Elapsed.Seconds())
	fmt.Printf("Total save time: %.2fs\n", r.SaveTime.Seconds())
	for _, f := range r.Failures() {
		fmt.Printf("  failed: %s\n", f.Error())
	}
}

func writeStats(cfg *config.Config, reports []*pipeline.Report) {
	data := make([]stats.PerformanceData, 0, len(reports))
	for _, r := range reports {
		data = append(data, stats.FromReport(r))
	}
	path, err := stats.WritePerformanceResults(cfg.Stats.Dir, data)
	if err != nil {
		slog.Warn("failed to write results file", "error", err)
		return
	}
	fmt.Printf("Results written to %s\n", path)
}

func publish(cfg *config.Config, reports []*pipeline.Report) {
	if cfg.MQTT.Broker == "" {
		return
	}
	pub, err := report.NewMQTTPublisher(cfg.MQTT)
	if err != nil {
		slog.Warn("report publisher unavailable", "error", err)
		return
	}
	defer pub.Close()

	for _, r := range reports {
		if err := pub.Publish(r); err != nil {
			slog.Warn("failed to publish report", "run_id", r.RunID, "error", err)
		}
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
