package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"go-boxblur/pkg/assembler"
	"go-boxblur/pkg/blur"
	"go-boxblur/pkg/common"
	"go-boxblur/pkg/coordinator"
	"go-boxblur/pkg/processor"
	"go-boxblur/pkg/queue"
)

const (
	ModeSequential  = "sequential"
	ModeParallel    = "parallel"
	ModeDistributed = "distributed"
)

type Codec interface {
	coordinator.Decoder
	assembler.Encoder
}

// Transport is the job/result queue pair a distributed run talks to.
type Transport interface {
	coordinator.JobSink
	assembler.BlockingResultSource
}

type Config struct {
	Workers       int
	Quality       int
	OutputDir     string
	OutputPattern string
}

func (c Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.OutputPattern == "" {
		return errors.New("output pattern is required")
	}
	return nil
}

// Report describes one finished run. Elapsed covers loading and blurring;
// encoding is timed separately in SaveTime so every mode is measured the
// same way.
type Report struct {
	RunID           uuid.UUID        `json:"run_id"`
	Mode            string           `json:"mode"`
	Workers         int              `json:"workers"`
	StartedAt       time.Time        `json:"started_at"`
	Attempted       int              `json:"attempted"`
	Loaded          int              `json:"loaded"`
	Processed       int              `json:"processed"`
	Saved           int              `json:"saved"`
	DecodeFailures  []common.Failure `json:"decode_failures,omitempty"`
	ProcessFailures []common.Failure `json:"process_failures,omitempty"`
	EncodeFailures  []common.Failure `json:"encode_failures,omitempty"`
	BlurTime        time.Duration    `json:"blur_time"`
	Elapsed         time.Duration    `json:"elapsed"`
	SaveTime        time.Duration    `json:"save_time"`
	InputPaths      []string         `json:"input_paths"`
	OutputPaths     []string         `json:"output_paths"`
}

func (r *Report) Failures() []common.Failure {
	out := append([]common.Failure(nil), r.DecodeFailures...)
	out = append(out, r.ProcessFailures...)
	return append(out, r.EncodeFailures...)
}

func newReport(mode string, cfg Config, paths []string) *Report {
	return &Report{
		RunID:      uuid.New(),
		Mode:       mode,
		Workers:    cfg.Workers,
		StartedAt:  time.Now(),
		Attempted:  len(paths),
		InputPaths: paths,
	}
}

func (r *Report) addLoad(s coordinator.Summary) {
	r.Loaded = s.Produced
	r.DecodeFailures = s.Failures
}

func (r *Report) addOutput(o assembler.Output) {
	r.Saved = o.Saved
	r.OutputPaths = o.OutputPaths
	r.EncodeFailures = o.Failures
	r.ProcessFailures = o.ProcessFailures
	r.SaveTime = o.SaveTime
}

// Run executes the worker-pool pipeline: the coordinator and all workers
// start together, the coordinator's completion is followed by one stop
// sentinel per worker, and once every worker has exited the result queue is
// drained and encoded. Output order, and therefore the name each result
// gets, is unspecified. If ctx ends, nothing is encoded.
func Run(ctx context.Context, cfg Config, paths []string, codec Codec) (*Report, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	report := newReport(ModeParallel, cfg, paths)
	log := slog.With("run_id", report.RunID, "mode", ModeParallel)
	log.Info("pipeline: starting", "images", len(paths), "workers", cfg.Workers)

	q := queue.NewLocalQueue()
	coord := coordinator.NewCoordinator(codec, q)
	pool := processor.NewWorkerPool(q, q, cfg.Workers, report.RunID.String()[:8])

	var summary coordinator.Summary
	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		summary = coord.Run(ctx, paths)
	}()
	pool.Start(ctx)

	<-coordDone
	report.addLoad(summary)

	if err := coordinator.SignalComplete(ctx, q, cfg.Workers); err != nil {
		return report, err
	}
	pool.Wait()

	stats := pool.Stats()
	report.Processed = int(stats.Processed)
	report.BlurTime = stats.BlurTime
	report.Elapsed = time.Since(report.StartedAt)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("pipeline interrupted: %w", err)
	}
	if summary.Produced == 0 {
		return report, common.ErrNoInput
	}

	asm := assembler.NewAssembler(codec, cfg.OutputDir, cfg.OutputPattern, cfg.Quality)
	asm.Drain(q)
	report.addOutput(asm.Output())

	log.Info("pipeline: complete",
		"processed", report.Processed,
		"save_time", report.SaveTime,
		"saved", report.Saved,
		"failures", len(report.Failures()),
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// RunSequential is the single-goroutine baseline: decode everything, blur
// each image in source order, then save them in that same order. As with
// Run, a cancelled run encodes nothing.
func RunSequential(ctx context.Context, cfg Config, paths []string, codec Codec) (*Report, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	report := newReport(ModeSequential, cfg, paths)
	report.Workers = 1
	log := slog.With("run_id", report.RunID, "mode", ModeSequential)
	log.Info("pipeline: starting", "images", len(paths))

	q := queue.NewLocalQueue()
	report.addLoad(coordinator.NewCoordinator(codec, q).Run(ctx, paths))
	if err := ctx.Err(); err != nil {
		report.Elapsed = time.Since(report.StartedAt)
		return report, fmt.Errorf("pipeline interrupted: %w", err)
	}
	if report.Loaded == 0 {
		report.Elapsed = time.Since(report.StartedAt)
		return report, common.ErrNoInput
	}

	var blurred []*common.ImageTask
	blurStart := time.Now()
	for {
		job, ok := q.TryPopJob()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			report.Elapsed = time.Since(report.StartedAt)
			return report, fmt.Errorf("pipeline interrupted: %w", err)
		}
		blurred = append(blurred, blur.ApplyToTask(job.Task))
	}
	report.BlurTime = time.Since(blurStart)
	report.Processed = len(blurred)
	report.Elapsed = time.Since(report.StartedAt)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("pipeline interrupted: %w", err)
	}

	asm := assembler.NewAssembler(codec, cfg.OutputDir, cfg.OutputPattern, cfg.Quality)
	for _, task := range blurred {
		_ = asm.Save(task)
	}
	report.addOutput(asm.Output())

	log.Info("pipeline: complete", "saved", report.Saved, "elapsed", report.Elapsed, "save_time", report.SaveTime)
	return report, nil
}

// RunDistributed is the coordinator side of a multi-process run. Workers
// are separate processes consuming the same transport; cfg.Workers is the
// number of worker units that must receive a stop sentinel. Since remote
// workers cannot be joined, the run is complete once one result per queued
// image has arrived, failed results included.
func RunDistributed(ctx context.Context, cfg Config, paths []string, codec Codec, transport Transport) (*Report, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	report := newReport(ModeDistributed, cfg, paths)
	log := slog.With("run_id", report.RunID, "mode", ModeDistributed)
	log.Info("pipeline: starting", "images", len(paths), "remote_workers", cfg.Workers)

	report.addLoad(coordinator.NewCoordinator(codec, transport).Run(ctx, paths))
	if err := ctx.Err(); err != nil {
		report.Elapsed = time.Since(report.StartedAt)
		return report, fmt.Errorf("pipeline interrupted: %w", err)
	}

	if err := coordinator.SignalComplete(ctx, transport, cfg.Workers); err != nil {
		return report, err
	}
	if report.Loaded == 0 {
		report.Elapsed = time.Since(report.StartedAt)
		return report, common.ErrNoInput
	}

	asm := assembler.NewAssembler(codec, cfg.OutputDir, cfg.OutputPattern, cfg.Quality)
	received, err := asm.Receive(ctx, transport, report.Loaded)
	out := asm.Output()
	report.addOutput(out)
	report.Processed = received - len(out.ProcessFailures)
	report.BlurTime = out.ProcessTime
	// results are saved as they arrive, so take encoding back out
	report.Elapsed = time.Since(report.StartedAt) - out.SaveTime
	if err != nil {
		return report, err
	}

	log.Info("pipeline: complete", "saved", report.Saved, "elapsed", report.Elapsed)
	return report, nil
}
