package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go-boxblur/pkg/common"
)

type Decoder interface {
	Decode(path string) (*common.ImageTask, error)
}

type JobSink interface {
	PushJob(ctx context.Context, job *common.JobMessage) error
}

// Summary is what the coordinator reports once every source was attempted.
type Summary struct {
	Attempted int
	Produced  int
	Failures  []common.Failure
	LoadTime  time.Duration
}

// Coordinator decodes sources one after another and queues them for the
// workers. A source that fails to decode is logged and skipped. Loading
// stops at the first source reached after ctx is done.
type Coordinator struct {
	decoder Decoder
	jobs    JobSink
}

func NewCoordinator(decoder Decoder, jobs JobSink) *Coordinator {
	return &Coordinator{
		decoder: decoder,
		jobs:    jobs,
	}
}

func (c *Coordinator) Run(ctx context.Context, paths []string) Summary {
	startTime := time.Now()
	summary := Summary{Attempted: len(paths)}

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			slog.Warn("coordinator: stopped loading", "attempted", i, "remaining", len(paths)-i, "error", err)
			summary.Attempted = i
			break
		}

		task, err := c.decoder.Decode(path)
		if err == nil {
			task.Index = i
			task.Source = path
			err = task.Validate()
		}
		if err != nil {
			slog.Warn("coordinator: failed to load image", "path", path, "error", err)
			summary.Failures = append(summary.Failures, common.Failure{Stage: "decode", Path: path, Err: err})
			continue
		}

		if err := c.jobs.PushJob(ctx, common.ImageJob(task)); err != nil {
			slog.Error("coordinator: failed to queue image", "path", path, "error", err)
			summary.Failures = append(summary.Failures, common.Failure{Stage: "enqueue", Path: path, Err: err})
			continue
		}

		summary.Produced++
		slog.Debug("coordinator: image queued",
			"index", i,
			"path", path,
			"width", task.Width,
			"height", task.Height,
			"channels", task.Channels,
		)
	}

	summary.LoadTime = time.Since(startTime)
	slog.Info("coordinator: finished loading",
		"produced", summary.Produced,
		"failed", len(summary.Failures),
		"duration", summary.LoadTime,
	)
	return summary
}

// SignalComplete tells workers no more input will arrive: one sentinel per
// worker, each consumed by exactly one of them.
func SignalComplete(ctx context.Context, jobs JobSink, workers int) error {
	for i := 0; i < workers; i++ {
		if err := jobs.PushJob(ctx, common.CompleteJob()); err != nil {
			return fmt.Errorf("failed to queue completion signal %d: %w", i, err)
		}
	}
	return nil
}
