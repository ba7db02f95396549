package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go-boxblur/pkg/blur"
	"go-boxblur/pkg/common"
)

const (
	retryDelay    = 500 * time.Millisecond
	maxRetryDelay = 5 * time.Second
)

type JobSource interface {
	PopJob(ctx context.Context) (*common.JobMessage, error)
}

type ResultSink interface {
	PushResult(ctx context.Context, res *common.ResultTask) error
}

// Stats is a snapshot of what the pool has done so far.
type Stats struct {
	Processed int64
	Failed    int64
	PerWorker []int64
	BlurTime  time.Duration
}

// WorkerPool runs a fixed number of workers that pop image jobs, blur them
// and push the results. Each worker stops when it pops a completion
// sentinel, so the pool drains whatever was queued before the sentinels.
type WorkerPool struct {
	jobs       JobSource
	results    ResultSink
	numWorkers int
	poolID     string

	processed atomic.Int64
	failed    atomic.Int64
	blurNanos atomic.Int64
	perWorker []atomic.Int64

	wg      sync.WaitGroup
	started atomic.Bool
}

func NewWorkerPool(jobs JobSource, results ResultSink, numWorkers int, poolID string) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool{
		jobs:       jobs,
		results:    results,
		numWorkers: numWorkers,
		poolID:     poolID,
		perWorker:  make([]atomic.Int64, numWorkers),
	}
}

func (wp *WorkerPool) NumWorkers() int {
	return wp.numWorkers
}

// Start launches the workers and returns immediately. It may only be called once.
func (wp *WorkerPool) Start(ctx context.Context) {
	if !wp.started.CompareAndSwap(false, true) {
		panic("processor: WorkerPool started twice")
	}

	wp.wg.Add(wp.numWorkers)
	for i := 0; i < wp.numWorkers; i++ {
		go wp.worker(ctx, i)
	}
	slog.Info("processor: started workers", "pool", wp.poolID, "workers", wp.numWorkers)
}

// Wait blocks until every worker has exited.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Run is Start followed by Wait.
func (wp *WorkerPool) Run(ctx context.Context) {
	wp.Start(ctx)
	wp.Wait()
}

func (wp *WorkerPool) Stats() Stats {
	per := make([]int64, len(wp.perWorker))
	for i := range wp.perWorker {
		per[i] = wp.perWorker[i].Load()
	}
	return Stats{
		Processed: wp.processed.Load(),
		Failed:    wp.failed.Load(),
		PerWorker: per,
		BlurTime:  time.Duration(wp.blurNanos.Load()),
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	workerID := fmt.Sprintf("%s-worker-%d", wp.poolID, id)
	log := slog.With("worker", workerID)
	log.Debug("processor: worker started")

	delay := retryDelay
	for {
		job, err := wp.jobs.PopJob(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("processor: worker cancelled", "processed", wp.perWorker[id].Load())
				return
			}
			log.Warn("processor: read error", "error", err, "retry_in", delay)
			if sleepContext(ctx, delay) {
				delay = nextDelay(delay)
			}
			continue
		}
		delay = retryDelay

		if job.Type == common.JobTypeComplete {
			log.Debug("processor: worker shutting down", "processed", wp.perWorker[id].Load())
			return
		}

		if job.Type != common.JobTypeImage || job.Task == nil {
			log.Warn("processor: invalid job", "type", job.Type)
			wp.failed.Add(1)
			continue
		}

		if err := wp.processImage(ctx, workerID, job.Task); err != nil {
			log.Error("processor: failed to process image", "source", job.Task.Source, "error", err)
			wp.failed.Add(1)
			continue
		}

		wp.perWorker[id].Add(1)
		if count := wp.processed.Add(1); count%10 == 0 {
			log.Info("processor: progress", "processed_total", count)
		}
	}
}

// processImage blurs task and hands the result on. A task that cannot be
// blurred is answered with a failed result so the job is still accounted for.
func (wp *WorkerPool) processImage(ctx context.Context, workerID string, task *common.ImageTask) error {
	if err := task.Validate(); err != nil {
		if pushErr := wp.pushResult(ctx, workerID, common.FailedResult(task, workerID, err)); pushErr != nil {
			return fmt.Errorf("%w (%v)", err, pushErr)
		}
		return err
	}

	startTime := time.Now()
	blurred := blur.ApplyToTask(task)
	elapsed := time.Since(startTime)
	wp.blurNanos.Add(int64(elapsed))

	result := &common.ResultTask{
		ImageTask:   *blurred,
		WorkerID:    workerID,
		ProcessTime: elapsed,
	}
	return wp.pushResult(ctx, workerID, result)
}

// pushResult retries with backoff until the sink accepts res or ctx ends.
func (wp *WorkerPool) pushResult(ctx context.Context, workerID string, res *common.ResultTask) error {
	delay := retryDelay
	for {
		err := wp.results.PushResult(ctx, res)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("failed to add result: %w", err)
		}

		slog.Warn("processor: failed to add result", "worker", workerID, "source", res.Source, "error", err, "retry_in", delay)
		if !sleepContext(ctx, delay) {
			return fmt.Errorf("failed to add result: %w", ctx.Err())
		}
		delay = nextDelay(delay)
	}
}

func nextDelay(d time.Duration) time.Duration {
	if d *= 2; d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// sleepContext reports false if ctx ended before d elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
