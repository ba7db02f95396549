package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go-boxblur/pkg/common"
)

type Encoder interface {
	Encode(path string, task *common.ImageTask, quality int) error
}

// ResultSource is drained without blocking once every worker has exited.
type ResultSource interface {
	TryPopResult() (*common.ResultTask, bool)
}

// BlockingResultSource is used when workers live in other processes and
// the only completion signal is the number of results received.
type BlockingResultSource interface {
	PopResult(ctx context.Context) (*common.ResultTask, error)
}

// Output summarises what the assembler wrote.
type Output struct {
	Saved       int
	OutputPaths []string
	Failures    []common.Failure
	SaveTime    time.Duration

	// ProcessFailures are results a worker could not blur. They take no
	// output name.
	ProcessFailures []common.Failure

	// ProcessTime sums the workers' blur time over every result received.
	ProcessTime time.Duration
}

// Assembler writes results to OutputDir/fmt.Sprintf(pattern, n) where n
// counts results in the order they are drained, starting at 1. The name
// does not depend on which source produced the result.
type Assembler struct {
	encoder   Encoder
	outputDir string
	pattern   string
	quality   int

	mutex   sync.Mutex
	counter int
	output  Output
}

func NewAssembler(encoder Encoder, outputDir, pattern string, quality int) *Assembler {
	return &Assembler{
		encoder:   encoder,
		outputDir: outputDir,
		pattern:   pattern,
		quality:   quality,
	}
}

// NextPath reserves the next counter-based output path.
func (a *Assembler) NextPath() string {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.counter++
	return filepath.Join(a.outputDir, fmt.Sprintf(a.pattern, a.counter))
}

// Save encodes one image to the next output path. An encode failure is
// recorded and the image is dropped; it is never retried.
func (a *Assembler) Save(task *common.ImageTask) error {
	path := a.NextPath()
	startTime := time.Now()
	err := a.encoder.Encode(path, task, a.quality)
	elapsed := time.Since(startTime)

	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.output.SaveTime += elapsed

	if err != nil {
		slog.Warn("assembler: failed to save image", "path", path, "source", task.Source, "error", err)
		a.output.Failures = append(a.output.Failures, common.Failure{Stage: "encode", Path: path, Err: err})
		return err
	}

	a.output.Saved++
	a.output.OutputPaths = append(a.output.OutputPaths, path)
	slog.Info("assembler: saved", "path", path, "source", task.Source)
	return nil
}

// Drain saves everything currently in src until it reports empty.
func (a *Assembler) Drain(src ResultSource) int {
	n := 0
	for {
		res, ok := src.TryPopResult()
		if !ok {
			return n
		}
		a.saveResult(res)
		n++
	}
}

// Receive pops exactly expected results from src, saving each. Failed
// results count towards expected.
func (a *Assembler) Receive(ctx context.Context, src BlockingResultSource, expected int) (int, error) {
	for n := 0; n < expected; n++ {
		res, err := src.PopResult(ctx)
		if err != nil {
			return n, fmt.Errorf("received %d of %d results: %w", n, expected, err)
		}
		a.saveResult(res)

		if (n+1)%10 == 0 {
			slog.Info("assembler: progress", "received", n+1, "expected", expected)
		}
	}
	return expected, nil
}

func (a *Assembler) saveResult(res *common.ResultTask) {
	a.mutex.Lock()
	a.output.ProcessTime += res.ProcessTime
	if res.Failed() {
		slog.Warn("assembler: worker failed image", "source", res.Source, "worker", res.WorkerID, "error", res.Err)
		a.output.ProcessFailures = append(a.output.ProcessFailures, common.Failure{
			Stage: "process",
			Path:  res.Source,
			Err:   fmt.Errorf("%w: %s", common.ErrProcess, res.Err),
		})
		a.mutex.Unlock()
		return
	}
	a.mutex.Unlock()

	_ = a.Save(&res.ImageTask)
}

func (a *Assembler) Output() Output {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	out := a.output
	out.OutputPaths = append([]string(nil), a.output.OutputPaths...)
	out.Failures = append([]common.Failure(nil), a.output.Failures...)
	out.ProcessFailures = append([]common.Failure(nil), a.output.ProcessFailures...)
	return out
}
