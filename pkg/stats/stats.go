package stats

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go-boxblur/pkg/common"
	"go-boxblur/pkg/pipeline"
)

// PerformanceData holds timing and metadata for one run
type PerformanceData struct {
	Mode            string
	ImagesProcessed int
	ImagesSaved     int
	KernelSize      int
	Workers         int
	TotalTime       float64
	AverageTime     float64
	TotalBlurTime   float64
	TotalSaveTime   float64
	Failures        []common.Failure
	InputPaths      []string
	OutputPaths     []string
	Timestamp       time.Time
}

// FromReport converts a pipeline report into a results entry
func FromReport(r *pipeline.Report) PerformanceData {
	data := PerformanceData{
		Mode:            r.Mode,
		ImagesProcessed: r.Processed,
		ImagesSaved:     r.Saved,
		KernelSize:      2*common.BLUR_RADIUS + 1,
		Workers:         r.Workers,
		TotalTime:       r.Elapsed.Seconds(),
		TotalBlurTime:   r.BlurTime.Seconds(),
		TotalSaveTime:   r.SaveTime.Seconds(),
		Failures:        r.Failures(),
		InputPaths:      r.InputPaths,
		OutputPaths:     r.OutputPaths,
		Timestamp:       r.StartedAt,
	}
	if r.Processed > 0 {
		data.AverageTime = data.TotalTime / float64(r.Processed)
	}
	return data
}

// WritePerformanceResults writes a single combined results file into dir
// and returns its path.
func WritePerformanceResults(dir string, results []PerformanceData) (string, error) {
	return WritePerformanceResultsWithPrefix(dir, results, "boxblur_")
}

// WritePerformanceResultsWithPrefix writes results file with custom prefix
func WritePerformanceResultsWithPrefix(dir string, results []PerformanceData, prefix string) (string, error) {
	if len(results) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create stats directory: %w", err)
	}

	// Use timestamp from first result
	timestamp := results[0].Timestamp.Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(dir, fmt.Sprintf("%s%s.txt", prefix, timestamp))

	file, err := os.Create(resultsFile)
	if err != nil {
		return "", fmt.Errorf("failed to create results file: %w", err)
	}
	defer file.Close()

	if err := writeResults(file, results); err != nil {
		return "", fmt.Errorf("failed to write results file: %w", err)
	}

	slog.Info("stats: results written", "path", resultsFile, "runs", len(results))
	return resultsFile, nil
}

func writeResults(w io.Writer, results []PerformanceData) error {
	fmt.Fprintf(w, "=== Combined Box Blur Results ===\n")
	fmt.Fprintf(w, "Timestamp: %s\n\n", results[0].Timestamp.Format("2006-01-02 15:04:05"))

	for _, result := range results {
		fmt.Fprintf(w, "=== %s Results ===\n", result.Mode)
		fmt.Fprintf(w, "Images processed: %d\n", result.ImagesProcessed)
		fmt.Fprintf(w, "Images saved: %d\n", result.ImagesSaved)
		fmt.Fprintf(w, "Kernel size: %d\n", result.KernelSize)
		fmt.Fprintf(w, "Workers: %d\n", result.Workers)
		fmt.Fprintf(w, "Total blur time: %.2fs\n", result.TotalBlurTime)
		fmt.Fprintf(w, "Total execution time: %.2fs\n", result.TotalTime)
		fmt.Fprintf(w, "Average time per image: %.2fs\n", result.AverageTime)
		fmt.Fprintf(w, "Total save time (not in execution time): %.2fs\n", result.TotalSaveTime)

		if len(result.Failures) > 0 {
			fmt.Fprintf(w, "\nFailures:\n")
			for _, f := range result.Failures {
				fmt.Fprintf(w, "  - %s\n", f.Error())
			}
		}

		fmt.Fprintf(w, "\nInput files:\n")
		for i, path := range result.InputPaths {
			fmt.Fprintf(w, "  %d. %s\n", i+1, path)
		}

		fmt.Fprintf(w, "\nOutput files:\n")
		for i, path := range result.OutputPaths {
			fmt.Fprintf(w, "  %d. %s\n", i+1, path)
		}

		if _, err := fmt.Fprintf(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}
