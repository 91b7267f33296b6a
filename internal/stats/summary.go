package stats

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

const runSummaryFile = "run_summary.json"

// RunSummary aggregates a set of indexed runs. Generation statistics cover
// successful runs only.
type RunSummary struct {
	GeneratedAt    string          `json:"generated_at_utc"`
	TotalRuns      int             `json:"total_runs"`
	SuccessRuns    int             `json:"success_runs"`
	SuccessRate    float64         `json:"success_rate"`
	RetriedRuns    int             `json:"retried_runs"`
	AvgGenerations float64         `json:"avg_generations"`
	StdGenerations float64         `json:"std_generations"`
	MinGenerations float64         `json:"min_generations"`
	MaxGenerations float64         `json:"max_generations"`
	MeanFinalBest  float64         `json:"mean_final_best"`
	GapsByKind     map[string]int  `json:"gaps_by_kind,omitempty"`
	Runs           []RunIndexEntry `json:"runs"`
}

func BuildRunSummary(entries []RunIndexEntry) RunSummary {
	summary := RunSummary{
		TotalRuns: len(entries),
		Runs:      append([]RunIndexEntry(nil), entries...),
	}
	successGenerations := make([]float64, 0, len(entries))
	finalBest := make([]float64, 0, len(entries))
	for _, entry := range entries {
		finalBest = append(finalBest, entry.FinalBestFitness)
		if entry.Attempts > 1 {
			summary.RetriedRuns++
		}
		if entry.Success {
			summary.SuccessRuns++
			successGenerations = append(successGenerations, float64(entry.Generations))
		}
		if entry.Gap != "" {
			if summary.GapsByKind == nil {
				summary.GapsByKind = make(map[string]int)
			}
			summary.GapsByKind[entry.Gap]++
		}
	}
	if summary.TotalRuns > 0 {
		summary.SuccessRate = float64(summary.SuccessRuns) / float64(summary.TotalRuns)
		summary.MeanFinalBest = mean(finalBest)
	}
	if len(successGenerations) > 0 {
		summary.AvgGenerations = mean(successGenerations)
		summary.StdGenerations = stddev(successGenerations)
		summary.MinGenerations = successGenerations[0]
		summary.MaxGenerations = successGenerations[0]
		for _, value := range successGenerations[1:] {
			if value < summary.MinGenerations {
				summary.MinGenerations = value
			}
			if value > summary.MaxGenerations {
				summary.MaxGenerations = value
			}
		}
	}
	return summary
}

func WriteRunSummary(baseDir string, summary RunSummary) (string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", err
	}
	if summary.GeneratedAt == "" {
		summary.GeneratedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	path := filepath.Join(baseDir, runSummaryFile)
	if err := writeJSON(path, summary); err != nil {
		return "", fmt.Errorf("write run summary: %w", err)
	}
	return path, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// stddev is the population standard deviation.
func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	acc := 0.0
	for _, v := range values {
		acc += (v - m) * (v - m)
	}
	return math.Sqrt(acc / float64(len(values)))
}
