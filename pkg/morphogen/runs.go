package morphogen

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"morphogen/internal/model"
	"morphogen/internal/stats"
)

type RunsRequest struct {
	Limit int
	// Success keeps only successful runs when set.
	Success *bool
}

type RunItem struct {
	RunID            string
	CreatedAtUTC     string
	Name             string
	Seed             int64
	Population       int
	Generations      int
	Attempts         int
	Success          bool
	FinalBestFitness float64
	MorphismName     string
	Gap              string
}

// RunRef selects a run by ID or the most recent one.
type RunRef struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		if req.Success != nil && e.Success != *req.Success {
			continue
		}
		out = append(out, RunItem{
			RunID:            e.RunID,
			CreatedAtUTC:     e.CreatedAtUTC,
			Name:             e.Name,
			Seed:             e.Seed,
			Population:       e.PopulationSize,
			Generations:      e.Generations,
			Attempts:         e.Attempts,
			Success:          e.Success,
			FinalBestFitness: e.FinalBestFitness,
			MorphismName:     e.MorphismName,
			Gap:              e.Gap,
		})
		if len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

// RunSummary aggregates every indexed run and writes run_summary.json next
// to the index.
func (c *Client) RunSummary(_ context.Context) (stats.RunSummary, error) {
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return stats.RunSummary{}, err
	}
	summary := stats.BuildRunSummary(entries)
	if _, err := stats.WriteRunSummary(c.artifactsDir, summary); err != nil {
		return stats.RunSummary{}, err
	}
	return summary, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID, err := c.resolveRunID(RunRef{RunID: req.RunID, Latest: req.Latest}, "export")
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// SynthesisRun returns the stored summary of one run.
func (c *Client) SynthesisRun(ctx context.Context, ref RunRef) (model.SynthesisRun, error) {
	if err := c.ensureReady(ctx); err != nil {
		return model.SynthesisRun{}, err
	}
	runID, err := c.resolveRunID(ref, "run")
	if err != nil {
		return model.SynthesisRun{}, err
	}
	run, ok, err := c.store.GetSynthesisRun(ctx, runID)
	if err != nil {
		return model.SynthesisRun{}, err
	}
	if !ok {
		return model.SynthesisRun{}, fmt.Errorf("run not found for run id: %s", runID)
	}
	return run, nil
}

// Lineage, FitnessHistory and Diagnostics read the store first and fall
// back to the run's artifact files, which outlive a memory store.
func (c *Client) Lineage(ctx context.Context, ref RunRef) ([]model.LineageRecord, error) {
	if err := c.checkRef(ctx, ref); err != nil {
		return nil, err
	}
	runID, err := c.resolveRunID(ref, "lineage")
	if err != nil {
		return nil, err
	}
	lineage, ok, err := c.store.GetLineage(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		lineage, ok, err = stats.ReadLineage(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("lineage not found for run id: %s", runID)
	}
	if ref.Limit > 0 && len(lineage) > ref.Limit {
		lineage = lineage[:ref.Limit]
	}
	return lineage, nil
}

func (c *Client) FitnessHistory(ctx context.Context, ref RunRef) ([]float64, error) {
	if err := c.checkRef(ctx, ref); err != nil {
		return nil, err
	}
	runID, err := c.resolveRunID(ref, "fitness history")
	if err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		var stored stats.FitnessHistory
		stored, ok, err = stats.ReadFitnessHistory(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		history = stored.BestByGeneration
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if ref.Limit > 0 && len(history) > ref.Limit {
		history = history[:ref.Limit]
	}
	return history, nil
}

func (c *Client) Diagnostics(ctx context.Context, ref RunRef) ([]model.GenerationDiagnostics, error) {
	if err := c.checkRef(ctx, ref); err != nil {
		return nil, err
	}
	runID, err := c.resolveRunID(ref, "diagnostics")
	if err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		diagnostics, ok, err = stats.ReadGenerationDiagnostics(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	if ref.Limit > 0 && len(diagnostics) > ref.Limit {
		diagnostics = diagnostics[:ref.Limit]
	}
	return diagnostics, nil
}

func (c *Client) checkRef(ctx context.Context, ref RunRef) error {
	if ref.RunID != "" && ref.Latest {
		return errors.New("use either run id or latest")
	}
	if ref.Limit < 0 {
		return errors.New("limit must be >= 0")
	}
	return c.ensureReady(ctx)
}

func (c *Client) resolveRunID(ref RunRef, what string) (string, error) {
	if !ref.Latest {
		if ref.RunID == "" {
			return "", fmt.Errorf("%s requires run id or latest", what)
		}
		return ref.RunID, nil
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}
