// Package stats writes per-run synthesis artifacts to disk and keeps a run
// index next to them.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"morphogen/internal/evo"
	"morphogen/internal/model"
)

const (
	runIndexFile       = "run_index.json"
	configFile         = "config.json"
	casesFile          = "cases.json"
	fitnessHistoryFile = "fitness_history.json"
	diagnosticsFile    = "generation_diagnostics.json"
	lineageFile        = "lineage.json"
	bestFile           = "best.json"
	morphismFile       = "morphism.json"
	failureReportFile  = "failure_report.json"
	fitnessSeriesFile  = "fitness_series.csv"
)

type RunConfig struct {
	RunID            string             `json:"run_id"`
	Name             string             `json:"name,omitempty"`
	Intent           string             `json:"intent,omitempty"`
	Seeds            []string           `json:"seeds"`
	Cases            int                `json:"cases"`
	PopulationSize   int                `json:"population_size"`
	EliteCount       int                `json:"elite_count"`
	MaxGenerations   int                `json:"max_generations"`
	MaxDurationMS    int64              `json:"max_duration_ms,omitempty"`
	CrossoverRate    float64            `json:"crossover_rate"`
	ComplexityLimit  int                `json:"complexity_limit"`
	PurityWeight     float64            `json:"purity_weight"`
	DuplicatePenalty float64            `json:"duplicate_penalty"`
	Selection        string             `json:"selection"`
	MutationWeights  map[string]float64 `json:"mutation_weights,omitempty"`
	Workers          int                `json:"workers"`
	Seed             int64              `json:"seed"`
	DisableRetry     bool               `json:"disable_retry,omitempty"`
}

// RunConfigFromOptions records the options a run was started with.
func RunConfigFromOptions(runID string, opts evo.Options, cases int) RunConfig {
	seeds := make([]string, len(opts.Seeds))
	for i, seed := range opts.Seeds {
		seeds[i] = seed.String()
	}
	var weights map[string]float64
	if len(opts.MutationWeights) > 0 {
		weights = make(map[string]float64, len(opts.MutationWeights))
		for name, w := range opts.MutationWeights {
			weights[name] = w
		}
	}
	return RunConfig{
		RunID:            runID,
		Name:             opts.Name,
		Intent:           opts.Intent,
		Seeds:            seeds,
		Cases:            cases,
		PopulationSize:   opts.PopulationSize,
		EliteCount:       opts.EliteCount,
		MaxGenerations:   opts.MaxGenerations,
		MaxDurationMS:    opts.MaxDuration.Milliseconds(),
		CrossoverRate:    evo.EffectiveCrossoverRate(opts.CrossoverRate),
		ComplexityLimit:  opts.ComplexityLimit,
		PurityWeight:     opts.PurityWeight,
		DuplicatePenalty: opts.DuplicatePenalty,
		Selection:        opts.Selection,
		MutationWeights:  weights,
		Workers:          opts.Workers,
		Seed:             opts.Seed,
		DisableRetry:     opts.DisableRetry,
	}
}

type FitnessHistory struct {
	BestByGeneration []float64 `json:"best_by_generation"`
	FinalBestFitness float64   `json:"final_best_fitness"`
}

type RunArtifacts struct {
	Config                RunConfig                     `json:"config"`
	Cases                 []model.TestCase              `json:"cases"`
	BestByGeneration      []float64                     `json:"best_by_generation"`
	GenerationDiagnostics []model.GenerationDiagnostics `json:"generation_diagnostics,omitempty"`
	FinalBestFitness      float64                       `json:"final_best_fitness"`
	Best                  evo.ScoredAlgebra             `json:"best"`
	Lineage               []model.LineageRecord         `json:"lineage"`
	Morphism              *model.Morphism               `json:"morphism,omitempty"`
	FailureReport         *evo.FailureReport            `json:"failure_report,omitempty"`
	Success               bool                          `json:"success"`
	Attempts              int                           `json:"attempts"`
	Generations           int                           `json:"generations"`
}

// NewRunArtifacts collects everything worth keeping from one synthesis.
func NewRunArtifacts(opts evo.Options, cases []model.TestCase, result evo.SynthesisResult) RunArtifacts {
	return RunArtifacts{
		Config:                RunConfigFromOptions(result.RunID, opts, len(cases)),
		Cases:                 append([]model.TestCase(nil), cases...),
		BestByGeneration:      append([]float64(nil), result.History...),
		GenerationDiagnostics: append([]model.GenerationDiagnostics(nil), result.Diagnostics...),
		FinalBestFitness:      result.Best.Fitness,
		Best:                  result.Best,
		Lineage:               append([]model.LineageRecord(nil), result.Lineage...),
		Morphism:              result.Morphism,
		FailureReport:         result.FailureReport,
		Success:               result.Success,
		Attempts:              result.Attempts,
		Generations:           result.Generations(),
	}
}

// IndexEntry summarizes the artifacts for the run index.
func (a RunArtifacts) IndexEntry(createdAt time.Time) RunIndexEntry {
	entry := RunIndexEntry{
		RunID:            a.Config.RunID,
		Name:             a.Config.Name,
		Intent:           a.Config.Intent,
		PopulationSize:   a.Config.PopulationSize,
		Generations:      a.Generations,
		Seed:             a.Config.Seed,
		Workers:          a.Config.Workers,
		EliteCount:       a.Config.EliteCount,
		Success:          a.Success,
		Attempts:         a.Attempts,
		FinalBestFitness: a.FinalBestFitness,
		CreatedAtUTC:     createdAt.UTC().Format(time.RFC3339),
	}
	if a.Morphism != nil {
		entry.MorphismName = a.Morphism.Name
	}
	if a.FailureReport != nil {
		entry.Gap = string(a.FailureReport.CharacterizedGap.Kind)
	}
	return entry
}

type RunIndexEntry struct {
	RunID            string  `json:"run_id"`
	Name             string  `json:"name,omitempty"`
	Intent           string  `json:"intent,omitempty"`
	PopulationSize   int     `json:"population_size"`
	Generations      int     `json:"generations"`
	Seed             int64   `json:"seed"`
	Workers          int     `json:"workers"`
	EliteCount       int     `json:"elite_count"`
	Success          bool    `json:"success"`
	Attempts         int     `json:"attempts"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	MorphismName     string  `json:"morphism_name,omitempty"`
	Gap              string  `json:"gap,omitempty"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	files := []struct {
		name  string
		value any
	}{
		{configFile, artifacts.Config},
		{casesFile, artifacts.Cases},
		{fitnessHistoryFile, FitnessHistory{BestByGeneration: artifacts.BestByGeneration, FinalBestFitness: artifacts.FinalBestFitness}},
		{diagnosticsFile, artifacts.GenerationDiagnostics},
		{lineageFile, artifacts.Lineage},
		{bestFile, artifacts.Best},
	}
	for _, f := range files {
		if err := writeJSON(filepath.Join(runDir, f.name), f.value); err != nil {
			return "", err
		}
	}
	if artifacts.Morphism != nil {
		if err := writeJSON(filepath.Join(runDir, morphismFile), artifacts.Morphism); err != nil {
			return "", err
		}
	}
	if artifacts.FailureReport != nil {
		if err := writeJSON(filepath.Join(runDir, failureReportFile), artifacts.FailureReport); err != nil {
			return "", err
		}
	}
	if err := WriteFitnessSeries(runDir, artifacts.BestByGeneration); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Later appends first for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory's artifacts into outDir/runID.
// Files that only some runs produce are copied when present.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	required := []string{configFile, casesFile, fitnessHistoryFile, diagnosticsFile, lineageFile, bestFile}
	for _, file := range required {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{morphismFile, failureReportFile, fitnessSeriesFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, configFile), cfg)
}

func ReadCases(baseDir, runID string) ([]model.TestCase, bool, error) {
	var cases []model.TestCase
	ok, err := readJSON(filepath.Join(baseDir, runID, casesFile), &cases)
	return cases, ok, err
}

func ReadFitnessHistory(baseDir, runID string) (FitnessHistory, bool, error) {
	var history FitnessHistory
	ok, err := readJSON(filepath.Join(baseDir, runID, fitnessHistoryFile), &history)
	return history, ok, err
}

func ReadGenerationDiagnostics(baseDir, runID string) ([]model.GenerationDiagnostics, bool, error) {
	var diagnostics []model.GenerationDiagnostics
	ok, err := readJSON(filepath.Join(baseDir, runID, diagnosticsFile), &diagnostics)
	return diagnostics, ok, err
}

func ReadLineage(baseDir, runID string) ([]model.LineageRecord, bool, error) {
	var lineage []model.LineageRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, lineageFile), &lineage)
	return lineage, ok, err
}

func ReadMorphism(baseDir, runID string) (model.Morphism, bool, error) {
	var m model.Morphism
	ok, err := readJSON(filepath.Join(baseDir, runID, morphismFile), &m)
	return m, ok, err
}

func ReadFailureReport(baseDir, runID string) (evo.FailureReport, bool, error) {
	var report evo.FailureReport
	ok, err := readJSON(filepath.Join(baseDir, runID, failureReportFile), &report)
	return report, ok, err
}

func WriteFitnessSeries(runDir string, bestByGeneration []float64) error {
	path := filepath.Join(runDir, fitnessSeriesFile)
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "best_fitness"}); err != nil {
		return err
	}
	for i, best := range bestByGeneration {
		if err := writer.Write([]string{
			strconv.Itoa(i),
			strconv.FormatFloat(best, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadFitnessSeries(baseDir, runID string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, runID, fitnessSeriesFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("fitness series header must have at least 2 columns")
	}

	series := make([]float64, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("fitness series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
