package evo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"morphogen/internal/model"
)

func TestPopulationMonitorSolvesMeanInGenerationZero(t *testing.T) {
	monitor, err := NewPopulationMonitor(MonitorConfig{
		Seeds:          DefaultSeeds(),
		Cases:          meanCases(),
		MaxGenerations: 5,
		Seed:           1,
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	result, err := monitor.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Success || result.StopReason != StopSolved {
		t.Fatalf("expected solved run, got %+v", result.StopReason)
	}
	if result.SolvedGeneration != 0 || result.Generations != 1 {
		t.Fatalf("expected solution in generation 0, got generation %d after %d", result.SolvedGeneration, result.Generations)
	}
	if got := result.Best.Algebra.Summary(); got != "div(sum, count)" {
		t.Fatalf("unexpected best algebra: %s", got)
	}
}

func TestPopulationMonitorInitialPopulationCoversSeedPairs(t *testing.T) {
	monitor, err := NewPopulationMonitor(MonitorConfig{
		Seeds:          numericSeeds(),
		Cases:          unreachableCases(),
		PopulationSize: 200,
		MaxGenerations: 1,
		Seed:           1,
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	population, lineage, err := monitor.initialPopulation(context.Background())
	if err != nil {
		t.Fatalf("initial population: %v", err)
	}
	if len(population) != 200 || len(lineage) != 200 {
		t.Fatalf("expected a full generation, got %d algebras and %d lineage records", len(population), len(lineage))
	}

	// 5 seeds x 2 unary finalizers, then 20 ordered pairs x 4 binary finalizers.
	operations := map[string]int{}
	for _, record := range lineage {
		operations[record.Operation]++
	}
	if operations["seed"] != 10 || operations["seed_crossover"] != 80 {
		t.Fatalf("unexpected generation 0 composition: %+v", operations)
	}
}

func TestPopulationMonitorDeterministicForSeed(t *testing.T) {
	run := func() RunResult {
		monitor, err := NewPopulationMonitor(MonitorConfig{
			Seeds:          DefaultSeeds(),
			Cases:          unreachableCases(),
			PopulationSize: 32,
			EliteCount:     4,
			MaxGenerations: 6,
			Workers:        4,
			Seed:           99,
		})
		if err != nil {
			t.Fatalf("new monitor: %v", err)
		}
		result, err := monitor.Run(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return result
	}

	first := run()
	second := run()
	if first.Success {
		t.Fatal("expected unreachable cases to stay unsolved")
	}
	if first.StopReason != StopGenerations || first.Generations != 6 {
		t.Fatalf("expected generation budget exhaustion, got %s after %d", first.StopReason, first.Generations)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("expected identical runs for the same seed (-first +second):\n%s", diff)
	}
}

func TestPopulationMonitorRespectsTimeBudget(t *testing.T) {
	clock := time.Unix(0, 0)
	monitor, err := NewPopulationMonitor(MonitorConfig{
		Seeds:          DefaultSeeds(),
		Cases:          unreachableCases(),
		PopulationSize: 16,
		MaxGenerations: 100,
		MaxDuration:    2 * time.Second,
		Seed:           1,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	result, err := monitor.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Success || result.StopReason != StopDuration {
		t.Fatalf("expected time budget stop, got %s", result.StopReason)
	}
	if result.Generations != 1 {
		t.Fatalf("expected one generation inside the budget, got %d", result.Generations)
	}
}

func TestPopulationMonitorHonorsCancellation(t *testing.T) {
	monitor, err := NewPopulationMonitor(MonitorConfig{
		Seeds:          DefaultSeeds(),
		Cases:          unreachableCases(),
		MaxGenerations: 10,
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := monitor.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPopulationMonitorRecordsDiagnosticsAndLineage(t *testing.T) {
	monitor, err := NewPopulationMonitor(MonitorConfig{
		Seeds:          DefaultSeeds(),
		Cases:          unreachableCases(),
		PopulationSize: 24,
		EliteCount:     2,
		MaxGenerations: 3,
		Seed:           5,
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	result, err := monitor.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.GenerationDiagnostics) != 3 || len(result.BestByGeneration) != 3 {
		t.Fatalf("expected per-generation history, got %d diagnostics", len(result.GenerationDiagnostics))
	}
	for _, diag := range result.GenerationDiagnostics {
		if diag.FingerprintDiversity == 0 || diag.FingerprintDiversity > 24 {
			t.Fatalf("unexpected diversity: %+v", diag)
		}
		if diag.MinFitness > diag.MeanFitness || diag.MeanFitness > diag.BestFitness {
			t.Fatalf("expected min <= mean <= best: %+v", diag)
		}
	}
	// Generation 0 is fully recorded; later generations record only new children.
	if len(result.Lineage) != 24+2*(24-2) {
		t.Fatalf("unexpected lineage length: %d", len(result.Lineage))
	}
	for _, record := range result.Lineage {
		if record.Generation > 0 && len(record.ParentIDs) == 0 {
			t.Fatalf("expected parents for %s", record.AlgebraID)
		}
	}
}

func TestNewPopulationMonitorValidation(t *testing.T) {
	base := MonitorConfig{Seeds: DefaultSeeds(), Cases: meanCases(), MaxGenerations: 1}

	cases := map[string]func(cfg *MonitorConfig){
		"no seeds":        func(cfg *MonitorConfig) { cfg.Seeds = nil },
		"unknown seed":    func(cfg *MonitorConfig) { cfg.Seeds = []model.Accumulator{model.Primitive("xor")} },
		"no generations":  func(cfg *MonitorConfig) { cfg.MaxGenerations = 0 },
		"elite too large": func(cfg *MonitorConfig) { cfg.PopulationSize = 4; cfg.EliteCount = 5 },
		"bad crossover":   func(cfg *MonitorConfig) { cfg.CrossoverRate = Rate(1.5) },
		"bad purity":      func(cfg *MonitorConfig) { cfg.PurityWeight = 2 },
		"zero weights": func(cfg *MonitorConfig) {
			cfg.MutationPolicy = []WeightedMutation{{Operator: PerturbScale{}, Weight: 0}}
		},
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if _, err := NewPopulationMonitor(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	cfg := base
	cfg.Cases = nil
	if _, err := NewPopulationMonitor(cfg); !errors.Is(err, ErrMalformedTestCases) {
		t.Fatalf("expected ErrMalformedTestCases, got %v", err)
	}
}

func TestPopulationMonitorZeroCrossoverRateDisablesCrossover(t *testing.T) {
	monitor, err := NewPopulationMonitor(MonitorConfig{
		Seeds:          DefaultSeeds(),
		Cases:          unreachableCases(),
		PopulationSize: 24,
		EliteCount:     2,
		MaxGenerations: 3,
		CrossoverRate:  Rate(0),
		Seed:           5,
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	if monitor.crossoverRate != 0 {
		t.Fatalf("expected explicit zero crossover rate to be kept, got %v", monitor.crossoverRate)
	}
	result, err := monitor.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, record := range result.Lineage {
		if record.Operation == "crossover" {
			t.Fatalf("expected no crossover children, got %+v", record)
		}
	}
}

func TestPopulationMonitorDefaultsUnsetCrossoverRate(t *testing.T) {
	monitor, err := NewPopulationMonitor(MonitorConfig{Seeds: DefaultSeeds(), Cases: meanCases(), MaxGenerations: 1})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	if monitor.crossoverRate != defaultCrossoverRate {
		t.Fatalf("expected default crossover rate %v, got %v", defaultCrossoverRate, monitor.crossoverRate)
	}
}
