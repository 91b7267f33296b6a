package evo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"morphogen/internal/fold"
	"morphogen/internal/metrics"
	"morphogen/internal/model"
)

const defaultMaxGenerations = 50

// DefaultSeeds are the primitive accumulators a search starts from.
// list_append is only added when a post-mortem asks for it.
func DefaultSeeds() []model.Accumulator {
	return []model.Accumulator{
		model.Primitive(model.AccSum),
		model.Primitive(model.AccProduct),
		model.Primitive(model.AccMax),
		model.Primitive(model.AccMin),
		model.Primitive(model.AccCount),
		model.Primitive(model.AccSetInsert),
	}
}

// SeedsByName resolves primitive names, e.g. from configuration.
func SeedsByName(names []string) ([]model.Accumulator, error) {
	seeds := make([]model.Accumulator, 0, len(names))
	for _, name := range names {
		acc := model.Primitive(name)
		if err := fold.CheckAccumulator(acc); err != nil {
			return nil, err
		}
		seeds = append(seeds, acc)
	}
	return seeds, nil
}

// Options configures one Synthesize call. Zero values take defaults.
type Options struct {
	// Name for the promoted morphism; "evolved_<fingerprint>" when empty.
	Name   string
	Intent string

	Seeds            []model.Accumulator
	PopulationSize   int
	EliteCount       int
	MaxGenerations   int
	MaxDuration      time.Duration
	CrossoverRate    *float64
	ComplexityLimit  int
	PurityWeight     float64
	DuplicatePenalty float64
	Selection        string
	MutationWeights  map[string]float64
	Workers          int
	Seed             int64

	// Operators resolves MutationWeights; nil means DefaultOperatorSet.
	Operators *OperatorSet

	RunID        string
	DisableRetry bool
	Logger       *zap.Logger
	Now          func() time.Time
}

// FailureReport explains why no candidate reached full fitness.
type FailureReport struct {
	BestFitness      float64    `json:"best_fitness"`
	BestSummary      string     `json:"best_summary"`
	CharacterizedGap Gap        `json:"characterized_gap"`
	Diffs            []CaseDiff `json:"diffs,omitempty"`
}

type SynthesisResult struct {
	Success       bool
	Morphism      *model.Morphism
	FailureReport *FailureReport
	Attempts      int
	RunID         string
	// Gap is the post-mortem that triggered a retry, if any.
	Gap         *Gap
	Best        ScoredAlgebra
	History     []float64
	Diagnostics []model.GenerationDiagnostics
	Lineage     []model.LineageRecord
	Runs        []RunResult
}

// Generations is the total number of generations evaluated across attempts.
func (r SynthesisResult) Generations() int {
	total := 0
	for _, run := range r.Runs {
		total += run.Generations
	}
	return total
}

// Synthesize searches for a fold that reproduces every case. Malformed
// cases fail fast with an error wrapping ErrMalformedTestCases; an
// exhausted budget is a normal unsuccessful result with a failure report.
// When the first attempt fails and the post-mortem names a primitive that
// was not seeded, a second attempt runs with that primitive added.
func Synthesize(ctx context.Context, cases []model.TestCase, opts Options) (SynthesisResult, error) {
	if err := ValidateTestCases(cases); err != nil {
		metrics.ObserveSynthesis(metrics.OutcomeInvalid)
		return SynthesisResult{}, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger = logger.With(zap.String("run_id", runID))

	seeds := opts.Seeds
	if len(seeds) == 0 {
		seeds = DefaultSeeds()
	}
	result := SynthesisResult{RunID: runID}

	run, evaluator, err := runAttempt(ctx, cases, opts, seeds, logger)
	if err != nil {
		return SynthesisResult{}, err
	}
	result.Attempts = 1
	result.Runs = append(result.Runs, run)

	if !run.Success && !opts.DisableRetry {
		gap := CharacterizeGap(run.Best.Algebra, evaluator.Evaluate(run.Best.Algebra), cases)
		result.Gap = &gap
		logger.Info("synthesis attempt failed",
			zap.Float64("best_fitness", run.Best.Fitness),
			zap.String("gap", string(gap.Kind)),
		)
		if gap.Suggested != nil && !containsSeed(seeds, gap.Suggested.Op) {
			metrics.ObserveSynthesisRetry()
			retrySeeds := append(append([]model.Accumulator(nil), seeds...), *gap.Suggested)
			run, evaluator, err = runAttempt(ctx, cases, opts, retrySeeds, logger)
			if err != nil {
				return SynthesisResult{}, err
			}
			result.Attempts = 2
			result.Runs = append(result.Runs, run)
		}
	}

	result.Success = run.Success
	result.Best = run.Best
	result.History = run.BestByGeneration
	result.Diagnostics = run.GenerationDiagnostics
	result.Lineage = run.Lineage

	if run.Success {
		m := promote(run, cases, opts, runID)
		result.Morphism = &m
		metrics.ObserveSynthesis(metrics.OutcomeSuccess)
		logger.Info("synthesis succeeded",
			zap.String("morphism", m.Name),
			zap.String("algebra", run.Best.Algebra.Summary()),
			zap.Int("attempts", result.Attempts),
			zap.Int("generation", run.SolvedGeneration),
		)
		return result, nil
	}

	gap := CharacterizeGap(run.Best.Algebra, evaluator.Evaluate(run.Best.Algebra), cases)
	if result.Gap == nil {
		result.Gap = &gap
	}
	result.FailureReport = &FailureReport{
		BestFitness:      run.Best.Fitness,
		BestSummary:      run.Best.Algebra.Summary(),
		CharacterizedGap: gap,
		Diffs:            gap.Diffs,
	}
	metrics.ObserveSynthesis(metrics.OutcomeFailure)
	logger.Info("synthesis failed",
		zap.Float64("best_fitness", run.Best.Fitness),
		zap.String("gap", string(gap.Kind)),
		zap.Int("attempts", result.Attempts),
		zap.String("stop_reason", run.StopReason),
	)
	return result, nil
}

func runAttempt(ctx context.Context, cases []model.TestCase, opts Options, seeds []model.Accumulator, logger *zap.Logger) (RunResult, Evaluator, error) {
	selector, err := SelectorByName(opts.Selection)
	if err != nil {
		return RunResult{}, Evaluator{}, err
	}
	var policy []WeightedMutation
	switch {
	case len(opts.MutationWeights) > 0:
		ops := opts.Operators
		if ops == nil {
			ops = DefaultOperatorSet()
		}
		policy, err = ops.Policy(opts.MutationWeights)
		if err != nil {
			return RunResult{}, Evaluator{}, err
		}
	case opts.Operators != nil:
		policy = opts.Operators.DefaultPolicy()
	}
	maxGenerations := opts.MaxGenerations
	if maxGenerations == 0 {
		maxGenerations = defaultMaxGenerations
	}

	monitor, err := NewPopulationMonitor(MonitorConfig{
		Seeds:            seeds,
		Cases:            cases,
		MutationPolicy:   policy,
		Selector:         selector,
		PopulationSize:   opts.PopulationSize,
		EliteCount:       opts.EliteCount,
		MaxGenerations:   maxGenerations,
		MaxDuration:      opts.MaxDuration,
		CrossoverRate:    opts.CrossoverRate,
		ComplexityLimit:  opts.ComplexityLimit,
		PurityWeight:     opts.PurityWeight,
		DuplicatePenalty: opts.DuplicatePenalty,
		Workers:          opts.Workers,
		Seed:             opts.Seed,
		Logger:           logger,
		Now:              opts.Now,
	})
	if err != nil {
		return RunResult{}, Evaluator{}, err
	}

	logger.Debug("synthesis attempt started",
		zap.Strings("seeds", seedNames(seeds)),
		zap.Int("cases", len(cases)),
	)
	run, err := monitor.Run(ctx)
	if err != nil {
		return RunResult{}, Evaluator{}, err
	}
	metrics.ObserveSynthesisAttempt(run.Generations)
	return run, monitor.Evaluator(), nil
}

func promote(run RunResult, cases []model.TestCase, opts Options, runID string) model.Morphism {
	best := run.Best.Algebra.Clone()
	name := opts.Name
	if name == "" {
		fp := run.Best.Fingerprint
		if len(fp) > 8 {
			fp = fp[:8]
		}
		name = "evolved_" + fp
	}

	signature := "[Number] → Number"
	if cases[0].Expected.Kind == model.KindList {
		signature = "[Number] → [Number]"
	}

	parents := make([]string, 0, len(best.Fields))
	for _, f := range best.Fields {
		if !containsString(parents, f.Op) {
			parents = append(parents, f.Op)
		}
	}

	return model.Morphism{
		VersionedRecord: model.CurrentVersion(),
		Name:            name,
		Version:         1,
		Signature:       signature,
		Description:     "fold " + best.Summary(),
		Keywords:        synthesizedKeywords(opts.Intent, best),
		Implementation:  model.FoldImpl(best),
		Properties:      model.UnknownProperties(),
		Provenance: model.Provenance{
			Origin:     model.OriginSynthesized,
			Parents:    parents,
			Generation: run.SolvedGeneration,
			RunID:      runID,
		},
	}
}

func synthesizedKeywords(intent string, a model.Algebra) []string {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(intent)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if word != "" {
			set[word] = struct{}{}
		}
	}
	for _, f := range a.Fields {
		set[f.Op] = struct{}{}
	}
	set[a.Finalize.Op] = struct{}{}

	out := make([]string, 0, len(set))
	for word := range set {
		out = append(out, word)
	}
	sort.Strings(out)
	return out
}

func containsSeed(seeds []model.Accumulator, op string) bool {
	for _, s := range seeds {
		if s.Op == op {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, item := range values {
		if item == v {
			return true
		}
	}
	return false
}

func seedNames(seeds []model.Accumulator) []string {
	names := make([]string, len(seeds))
	for i, s := range seeds {
		names[i] = s.String()
	}
	return names
}

// RunRecord summarizes a result for persistence.
func (r SynthesisResult) RunRecord(opts Options, cases int, createdAt time.Time) model.SynthesisRun {
	seeds := opts.Seeds
	if len(seeds) == 0 {
		seeds = DefaultSeeds()
	}
	record := model.SynthesisRun{
		VersionedRecord: model.CurrentVersion(),
		RunID:           r.RunID,
		CreatedAtUTC:    createdAt.UTC().Format(time.RFC3339),
		Seed:            opts.Seed,
		Seeds:           seedNames(seeds),
		Cases:           cases,
		Success:         r.Success,
		Attempts:        r.Attempts,
		Generations:     r.Generations(),
		BestFitness:     r.Best.Fitness,
	}
	if r.Morphism != nil {
		record.MorphismName = r.Morphism.Name
	}
	if r.Gap != nil {
		record.Gap = string(r.Gap.Kind)
	}
	return record
}

func (r FailureReport) String() string {
	return fmt.Sprintf("best fitness %.3f (%s); %s", r.BestFitness, r.BestSummary, r.CharacterizedGap)
}
