package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"morphogen/internal/fold"
	"morphogen/internal/model"
)

const (
	defaultPopulationSize = 128
	defaultEliteCount     = 8
	defaultCrossoverRate  = 0.4
	maxChildAttempts      = 8
)

// Stop reasons reported in RunResult.
const (
	StopSolved      = "solved"
	StopGenerations = "generation_budget_exhausted"
	StopDuration    = "time_budget_exhausted"
)

type ScoredAlgebra struct {
	Algebra     model.Algebra `json:"algebra"`
	Fitness     float64       `json:"fitness"`
	PassRate    float64       `json:"pass_rate"`
	Complexity  int           `json:"complexity"`
	Gated       bool          `json:"gated,omitempty"`
	Duplicate   bool          `json:"duplicate,omitempty"`
	Fingerprint string        `json:"fingerprint"`
}

type RunResult struct {
	Success               bool
	StopReason            string
	Generations           int
	SolvedGeneration      int
	Best                  ScoredAlgebra
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	FinalPopulation       []ScoredAlgebra
	Lineage               []model.LineageRecord
}

type MonitorConfig struct {
	Seeds            []model.Accumulator
	Cases            []model.TestCase
	MutationPolicy   []WeightedMutation
	Selector         Selector
	Postprocessor    FitnessPostprocessor
	PopulationSize   int
	EliteCount       int
	MaxGenerations   int
	MaxDuration      time.Duration
	CrossoverRate    *float64
	ComplexityLimit  int
	PurityWeight     float64
	DuplicatePenalty float64
	Workers          int
	Seed             int64
	Logger           *zap.Logger
	Now              func() time.Time
}

// PopulationMonitor runs one generational search attempt.
type PopulationMonitor struct {
	cfg           MonitorConfig
	rng           *rand.Rand
	evaluator     Evaluator
	crossoverRate float64
}

// Rate returns a pointer to v for the optional rate fields of Options and
// MonitorConfig.
func Rate(v float64) *float64 {
	return &v
}

// EffectiveCrossoverRate resolves an optional crossover rate: nil takes the
// default, an explicit 0 disables crossover.
func EffectiveCrossoverRate(rate *float64) float64 {
	if rate == nil {
		return defaultCrossoverRate
	}
	return *rate
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if len(cfg.Seeds) == 0 {
		return nil, fmt.Errorf("at least one seed primitive is required")
	}
	for i, seed := range cfg.Seeds {
		if err := fold.CheckAccumulator(seed); err != nil {
			return nil, fmt.Errorf("seed %d: %w", i, err)
		}
	}
	if err := ValidateTestCases(cfg.Cases); err != nil {
		return nil, err
	}
	if len(cfg.MutationPolicy) == 0 {
		cfg.MutationPolicy = DefaultMutationPolicy()
	}
	positivePolicyWeight := false
	for i, item := range cfg.MutationPolicy {
		if item.Operator == nil {
			return nil, fmt.Errorf("mutation policy operator is required at index %d", i)
		}
		if item.Weight < 0 {
			return nil, fmt.Errorf("mutation policy weight must be >= 0 at index %d", i)
		}
		if item.Weight > 0 {
			positivePolicyWeight = true
		}
	}
	if !positivePolicyWeight {
		return nil, fmt.Errorf("mutation policy requires at least one positive weight")
	}
	if cfg.PopulationSize == 0 {
		cfg.PopulationSize = defaultPopulationSize
	}
	if cfg.PopulationSize < 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.EliteCount == 0 {
		cfg.EliteCount = defaultEliteCount
		if cfg.EliteCount > cfg.PopulationSize {
			cfg.EliteCount = cfg.PopulationSize
		}
	}
	if cfg.EliteCount < 0 || cfg.EliteCount > cfg.PopulationSize {
		return nil, fmt.Errorf("elite count must be in [1, population size]")
	}
	if cfg.MaxGenerations <= 0 {
		return nil, fmt.Errorf("max generations must be > 0")
	}
	if cfg.MaxDuration < 0 {
		return nil, fmt.Errorf("max duration must be >= 0")
	}
	crossoverRate := EffectiveCrossoverRate(cfg.CrossoverRate)
	if crossoverRate < 0 || crossoverRate > 1 {
		return nil, fmt.Errorf("crossover rate must be in [0, 1]")
	}
	if cfg.ComplexityLimit <= 0 {
		cfg.ComplexityLimit = DefaultComplexityLimit
	}
	if cfg.PurityWeight == 0 {
		cfg.PurityWeight = defaultPurityWeight
	}
	if cfg.PurityWeight < 0 || cfg.PurityWeight > 1 {
		return nil, fmt.Errorf("purity weight must be in [0, 1]")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Selector == nil {
		cfg.Selector = TournamentSelector{}
	}
	if cfg.Postprocessor == nil {
		cfg.Postprocessor = DuplicatePenaltyPostprocessor{Penalty: cfg.DuplicatePenalty}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &PopulationMonitor{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		evaluator: Evaluator{
			Cases:           cfg.Cases,
			ComplexityLimit: cfg.ComplexityLimit,
			PurityWeight:    cfg.PurityWeight,
		},
		crossoverRate: crossoverRate,
	}, nil
}

func (m *PopulationMonitor) Evaluator() Evaluator {
	return m.evaluator
}

func (m *PopulationMonitor) Run(ctx context.Context) (RunResult, error) {
	started := m.cfg.Now()
	population, lineage, err := m.initialPopulation(ctx)
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{
		StopReason:            StopGenerations,
		BestByGeneration:      make([]float64, 0, m.cfg.MaxGenerations),
		GenerationDiagnostics: make([]model.GenerationDiagnostics, 0, m.cfg.MaxGenerations),
		Lineage:               lineage,
	}

	var scored []ScoredAlgebra
	for gen := 0; gen < m.cfg.MaxGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		if m.cfg.MaxDuration > 0 && m.cfg.Now().Sub(started) >= m.cfg.MaxDuration {
			result.StopReason = StopDuration
			break
		}

		scored, err = m.evaluatePopulation(ctx, population)
		if err != nil {
			return RunResult{}, err
		}
		scored = m.cfg.Postprocessor.Process(scored)
		rankScored(scored)

		result.Generations = gen + 1
		result.BestByGeneration = append(result.BestByGeneration, scored[0].Fitness)
		diag := summarizeGeneration(scored, gen)
		result.GenerationDiagnostics = append(result.GenerationDiagnostics, diag)
		m.cfg.Logger.Debug("generation evaluated",
			zap.Int("generation", gen),
			zap.Float64("best_fitness", diag.BestFitness),
			zap.Float64("mean_fitness", diag.MeanFitness),
			zap.Int("diversity", diag.FingerprintDiversity),
			zap.Int("gated", diag.GatedCount),
			zap.String("best", scored[0].Algebra.Summary()),
		)

		if scored[0].Fitness >= 1 {
			result.Success = true
			result.StopReason = StopSolved
			result.SolvedGeneration = gen
			break
		}
		if gen == m.cfg.MaxGenerations-1 {
			break
		}

		var generationLineage []model.LineageRecord
		population, generationLineage, err = m.nextGeneration(ctx, scored, gen)
		if err != nil {
			return RunResult{}, err
		}
		result.Lineage = append(result.Lineage, generationLineage...)
	}

	if len(scored) > 0 {
		result.Best = scored[0]
		result.FinalPopulation = scored
	}
	return result, nil
}

// initialPopulation builds generation 0: every seed with every finalize it
// supports, then every ordered pair of numeric seeds with every binary
// finalize. Pairs are shuffled and truncated when the population is too
// small and mutants fill any remaining slots.
func (m *PopulationMonitor) initialPopulation(ctx context.Context) ([]model.Algebra, []model.LineageRecord, error) {
	version := model.CurrentVersion()

	type pending struct {
		algebra   model.Algebra
		operation string
	}

	var singles []pending
	for _, seed := range m.cfg.Seeds {
		fields := []model.Accumulator{seed}
		for _, fin := range fold.FinalizeOptions(fields) {
			singles = append(singles, pending{
				algebra:   model.Algebra{VersionedRecord: version, Fields: fields, Finalize: fin},
				operation: "seed",
			})
		}
	}
	var pairs []pending
	for i, left := range m.cfg.Seeds {
		for j, right := range m.cfg.Seeds {
			if i == j || left.Collects() || right.Collects() {
				continue
			}
			fields := []model.Accumulator{left, right}
			for _, fin := range fold.FinalizeOptions(fields) {
				pairs = append(pairs, pending{
					algebra:   model.Algebra{VersionedRecord: version, Fields: fields, Finalize: fin},
					operation: "seed_crossover",
				})
			}
		}
	}

	size := m.cfg.PopulationSize
	items := singles
	if len(items) > size {
		items = items[:size]
	}
	if room := size - len(items); room > 0 && len(pairs) > 0 {
		if len(pairs) > room {
			m.rng.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })
			pairs = pairs[:room]
		}
		items = append(items, pairs...)
	}

	population := make([]model.Algebra, 0, size)
	lineage := make([]model.LineageRecord, 0, size)
	for _, item := range items {
		a := item.algebra.Clone()
		a.ID = fmt.Sprintf("g0-%d", len(population))
		population = append(population, a)
		lineage = append(lineage, lineageFor(a, nil, 0, item.operation))
	}

	base := len(population)
	for len(population) < size {
		parent := population[m.rng.Intn(base)]
		child, opName, err := m.mutate(ctx, parent)
		if err != nil {
			return nil, nil, err
		}
		child.ID = fmt.Sprintf("g0-%d", len(population))
		population = append(population, child)
		lineage = append(lineage, lineageFor(child, []string{parent.ID}, 0, opName))
	}
	return population, lineage, nil
}

func (m *PopulationMonitor) evaluatePopulation(ctx context.Context, population []model.Algebra) ([]ScoredAlgebra, error) {
	scored := make([]ScoredAlgebra, len(population))
	firstByFingerprint := make(map[string]int, len(population))
	unique := make([]int, 0, len(population))
	for i, a := range population {
		fp := ComputeAlgebraSignature(a).Fingerprint
		scored[i] = ScoredAlgebra{Algebra: a, Fingerprint: fp}
		if _, ok := firstByFingerprint[fp]; !ok {
			firstByFingerprint[fp] = i
			unique = append(unique, i)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for _, idx := range unique {
		idx := idx
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			eval := m.evaluator.Evaluate(scored[idx].Algebra)
			scored[idx].Fitness = eval.Fitness
			scored[idx].PassRate = eval.PassRate
			scored[idx].Complexity = eval.Complexity
			scored[idx].Gated = eval.Gated
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Structural duplicates reuse the first copy's evaluation.
	for i := range scored {
		first := firstByFingerprint[scored[i].Fingerprint]
		if first == i {
			continue
		}
		scored[i].Fitness = scored[first].Fitness
		scored[i].PassRate = scored[first].PassRate
		scored[i].Complexity = scored[first].Complexity
		scored[i].Gated = scored[first].Gated
	}
	return scored, nil
}

func rankScored(scored []ScoredAlgebra) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Fitness != scored[j].Fitness {
			return scored[i].Fitness > scored[j].Fitness
		}
		if scored[i].Complexity != scored[j].Complexity {
			return scored[i].Complexity < scored[j].Complexity
		}
		// Constant-space accumulators win ties over collecting ones.
		if ci, cj := collectingFields(scored[i].Algebra), collectingFields(scored[j].Algebra); ci != cj {
			return ci < cj
		}
		if scored[i].Fingerprint != scored[j].Fingerprint {
			return scored[i].Fingerprint < scored[j].Fingerprint
		}
		return scored[i].Algebra.ID < scored[j].Algebra.ID
	})
}

func collectingFields(a model.Algebra) int {
	n := 0
	for _, f := range a.Fields {
		if f.Collects() {
			n++
		}
	}
	return n
}

func (m *PopulationMonitor) nextGeneration(ctx context.Context, ranked []ScoredAlgebra, generation int) ([]model.Algebra, []model.LineageRecord, error) {
	size := m.cfg.PopulationSize
	next := make([]model.Algebra, 0, size)
	lineage := make([]model.LineageRecord, 0, size)

	keptFingerprints := make(map[string]struct{}, m.cfg.EliteCount)
	for _, item := range ranked {
		if len(next) >= m.cfg.EliteCount {
			break
		}
		if _, ok := keptFingerprints[item.Fingerprint]; ok {
			continue
		}
		keptFingerprints[item.Fingerprint] = struct{}{}
		next = append(next, item.Algebra.Clone())
	}

	for len(next) < size {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		id := fmt.Sprintf("g%d-%d", generation+1, len(next))

		if m.rng.Float64() < m.crossoverRate {
			left, err := m.cfg.Selector.PickParent(m.rng, ranked, m.cfg.EliteCount)
			if err != nil {
				return nil, nil, err
			}
			right, err := m.cfg.Selector.PickParent(m.rng, ranked, m.cfg.EliteCount)
			if err != nil {
				return nil, nil, err
			}
			child, err := Crossover(m.rng, left, right)
			if err != nil {
				return nil, nil, err
			}
			child.ID = id
			next = append(next, child)
			lineage = append(lineage, lineageFor(child, []string{left.ID, right.ID}, generation+1, "crossover"))
			continue
		}

		parent, err := m.cfg.Selector.PickParent(m.rng, ranked, m.cfg.EliteCount)
		if err != nil {
			return nil, nil, err
		}
		child, opName, err := m.mutate(ctx, parent)
		if err != nil {
			return nil, nil, err
		}
		child.ID = id
		next = append(next, child)
		lineage = append(lineage, lineageFor(child, []string{parent.ID}, generation+1, opName))
	}
	return next, lineage, nil
}

// mutate applies one weighted, applicable operator. When no operator can
// change the parent the child is a plain clone.
func (m *PopulationMonitor) mutate(ctx context.Context, parent model.Algebra) (model.Algebra, string, error) {
	oc := OpContext{Rand: m.rng, Seeds: m.cfg.Seeds}
	for attempt := 0; attempt < maxChildAttempts; attempt++ {
		op, ok := m.chooseMutation(parent)
		if !ok {
			break
		}
		child, err := op.Apply(ctx, oc, parent)
		if err != nil {
			if errors.Is(err, ErrNoMutationChoice) {
				continue
			}
			return model.Algebra{}, "", fmt.Errorf("apply %s: %w", op.Name(), err)
		}
		return child, op.Name(), nil
	}
	return parent.Clone(), "clone", nil
}

func (m *PopulationMonitor) chooseMutation(parent model.Algebra) (Operator, bool) {
	total := 0.0
	candidates := make([]WeightedMutation, 0, len(m.cfg.MutationPolicy))
	for _, item := range m.cfg.MutationPolicy {
		if item.Weight <= 0 {
			continue
		}
		if contextual, ok := item.Operator.(ContextualOperator); ok && !contextual.Applicable(parent) {
			continue
		}
		candidates = append(candidates, item)
		total += item.Weight
	}
	if len(candidates) == 0 {
		return nil, false
	}

	target := m.rng.Float64() * total
	acc := 0.0
	for _, item := range candidates {
		acc += item.Weight
		if target < acc {
			return item.Operator, true
		}
	}
	return candidates[len(candidates)-1].Operator, true
}

func summarizeGeneration(scored []ScoredAlgebra, generation int) model.GenerationDiagnostics {
	if len(scored) == 0 {
		return model.GenerationDiagnostics{Generation: generation}
	}

	total := 0.0
	minFitness := scored[0].Fitness
	gated := 0
	fingerprints := make(map[string]struct{}, len(scored))
	for _, item := range scored {
		total += item.Fitness
		if item.Fitness < minFitness {
			minFitness = item.Fitness
		}
		if item.Gated {
			gated++
		}
		fingerprints[item.Fingerprint] = struct{}{}
	}

	return model.GenerationDiagnostics{
		Generation:           generation,
		BestFitness:          scored[0].Fitness,
		MeanFitness:          total / float64(len(scored)),
		MinFitness:           minFitness,
		FingerprintDiversity: len(fingerprints),
		GatedCount:           gated,
		BestAlgebraID:        scored[0].Algebra.ID,
	}
}

func lineageFor(a model.Algebra, parents []string, generation int, operation string) model.LineageRecord {
	sig := ComputeAlgebraSignature(a)
	return model.LineageRecord{
		AlgebraID:   a.ID,
		ParentIDs:   parents,
		Generation:  generation,
		Operation:   operation,
		Fingerprint: sig.Fingerprint,
		Summary:     sig.Summary,
	}
}
