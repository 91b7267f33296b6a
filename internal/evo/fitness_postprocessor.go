package evo

// FitnessPostprocessor adjusts fitness values after evaluation and
// before ranking/selection.
type FitnessPostprocessor interface {
	Name() string
	Process(scored []ScoredAlgebra) []ScoredAlgebra
}

type NoopFitnessPostprocessor struct{}

func (NoopFitnessPostprocessor) Name() string {
	return "none"
}

func (NoopFitnessPostprocessor) Process(scored []ScoredAlgebra) []ScoredAlgebra {
	return cloneScored(scored)
}

// DuplicatePenaltyPostprocessor scales down every later copy of a
// fingerprint whose first occurrence in the generation was rejected
// (fitness below 1). Order of the input decides which copy is first.
type DuplicatePenaltyPostprocessor struct {
	Penalty float64
}

func (DuplicatePenaltyPostprocessor) Name() string {
	return "duplicate_penalty"
}

func (p DuplicatePenaltyPostprocessor) Process(scored []ScoredAlgebra) []ScoredAlgebra {
	penalty := p.Penalty
	if penalty <= 0 || penalty > 1 {
		penalty = defaultDuplicatePenalty
	}
	out := cloneScored(scored)
	rejected := make(map[string]bool, len(out))
	seen := make(map[string]struct{}, len(out))
	for i := range out {
		fp := out[i].Fingerprint
		if _, ok := seen[fp]; !ok {
			seen[fp] = struct{}{}
			rejected[fp] = out[i].Fitness < 1
			continue
		}
		out[i].Duplicate = true
		if rejected[fp] {
			out[i].Fitness *= penalty
		}
	}
	return out
}

func cloneScored(scored []ScoredAlgebra) []ScoredAlgebra {
	out := make([]ScoredAlgebra, len(scored))
	copy(out, scored)
	return out
}
