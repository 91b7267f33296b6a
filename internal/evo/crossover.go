package evo

import (
	"math/rand"
	"sort"

	"morphogen/internal/fold"
	"morphogen/internal/model"
)

// Crossover merges one field of each parent into a two-field tuple
// accumulator and picks a finalize step that reduces the tuple back down.
// Captures and extra parameters of both parents carry over.
func Crossover(rng *rand.Rand, left, right model.Algebra) (model.Algebra, error) {
	if rng == nil {
		return model.Algebra{}, errNoRandom
	}
	if len(left.Fields) == 0 || len(right.Fields) == 0 {
		return model.Algebra{}, fold.ErrEmptyAlgebra
	}

	child := model.Algebra{
		VersionedRecord: left.VersionedRecord,
		Fields: []model.Accumulator{
			left.Fields[rng.Intn(len(left.Fields))],
			right.Fields[rng.Intn(len(right.Fields))],
		},
		Captures:    unionSorted(left.Captures, right.Captures),
		ExtraParams: unionSorted(left.ExtraParams, right.ExtraParams),
		Impure:      left.Impure || right.Impure,
	}
	options := fold.FinalizeOptions(child.Fields)
	child.Finalize = options[rng.Intn(len(options))]
	return child, nil
}

func unionSorted(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a)+len(b))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
