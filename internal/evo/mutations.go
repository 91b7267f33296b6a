package evo

import (
	"context"
	"errors"
	"fmt"

	"morphogen/internal/fold"
	"morphogen/internal/model"
)

var (
	ErrNoMutationChoice = errors.New("no mutation choice available")
	errNoRandom         = errors.New("random source is required")
)

// scaleFactors are the multipliers PerturbScale draws from.
var scaleFactors = []float64{2, 0.5, -1}

// PerturbScale multiplies the scale of one random field.
type PerturbScale struct{}

func (PerturbScale) Name() string {
	return "perturb_scale"
}

func (PerturbScale) Applicable(a model.Algebra) bool {
	return len(a.Fields) > 0
}

func (o PerturbScale) Apply(_ context.Context, oc OpContext, a model.Algebra) (model.Algebra, error) {
	if oc.Rand == nil {
		return model.Algebra{}, errNoRandom
	}
	if !o.Applicable(a) {
		return model.Algebra{}, ErrNoMutationChoice
	}
	mutated := a.Clone()
	idx := oc.Rand.Intn(len(mutated.Fields))
	mutated.Fields[idx].Scale *= scaleFactors[oc.Rand.Intn(len(scaleFactors))]
	return mutated, nil
}

// SwapComparison turns a max field into a min field or the reverse.
type SwapComparison struct{}

func (SwapComparison) Name() string {
	return "swap_comparison"
}

func (SwapComparison) Applicable(a model.Algebra) bool {
	return len(comparisonFields(a)) > 0
}

func (o SwapComparison) Apply(_ context.Context, oc OpContext, a model.Algebra) (model.Algebra, error) {
	if oc.Rand == nil {
		return model.Algebra{}, errNoRandom
	}
	candidates := comparisonFields(a)
	if len(candidates) == 0 {
		return model.Algebra{}, ErrNoMutationChoice
	}
	mutated := a.Clone()
	idx := candidates[oc.Rand.Intn(len(candidates))]
	if mutated.Fields[idx].Op == model.AccMax {
		mutated.Fields[idx].Op = model.AccMin
	} else {
		mutated.Fields[idx].Op = model.AccMax
	}
	return mutated, nil
}

func comparisonFields(a model.Algebra) []int {
	var out []int
	for i, f := range a.Fields {
		if f.Op == model.AccMax || f.Op == model.AccMin {
			out = append(out, i)
		}
	}
	return out
}

// ChangeFinalize swaps the finalize step for another one that type-checks.
type ChangeFinalize struct{}

func (ChangeFinalize) Name() string {
	return "change_finalize"
}

func (ChangeFinalize) Applicable(a model.Algebra) bool {
	return len(finalizeAlternatives(a)) > 0
}

func (o ChangeFinalize) Apply(_ context.Context, oc OpContext, a model.Algebra) (model.Algebra, error) {
	if oc.Rand == nil {
		return model.Algebra{}, errNoRandom
	}
	options := finalizeAlternatives(a)
	if len(options) == 0 {
		return model.Algebra{}, ErrNoMutationChoice
	}
	mutated := a.Clone()
	chosen := options[oc.Rand.Intn(len(options))]
	mutated.Finalize = model.Finalize{Op: chosen.Op, Args: append([]int(nil), chosen.Args...)}
	return mutated, nil
}

func finalizeAlternatives(a model.Algebra) []model.Finalize {
	options := fold.FinalizeOptions(a.Fields)
	out := make([]model.Finalize, 0, len(options))
	current := ComputeAlgebraSignature(a).Fingerprint
	for _, option := range options {
		probe := a.Clone()
		probe.Finalize = option
		if ComputeAlgebraSignature(probe).Fingerprint == current {
			continue
		}
		out = append(out, option)
	}
	return out
}

// ReplaceAccumulator replaces one field with a different seed primitive.
// The finalize step is reset when it no longer type-checks.
type ReplaceAccumulator struct{}

func (ReplaceAccumulator) Name() string {
	return "replace_accumulator"
}

func (ReplaceAccumulator) Applicable(a model.Algebra) bool {
	return len(a.Fields) > 0
}

func (o ReplaceAccumulator) Apply(_ context.Context, oc OpContext, a model.Algebra) (model.Algebra, error) {
	if oc.Rand == nil {
		return model.Algebra{}, errNoRandom
	}
	if len(a.Fields) == 0 || len(oc.Seeds) == 0 {
		return model.Algebra{}, ErrNoMutationChoice
	}
	idx := oc.Rand.Intn(len(a.Fields))
	replacements := make([]model.Accumulator, 0, len(oc.Seeds))
	for _, seed := range oc.Seeds {
		if seed.Op != a.Fields[idx].Op {
			replacements = append(replacements, seed)
		}
	}
	if len(replacements) == 0 {
		return model.Algebra{}, ErrNoMutationChoice
	}
	mutated := a.Clone()
	mutated.Fields[idx] = replacements[oc.Rand.Intn(len(replacements))]
	if !fold.FinalizeValid(mutated.Fields, mutated.Finalize) {
		options := fold.FinalizeOptions(mutated.Fields)
		mutated.Finalize = options[oc.Rand.Intn(len(options))]
	}
	return mutated, nil
}

// DropField removes one field of a tuple accumulator.
type DropField struct{}

func (DropField) Name() string {
	return "drop_field"
}

func (DropField) Applicable(a model.Algebra) bool {
	return len(a.Fields) >= 2
}

func (o DropField) Apply(_ context.Context, oc OpContext, a model.Algebra) (model.Algebra, error) {
	if oc.Rand == nil {
		return model.Algebra{}, errNoRandom
	}
	if !o.Applicable(a) {
		return model.Algebra{}, ErrNoMutationChoice
	}
	mutated := a.Clone()
	idx := oc.Rand.Intn(len(mutated.Fields))
	mutated.Fields = append(mutated.Fields[:idx], mutated.Fields[idx+1:]...)
	if !fold.FinalizeValid(mutated.Fields, mutated.Finalize) {
		mutated.Finalize = fold.FinalizeOptions(mutated.Fields)[0]
	}
	return mutated, nil
}

// CaptureFreeVariable makes the algebra close over a variable from outside
// the fold. The computation is unchanged but the candidate gains a semantic
// role.
type CaptureFreeVariable struct{}

func (CaptureFreeVariable) Name() string {
	return "capture_free_variable"
}

func (CaptureFreeVariable) Applicable(a model.Algebra) bool {
	return len(a.Fields) > 0
}

func (o CaptureFreeVariable) Apply(_ context.Context, _ OpContext, a model.Algebra) (model.Algebra, error) {
	if !o.Applicable(a) {
		return model.Algebra{}, ErrNoMutationChoice
	}
	mutated := a.Clone()
	mutated.Captures = append(mutated.Captures, fmt.Sprintf("free%d", len(mutated.Captures)))
	return mutated, nil
}

func DefaultOperators() []Operator {
	return []Operator{
		PerturbScale{},
		SwapComparison{},
		ChangeFinalize{},
		ReplaceAccumulator{},
		DropField{},
		CaptureFreeVariable{},
	}
}

func DefaultMutationWeights() map[string]float64 {
	return map[string]float64{
		PerturbScale{}.Name():        3,
		SwapComparison{}.Name():      1,
		ChangeFinalize{}.Name():      3,
		ReplaceAccumulator{}.Name():  3,
		DropField{}.Name():           1,
		CaptureFreeVariable{}.Name(): 0.25,
	}
}

// DefaultMutationPolicy returns the default operators with their weights,
// in the order DefaultOperators lists them.
func DefaultMutationPolicy() []WeightedMutation {
	weights := DefaultMutationWeights()
	ops := DefaultOperators()
	policy := make([]WeightedMutation, 0, len(ops))
	for _, op := range ops {
		policy = append(policy, WeightedMutation{Operator: op, Weight: weights[op.Name()]})
	}
	return policy
}
