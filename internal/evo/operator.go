package evo

import (
	"context"
	"math/rand"

	"morphogen/internal/model"
)

// OpContext carries the per-run state an operator may draw from.
type OpContext struct {
	Rand  *rand.Rand
	Seeds []model.Accumulator
}

type Operator interface {
	Name() string
	Apply(ctx context.Context, oc OpContext, algebra model.Algebra) (model.Algebra, error)
}

// ContextualOperator can declare whether it applies to an algebra. The
// monitor uses this to avoid picking operators that have nothing to change.
type ContextualOperator interface {
	Operator
	Applicable(algebra model.Algebra) bool
}

// WeightedMutation pairs an operator with its relative selection weight.
type WeightedMutation struct {
	Operator Operator
	Weight   float64
}
