package evo

import (
	"morphogen/internal/fold"
	"morphogen/internal/model"
)

const (
	defaultPurityWeight     = 0.1
	defaultDuplicatePenalty = 0.5
)

// CaseOutcome is the result of folding one test case.
type CaseOutcome struct {
	Actual model.Value
	Err    error
	Passed bool
}

type Evaluation struct {
	Fitness    float64
	PassRate   float64
	Complexity int
	Gated      bool
	Outcomes   []CaseOutcome
}

// Evaluator scores algebras against a fixed set of test cases.
type Evaluator struct {
	Cases           []model.TestCase
	ComplexityLimit int
	PurityWeight    float64
}

func (e Evaluator) limit() int {
	if e.ComplexityLimit <= 0 {
		return DefaultComplexityLimit
	}
	return e.ComplexityLimit
}

// Evaluate runs the complexity gate first; a gated algebra scores exactly 0
// and no test case is executed. Otherwise fitness is the exact-match pass
// rate, reduced by PurityWeight for impure algebras.
func (e Evaluator) Evaluate(a model.Algebra) Evaluation {
	complexity := MeasureComplexity(a)
	if complexity > e.limit() {
		return Evaluation{Fitness: 0, Complexity: complexity, Gated: true}
	}
	if len(e.Cases) == 0 {
		return Evaluation{Complexity: complexity}
	}

	outcomes := make([]CaseOutcome, len(e.Cases))
	passed := 0
	for i, tc := range e.Cases {
		actual, err := fold.Eval(a, tc.Input)
		outcome := CaseOutcome{Actual: actual, Err: err}
		if err == nil && actual.Equal(tc.Expected) {
			outcome.Passed = true
			passed++
		}
		outcomes[i] = outcome
	}

	passRate := float64(passed) / float64(len(e.Cases))
	fitness := passRate
	if isImpure(a) {
		fitness = passRate * (1 - e.PurityWeight)
	}
	return Evaluation{
		Fitness:    fitness,
		PassRate:   passRate,
		Complexity: complexity,
		Outcomes:   outcomes,
	}
}

func isImpure(a model.Algebra) bool {
	return a.Impure || len(a.Captures) > 0
}
