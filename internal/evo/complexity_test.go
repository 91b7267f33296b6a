package evo

import (
	"testing"

	"morphogen/internal/model"
)

func TestMeasureComplexityCountsUniqueRoles(t *testing.T) {
	a := meanAlgebra("mean")
	if got := MeasureComplexity(a); got != 2 {
		t.Fatalf("expected plain tuple fold to have complexity 2, got %d", got)
	}

	a.Captures = []string{"k", "offset"}
	a.ExtraParams = []string{"k"}
	if got := MeasureComplexity(a); got != 4 {
		t.Fatalf("expected shared capture/param names to count once, got %d", got)
	}

	wide := newAlgebra("wide", unary(model.FinIdentity),
		model.Primitive(model.AccSum),
		model.Primitive(model.AccCount),
		model.Primitive(model.AccMax),
	)
	if got := MeasureComplexity(wide); got != 3 {
		t.Fatalf("expected a third field to add a role, got %d", got)
	}
}

func TestComplexityGateScoresZeroWithoutRunningCases(t *testing.T) {
	a := meanAlgebra("params")
	a.ExtraParams = []string{"extraA", "extraB", "extraC"}

	gated := Evaluator{Cases: meanCases(), ComplexityLimit: DefaultComplexityLimit}.Evaluate(a)
	if !gated.Gated || gated.Fitness != 0 {
		t.Fatalf("expected gated zero fitness, got %+v", gated)
	}
	if gated.Complexity != 5 {
		t.Fatalf("expected complexity 5, got %d", gated.Complexity)
	}
	if len(gated.Outcomes) != 0 {
		t.Fatalf("expected no case to run for a gated candidate, got %d outcomes", len(gated.Outcomes))
	}

	open := Evaluator{Cases: meanCases(), ComplexityLimit: 10}.Evaluate(a)
	if open.Gated || open.Fitness != 1 {
		t.Fatalf("expected full fitness with a raised limit, got %+v", open)
	}
}

func TestEvaluateAppliesPurityWeight(t *testing.T) {
	a := meanAlgebra("impure")
	a.Impure = true

	eval := Evaluator{Cases: meanCases(), PurityWeight: 0.1}.Evaluate(a)
	if eval.PassRate != 1 {
		t.Fatalf("expected all cases to pass, got %f", eval.PassRate)
	}
	if eval.Fitness < 0.899 || eval.Fitness > 0.901 {
		t.Fatalf("expected impure fitness 0.9, got %f", eval.Fitness)
	}
}

func TestEvaluateCountsErrorsAsFailures(t *testing.T) {
	cases := append(meanCases(), model.TestCase{Input: nil, Expected: model.Scalar(0)})
	eval := Evaluator{Cases: cases}.Evaluate(meanAlgebra("mean"))
	if eval.PassRate >= 1 {
		t.Fatalf("expected the empty-input case to fail, got pass rate %f", eval.PassRate)
	}
	last := eval.Outcomes[len(eval.Outcomes)-1]
	if last.Err == nil || last.Passed {
		t.Fatalf("expected an evaluation error on empty input, got %+v", last)
	}
}
