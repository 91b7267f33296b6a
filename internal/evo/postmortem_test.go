package evo

import (
	"testing"

	"morphogen/internal/model"
)

func characterize(t *testing.T, cases []model.TestCase) Gap {
	t.Helper()
	best := newAlgebra("best", unary(model.FinIdentity), model.Primitive(model.AccSum))
	eval := Evaluator{Cases: cases}.Evaluate(best)
	return CharacterizeGap(best, eval, cases)
}

func TestCharacterizeGapMembershipFromLists(t *testing.T) {
	gap := characterize(t, dedupeCases())
	if gap.Kind != GapMembershipTracking {
		t.Fatalf("expected membership tracking, got %s", gap.Kind)
	}
	if gap.Suggested == nil || gap.Suggested.Op != model.AccSetInsert {
		t.Fatalf("expected set_insert suggestion, got %+v", gap.Suggested)
	}
	if len(gap.Diffs) != len(dedupeCases()) {
		t.Fatalf("expected every case in the diff, got %d", len(gap.Diffs))
	}
	if gap.Diffs[0].Actual != "8" || gap.Diffs[0].Expected != "[1 2 3]" {
		t.Fatalf("unexpected diff: %+v", gap.Diffs[0])
	}
}

func TestCharacterizeGapSequenceRetention(t *testing.T) {
	cases := []model.TestCase{
		{Input: []float64{1, 2, 3}, Expected: model.List(3, 2, 1)},
		{Input: []float64{4, 4}, Expected: model.List(4, 4)},
	}
	gap := characterize(t, cases)
	if gap.Kind != GapSequenceRetention {
		t.Fatalf("expected sequence retention, got %s", gap.Kind)
	}
	if gap.Suggested == nil || gap.Suggested.Op != model.AccListAppend {
		t.Fatalf("expected list_append suggestion, got %+v", gap.Suggested)
	}
}

func TestCharacterizeGapDistinctCount(t *testing.T) {
	cases := []model.TestCase{
		{Input: []float64{1, 1, 2}, Expected: model.Scalar(2)},
		{Input: []float64{3, 3, 3}, Expected: model.Scalar(1)},
	}
	gap := characterize(t, cases)
	if gap.Kind != GapMembershipTracking {
		t.Fatalf("expected membership tracking, got %s", gap.Kind)
	}
}

func TestCharacterizeGapCounting(t *testing.T) {
	cases := []model.TestCase{
		{Input: []float64{1, 1, 2}, Expected: model.Scalar(3)},
		{Input: []float64{9}, Expected: model.Scalar(1)},
	}
	gap := characterize(t, cases)
	if gap.Kind != GapCounting || gap.Suggested == nil || gap.Suggested.Op != model.AccCount {
		t.Fatalf("expected counting gap suggesting count, got %+v", gap)
	}
}

func TestCharacterizeGapUnknown(t *testing.T) {
	gap := characterize(t, unreachableCases())
	if gap.Kind != GapUnknown || gap.Suggested != nil {
		t.Fatalf("expected unknown gap without suggestion, got %+v", gap)
	}
	if gap.String() == "" {
		t.Fatal("expected printable gap")
	}
}

func TestCharacterizeGapRecordsEvaluationErrors(t *testing.T) {
	cases := []model.TestCase{{Input: nil, Expected: model.Scalar(1)}}
	best := meanAlgebra("mean")
	gap := CharacterizeGap(best, Evaluation{}, cases)
	if len(gap.Diffs) != 1 || gap.Diffs[0].Error == "" {
		t.Fatalf("expected the division error in the diff, got %+v", gap.Diffs)
	}
}
