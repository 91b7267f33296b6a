package evo

import (
	"fmt"
	"sort"

	"morphogen/internal/model"
)

type GapKind string

const (
	GapMembershipTracking GapKind = "membership_tracking"
	GapSequenceRetention  GapKind = "sequence_retention"
	GapCounting           GapKind = "counting"
	GapUnknown            GapKind = "unknown"
)

// CaseDiff records one failing case of the best imperfect candidate.
type CaseDiff struct {
	Index    int       `json:"index"`
	Input    []float64 `json:"input"`
	Expected string    `json:"expected"`
	Actual   string    `json:"actual,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Gap describes what kind of accumulator shape would close the distance
// between the best candidate and the expected outputs.
type Gap struct {
	Kind        GapKind            `json:"kind"`
	Description string             `json:"description"`
	Suggested   *model.Accumulator `json:"suggested,omitempty"`
	Diffs       []CaseDiff         `json:"diffs,omitempty"`
}

// CharacterizeGap inspects how the best candidate failed and, from the
// shape of the expected outputs, names the missing accumulator.
func CharacterizeGap(best model.Algebra, eval Evaluation, cases []model.TestCase) Gap {
	gap := Gap{Kind: GapUnknown, Description: "no accumulator shape explains the remaining failures"}
	gap.Diffs = diffCases(best, eval, cases)

	switch {
	case len(cases) == 0:
		return gap
	case cases[0].Expected.Kind == model.KindList:
		if allCases(cases, dedupesInput) && anyCase(cases, dropsElements) {
			gap.Kind = GapMembershipTracking
			gap.Description = "requires membership tracking: outputs keep each input element once"
			gap.Suggested = suggested(model.AccSetInsert)
		} else if allCases(cases, permutesInput) {
			gap.Kind = GapSequenceRetention
			gap.Description = "requires sequence retention: outputs rearrange every input element"
			gap.Suggested = suggested(model.AccListAppend)
		}
	default:
		if allCases(cases, countsDistinct) && !allCases(cases, countsAll) {
			gap.Kind = GapMembershipTracking
			gap.Description = "requires membership tracking: outputs count distinct elements"
			gap.Suggested = suggested(model.AccSetInsert)
		} else if allCases(cases, countsAll) {
			gap.Kind = GapCounting
			gap.Description = "requires counting: outputs equal the number of elements"
			gap.Suggested = suggested(model.AccCount)
		}
	}
	return gap
}

func suggested(op string) *model.Accumulator {
	acc := model.Primitive(op)
	return &acc
}

func diffCases(best model.Algebra, eval Evaluation, cases []model.TestCase) []CaseDiff {
	outcomes := eval.Outcomes
	if len(outcomes) != len(cases) {
		outcomes = Evaluator{Cases: cases, ComplexityLimit: MeasureComplexity(best)}.Evaluate(best).Outcomes
	}
	var diffs []CaseDiff
	for i, tc := range cases {
		if i < len(outcomes) && outcomes[i].Passed {
			continue
		}
		diff := CaseDiff{
			Index:    i,
			Input:    append([]float64(nil), tc.Input...),
			Expected: tc.Expected.String(),
		}
		if i < len(outcomes) {
			if outcomes[i].Err != nil {
				diff.Error = outcomes[i].Err.Error()
			} else {
				diff.Actual = outcomes[i].Actual.String()
			}
		}
		diffs = append(diffs, diff)
	}
	return diffs
}

func allCases(cases []model.TestCase, pred func(model.TestCase) bool) bool {
	for _, tc := range cases {
		if !pred(tc) {
			return false
		}
	}
	return true
}

func anyCase(cases []model.TestCase, pred func(model.TestCase) bool) bool {
	for _, tc := range cases {
		if pred(tc) {
			return true
		}
	}
	return false
}

func dropsElements(tc model.TestCase) bool {
	return tc.Expected.Kind == model.KindList && len(tc.Expected.List) < len(tc.Input)
}

// dedupesInput holds when the expected list has no repeats and holds every
// distinct input element exactly once.
func dedupesInput(tc model.TestCase) bool {
	if tc.Expected.Kind != model.KindList {
		return false
	}
	inInput := make(map[float64]struct{}, len(tc.Input))
	for _, x := range tc.Input {
		inInput[x] = struct{}{}
	}
	seen := make(map[float64]struct{}, len(tc.Expected.List))
	for _, y := range tc.Expected.List {
		if _, ok := inInput[y]; !ok {
			return false
		}
		if _, dup := seen[y]; dup {
			return false
		}
		seen[y] = struct{}{}
	}
	return len(seen) == len(inInput)
}

func permutesInput(tc model.TestCase) bool {
	if tc.Expected.Kind != model.KindList || len(tc.Expected.List) != len(tc.Input) {
		return false
	}
	a := append([]float64(nil), tc.Input...)
	b := append([]float64(nil), tc.Expected.List...)
	sort.Float64s(a)
	sort.Float64s(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func countsDistinct(tc model.TestCase) bool {
	if tc.Expected.Kind != model.KindScalar {
		return false
	}
	distinct := make(map[float64]struct{}, len(tc.Input))
	for _, x := range tc.Input {
		distinct[x] = struct{}{}
	}
	return tc.Expected.Num == float64(len(distinct))
}

func countsAll(tc model.TestCase) bool {
	return tc.Expected.Kind == model.KindScalar && tc.Expected.Num == float64(len(tc.Input))
}

func (g Gap) String() string {
	if g.Suggested == nil {
		return fmt.Sprintf("%s: %s", g.Kind, g.Description)
	}
	return fmt.Sprintf("%s: %s (suggest %s)", g.Kind, g.Description, g.Suggested.Op)
}
