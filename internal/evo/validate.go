package evo

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"morphogen/internal/model"
)

var ErrMalformedTestCases = errors.New("malformed test cases")

// ValidationError lists every offending test case index.
type ValidationError struct {
	Indices []int
	Reasons []string
}

func (e *ValidationError) Error() string {
	if len(e.Indices) == 0 {
		return fmt.Sprintf("%s: %s", ErrMalformedTestCases, strings.Join(e.Reasons, "; "))
	}
	parts := make([]string, len(e.Indices))
	for i, idx := range e.Indices {
		parts[i] = fmt.Sprintf("case %d: %s", idx, e.Reasons[i])
	}
	return fmt.Sprintf("%s: %s", ErrMalformedTestCases, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrMalformedTestCases
}

// ValidateTestCases checks that every case is finite and that all expected
// outputs share the kind of the first case.
func ValidateTestCases(cases []model.TestCase) error {
	if len(cases) == 0 {
		return &ValidationError{Reasons: []string{"at least one test case is required"}}
	}

	verr := &ValidationError{}
	reference := cases[0].Expected.Kind
	for i, tc := range cases {
		var reasons []string
		for _, x := range tc.Input {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				reasons = append(reasons, "input contains a non-finite number")
				break
			}
		}
		switch tc.Expected.Kind {
		case model.KindScalar, model.KindList:
			if !tc.Expected.Finite() {
				reasons = append(reasons, "expected output contains a non-finite number")
			}
		default:
			reasons = append(reasons, "expected output is missing")
		}
		if tc.Expected.Kind != reference && reference != "" {
			reasons = append(reasons, fmt.Sprintf("expected %s output, case 0 has %s", tc.Expected.Kind, reference))
		}
		if len(reasons) > 0 {
			verr.Indices = append(verr.Indices, i)
			verr.Reasons = append(verr.Reasons, strings.Join(reasons, ", "))
		}
	}
	if len(verr.Indices) > 0 {
		return verr
	}
	return nil
}
