package evo

import "morphogen/internal/model"

// DefaultComplexityLimit is the maximum number of semantic roles a
// candidate may reference: the accumulator and the current element.
const DefaultComplexityLimit = 2

// MeasureComplexity counts the distinct semantic roles an algebra
// references. The tuple accumulator counts as one role as long as it has at
// most two fields; each further field, captured free variable or extra
// parameter adds one.
func MeasureComplexity(a model.Algebra) int {
	roles := 2
	extra := make(map[string]struct{}, len(a.Captures)+len(a.ExtraParams))
	for _, name := range a.ExtraParams {
		extra[name] = struct{}{}
	}
	for _, name := range a.Captures {
		extra[name] = struct{}{}
	}
	roles += len(extra)
	if len(a.Fields) > 2 {
		roles += len(a.Fields) - 2
	}
	return roles
}
