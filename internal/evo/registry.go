package evo

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrOperatorExists   = errors.New("operator already registered")
	ErrOperatorNotFound = errors.New("operator not found")
)

// OperatorSet maps operator names to the operators a run may draw from.
// Each run builds or receives its own set; there is no process-wide table.
type OperatorSet struct {
	ops map[string]Operator
}

// NewOperatorSet indexes ops by name. Names must be non-empty and unique.
func NewOperatorSet(ops ...Operator) (*OperatorSet, error) {
	set := &OperatorSet{ops: make(map[string]Operator, len(ops))}
	for i, op := range ops {
		if op == nil {
			return nil, fmt.Errorf("operator %d is nil", i)
		}
		name := op.Name()
		if name == "" {
			return nil, fmt.Errorf("operator %d has an empty name", i)
		}
		if _, exists := set.ops[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrOperatorExists, name)
		}
		set.ops[name] = op
	}
	return set, nil
}

// DefaultOperatorSet holds DefaultOperators.
func DefaultOperatorSet() *OperatorSet {
	set, err := NewOperatorSet(DefaultOperators()...)
	if err != nil {
		panic(err)
	}
	return set
}

func (s *OperatorSet) Lookup(name string) (Operator, error) {
	op, ok := s.ops[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, name)
	}
	return op, nil
}

func (s *OperatorSet) Names() []string {
	names := make([]string, 0, len(s.ops))
	for name := range s.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Policy resolves weights by operator name, sorted by name so the
// monitor's random draws are reproducible for a fixed seed.
func (s *OperatorSet) Policy(weights map[string]float64) ([]WeightedMutation, error) {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)
	policy := make([]WeightedMutation, 0, len(names))
	for _, name := range names {
		op, err := s.Lookup(name)
		if err != nil {
			return nil, err
		}
		policy = append(policy, WeightedMutation{Operator: op, Weight: weights[name]})
	}
	return policy, nil
}

// DefaultPolicy weights every operator in the set, using
// DefaultMutationWeights where it names the operator and 1 otherwise.
func (s *OperatorSet) DefaultPolicy() []WeightedMutation {
	defaults := DefaultMutationWeights()
	weights := make(map[string]float64, len(s.ops))
	for name := range s.ops {
		weight, ok := defaults[name]
		if !ok {
			weight = 1
		}
		weights[name] = weight
	}
	policy, _ := s.Policy(weights)
	return policy
}
