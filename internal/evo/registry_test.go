package evo

import (
	"context"
	"errors"
	"testing"

	"morphogen/internal/model"
)

type noopOperator struct{ name string }

func (o noopOperator) Name() string { return o.name }

func (noopOperator) Apply(_ context.Context, _ OpContext, algebra model.Algebra) (model.Algebra, error) {
	return algebra, nil
}

func TestNewOperatorSetAndLookup(t *testing.T) {
	set, err := NewOperatorSet(noopOperator{name: "noop"})
	if err != nil {
		t.Fatalf("new set: %v", err)
	}
	op, err := set.Lookup("noop")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if op.Name() != "noop" {
		t.Fatalf("unexpected operator: %s", op.Name())
	}
	if _, err := set.Lookup("perturb_scale"); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound outside the set, got %v", err)
	}
}

func TestNewOperatorSetRejectsDuplicates(t *testing.T) {
	if _, err := NewOperatorSet(noopOperator{name: "noop"}, noopOperator{name: "noop"}); !errors.Is(err, ErrOperatorExists) {
		t.Fatalf("expected ErrOperatorExists, got %v", err)
	}
	ops := append(DefaultOperators(), noopOperator{name: "perturb_scale"})
	if _, err := NewOperatorSet(ops...); !errors.Is(err, ErrOperatorExists) {
		t.Fatalf("expected ErrOperatorExists for a default name, got %v", err)
	}
}

func TestNewOperatorSetValidation(t *testing.T) {
	if _, err := NewOperatorSet(noopOperator{}); err == nil {
		t.Fatal("expected empty name error")
	}
	if _, err := NewOperatorSet(nil); err == nil {
		t.Fatal("expected nil operator error")
	}
}

func TestOperatorSetsAreIndependent(t *testing.T) {
	custom, err := NewOperatorSet(append(DefaultOperators(), noopOperator{name: "noop"})...)
	if err != nil {
		t.Fatalf("custom set: %v", err)
	}
	if _, err := custom.Lookup("noop"); err != nil {
		t.Fatalf("lookup in custom set: %v", err)
	}
	if _, err := DefaultOperatorSet().Lookup("noop"); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected a fresh default set to be unaffected, got %v", err)
	}
}

func TestDefaultOperatorSetNames(t *testing.T) {
	names := DefaultOperatorSet().Names()
	if len(names) != len(DefaultOperators()) {
		t.Fatalf("expected %d names, got %v", len(DefaultOperators()), names)
	}
	for _, op := range DefaultOperators() {
		found := false
		for _, name := range names {
			if name == op.Name() {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected %s in %v", op.Name(), names)
		}
	}
}

func TestOperatorSetPolicy(t *testing.T) {
	set := DefaultOperatorSet()
	policy, err := set.Policy(map[string]float64{
		"swap_comparison": 2,
		"drop_field":      1,
	})
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if len(policy) != 2 || policy[0].Operator.Name() != "drop_field" || policy[1].Operator.Name() != "swap_comparison" {
		t.Fatalf("expected sorted policy, got %+v", policy)
	}
	if _, err := set.Policy(map[string]float64{"grow_neuron": 1}); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got %v", err)
	}
}

func TestSynthesizeUsesProvidedOperatorSet(t *testing.T) {
	set, err := NewOperatorSet(noopOperator{name: "noop"})
	if err != nil {
		t.Fatalf("new set: %v", err)
	}
	opts := Options{
		Seeds:           numericSeeds(),
		Operators:       set,
		MutationWeights: map[string]float64{"perturb_scale": 1},
		MaxGenerations:  1,
		Seed:            1,
	}
	if _, err := Synthesize(context.Background(), meanCases(), opts); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected weights to resolve against the provided set, got %v", err)
	}
}
