package evo

import (
	"math/rand"
	"testing"
)

func rankedFixture() []ScoredAlgebra {
	return []ScoredAlgebra{
		{Algebra: meanAlgebra("a0"), Fitness: 0.9},
		{Algebra: meanAlgebra("a1"), Fitness: 0.7},
		{Algebra: meanAlgebra("a2"), Fitness: 0.5},
		{Algebra: meanAlgebra("a3"), Fitness: 0.1},
		{Algebra: meanAlgebra("a4"), Fitness: 0},
	}
}

func TestEliteSelectorPicksFromElite(t *testing.T) {
	ranked := rankedFixture()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		parent, err := EliteSelector{}.PickParent(rng, ranked, 2)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		if parent.ID != "a0" && parent.ID != "a1" {
			t.Fatalf("expected an elite parent, got %s", parent.ID)
		}
	}
	if _, err := (EliteSelector{}).PickParent(rng, ranked, 0); err == nil {
		t.Fatal("expected invalid elite count error")
	}
}

func TestTournamentSelectorBiasesTowardFitter(t *testing.T) {
	ranked := rankedFixture()
	rng := rand.New(rand.NewSource(11))
	counts := map[string]int{}
	for i := 0; i < 400; i++ {
		parent, err := TournamentSelector{TournamentSize: 3}.PickParent(rng, ranked, 1)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		counts[parent.ID]++
	}
	if counts["a0"] <= counts["a4"] {
		t.Fatalf("expected the fittest to win more often: %+v", counts)
	}
	if counts["a3"] == 0 && counts["a2"] == 0 {
		t.Fatalf("expected tournaments to sample beyond the elite: %+v", counts)
	}
}

func TestFitnessProportionalSelectorSkipsZeroFitness(t *testing.T) {
	ranked := rankedFixture()
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		parent, err := FitnessProportionalSelector{}.PickParent(rng, ranked, 1)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		if parent.ID == "a4" {
			t.Fatal("expected zero-fitness algebra never to be picked")
		}
	}

	zeros := []ScoredAlgebra{{Algebra: meanAlgebra("z0")}, {Algebra: meanAlgebra("z1")}}
	if _, err := (FitnessProportionalSelector{}).PickParent(rng, zeros, 1); err != nil {
		t.Fatalf("expected uniform fallback, got %v", err)
	}
}

func TestSelectorByName(t *testing.T) {
	for name, want := range map[string]string{
		"":                     "tournament",
		"tournament":           "tournament",
		"elite":                "elite",
		"fitness_proportional": "fitness_proportional",
	} {
		selector, err := SelectorByName(name)
		if err != nil {
			t.Fatalf("%q: %v", name, err)
		}
		if selector.Name() != want {
			t.Fatalf("%q: expected %s, got %s", name, want, selector.Name())
		}
	}
	if _, err := SelectorByName("roulette"); err == nil {
		t.Fatal("expected unsupported selection error")
	}
}
