package evo

import (
	"fmt"
	"math/rand"

	"morphogen/internal/model"
)

// Selector chooses parents from ranked algebras for replication.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []ScoredAlgebra, eliteCount int) (model.Algebra, error)
}

// EliteSelector picks uniformly from the top elite set.
type EliteSelector struct{}

func (EliteSelector) Name() string {
	return "elite"
}

func (EliteSelector) PickParent(rng *rand.Rand, ranked []ScoredAlgebra, eliteCount int) (model.Algebra, error) {
	if rng == nil {
		return model.Algebra{}, fmt.Errorf("random source is required")
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return model.Algebra{}, fmt.Errorf("invalid elite count: %d", eliteCount)
	}
	return ranked[rng.Intn(eliteCount)].Algebra, nil
}

// TournamentSelector samples candidates and picks the best fitness among
// them. A zero PoolSize samples from the whole ranked population.
type TournamentSelector struct {
	PoolSize       int
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []ScoredAlgebra, eliteCount int) (model.Algebra, error) {
	if rng == nil {
		return model.Algebra{}, fmt.Errorf("random source is required")
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return model.Algebra{}, fmt.Errorf("invalid elite count: %d", eliteCount)
	}

	poolSize := s.PoolSize
	if poolSize <= 0 || poolSize > len(ranked) {
		poolSize = len(ranked)
	}
	if poolSize < eliteCount {
		poolSize = eliteCount
	}

	tournamentSize := s.TournamentSize
	if tournamentSize <= 0 {
		tournamentSize = 3
	}
	if tournamentSize > poolSize {
		tournamentSize = poolSize
	}

	best := ranked[rng.Intn(poolSize)]
	for i := 1; i < tournamentSize; i++ {
		candidate := ranked[rng.Intn(poolSize)]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best.Algebra, nil
}

// FitnessProportionalSelector is roulette-wheel selection over the whole
// population. It falls back to a uniform pick when every fitness is zero.
type FitnessProportionalSelector struct{}

func (FitnessProportionalSelector) Name() string {
	return "fitness_proportional"
}

func (FitnessProportionalSelector) PickParent(rng *rand.Rand, ranked []ScoredAlgebra, eliteCount int) (model.Algebra, error) {
	if rng == nil {
		return model.Algebra{}, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return model.Algebra{}, fmt.Errorf("invalid elite count: %d", eliteCount)
	}

	total := 0.0
	for _, item := range ranked {
		if item.Fitness > 0 {
			total += item.Fitness
		}
	}
	if total == 0 {
		return ranked[rng.Intn(len(ranked))].Algebra, nil
	}

	target := rng.Float64() * total
	acc := 0.0
	for _, item := range ranked {
		if item.Fitness <= 0 {
			continue
		}
		acc += item.Fitness
		if target < acc {
			return item.Algebra, nil
		}
	}
	return ranked[0].Algebra, nil
}

// SelectorByName maps a configuration name to a selector.
func SelectorByName(name string) (Selector, error) {
	switch name {
	case "", "tournament":
		return TournamentSelector{}, nil
	case "elite":
		return EliteSelector{}, nil
	case "fitness_proportional":
		return FitnessProportionalSelector{}, nil
	default:
		return nil, fmt.Errorf("unsupported selection strategy: %s", name)
	}
}
