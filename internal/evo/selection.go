package evo

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"rulevo/internal/agent"
)

var ErrEmptyPopulation = errors.New("population is empty")

// TournamentSelect draws tournSize individuals uniformly with replacement
// and returns the one with the highest perf. Ties go to the first drawn.
// Every drawn individual must already carry a perf result.
func TournamentSelect(rng *rand.Rand, population []*agent.Individual, tournSize int) (*agent.Individual, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(population) == 0 {
		return nil, ErrEmptyPopulation
	}
	if tournSize < 2 {
		return nil, fmt.Errorf("tournament size must be >= 2, got %d", tournSize)
	}

	var (
		best     *agent.Individual
		bestPerf float64
	)
	for i := 0; i < tournSize; i++ {
		candidate := population[rng.IntN(len(population))]
		perf, err := candidate.Perf()
		if err != nil {
			return nil, fmt.Errorf("tournament candidate %s: %w", candidate.ID(), err)
		}
		if best == nil || perf > bestPerf {
			best = candidate
			bestPerf = perf
		}
	}
	return best, nil
}
