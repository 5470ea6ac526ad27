package scape

import (
	"context"
	"fmt"
)

// episode is one rollout of an environment. step must accept NoAction and
// end the episode with the environment's floor reward.
type episode interface {
	observe() Observation
	step(action Action) (reward float64, done bool)
}

// assessEpisodes runs numRollouts episodes of at most maxSteps each and
// returns the mean discounted return together with the total steps taken.
func assessEpisodes(
	ctx context.Context,
	policy Policy,
	numRollouts int,
	gamma float64,
	maxSteps int,
	newEpisode func(rollout int) episode,
) (PerfResult, error) {
	if policy == nil {
		return PerfResult{}, fmt.Errorf("policy is required")
	}
	if numRollouts <= 0 {
		return PerfResult{}, fmt.Errorf("num rollouts must be > 0, got %d", numRollouts)
	}
	if gamma < 0 || gamma > 1 {
		return PerfResult{}, fmt.Errorf("discount factor must be in [0, 1], got %v", gamma)
	}

	totalReturn := 0.0
	steps := 0
	for rollout := 0; rollout < numRollouts; rollout++ {
		if err := ctx.Err(); err != nil {
			return PerfResult{}, err
		}
		ep := newEpisode(rollout)
		discount := 1.0
		episodeReturn := 0.0
		for t := 0; t < maxSteps; t++ {
			action := policy.SelectAction(ep.observe())
			reward, done := ep.step(action)
			episodeReturn += discount * reward
			discount *= gamma
			steps++
			if done {
				break
			}
		}
		totalReturn += episodeReturn
	}
	return PerfResult{
		Perf:          totalReturn / float64(numRollouts),
		TimeStepsUsed: steps,
	}, nil
}
