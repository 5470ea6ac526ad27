package scape

import "context"

const (
	corridorLength   = 10
	corridorMaxSteps = 20

	CorridorLeft  Action = 0
	CorridorRight Action = 1
)

// CorridorScape is a one-dimensional integer walk: the agent starts somewhere
// in [0, 9] and is charged one unit per step until it reaches the goal at 10.
type CorridorScape struct{}

func (CorridorScape) Name() string {
	return "corridor"
}

func (CorridorScape) ObservationSpace() ObservationSpace {
	return ObservationSpace{{Name: "position", Lower: 0, Upper: corridorLength, Kind: DimInteger}}
}

func (CorridorScape) ActionSpace() ActionSpace {
	return ActionSpace{CorridorLeft, CorridorRight}
}

// Assess cycles start positions deterministically over rollouts. The return
// of a perfect policy is minus the distance to the goal.
func (CorridorScape) Assess(ctx context.Context, policy Policy, numRollouts int, gamma float64) (PerfResult, error) {
	return assessEpisodes(ctx, policy, numRollouts, gamma, corridorMaxSteps, func(rollout int) episode {
		return &corridorEpisode{position: rollout % corridorLength}
	})
}

type corridorEpisode struct {
	position int
	steps    int
}

func (e *corridorEpisode) observe() Observation {
	return Observation{float64(e.position)}
}

func (e *corridorEpisode) step(action Action) (float64, bool) {
	e.steps++
	switch action {
	case CorridorLeft:
		if e.position > 0 {
			e.position--
		}
	case CorridorRight:
		e.position++
	default:
		// unanswered observation: charge every remaining step at once
		return -float64(corridorMaxSteps - e.steps + 1), true
	}
	return -1, e.position >= corridorLength
}
