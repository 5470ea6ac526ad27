package scape

import (
	"context"
	"math"
)

const (
	cartPoleLiteBound           = 2.0
	cartPoleLiteStepsPerEpisode = 60

	CartPolePushLeft  Action = 0
	CartPoleIdle      Action = 1
	CartPolePushRight Action = 2
)

var cartPoleLiteStartPositions = []float64{-0.8, -0.4, 0.0, 0.4, 0.8}

// CartPoleLiteScape is a simplified 1D balancing control task with a discrete
// push-left/idle/push-right action set.
type CartPoleLiteScape struct{}

func (CartPoleLiteScape) Name() string {
	return "cart-pole-lite"
}

func (CartPoleLiteScape) ObservationSpace() ObservationSpace {
	return ObservationSpace{
		{Name: "position", Lower: -cartPoleLiteBound, Upper: cartPoleLiteBound, Kind: DimReal},
		{Name: "velocity", Lower: -cartPoleLiteBound, Upper: cartPoleLiteBound, Kind: DimReal},
	}
}

func (CartPoleLiteScape) ActionSpace() ActionSpace {
	return ActionSpace{CartPolePushLeft, CartPoleIdle, CartPolePushRight}
}

func (CartPoleLiteScape) Assess(ctx context.Context, policy Policy, numRollouts int, gamma float64) (PerfResult, error) {
	return assessEpisodes(ctx, policy, numRollouts, gamma, cartPoleLiteStepsPerEpisode, func(rollout int) episode {
		return &cartPoleLiteEpisode{x: cartPoleLiteStartPositions[rollout%len(cartPoleLiteStartPositions)]}
	})
}

type cartPoleLiteEpisode struct {
	x float64
	v float64
}

func (e *cartPoleLiteEpisode) observe() Observation {
	return Observation{clamp(e.x, -cartPoleLiteBound, cartPoleLiteBound), clamp(e.v, -cartPoleLiteBound, cartPoleLiteBound)}
}

func (e *cartPoleLiteEpisode) step(action Action) (float64, bool) {
	var force float64
	switch action {
	case CartPolePushLeft:
		force = -1
	case CartPoleIdle:
		force = 0
	case CartPolePushRight:
		force = 1
	default:
		return 0, true
	}
	var reward float64
	e.x, e.v, reward = cartPoleLiteStep(e.x, e.v, force)
	return reward, math.Abs(e.x) > cartPoleLiteBound
}

func cartPoleLiteStep(x, v, force float64) (nextX, nextV, reward float64) {
	const (
		dt     = 0.1
		kPos   = 0.45
		kVel   = 0.15
		forceK = 1.25
	)
	acc := forceK*force - kPos*x - kVel*v
	v = v + acc*dt
	x = x + v*dt
	reward = 1.0 - math.Min(1.0, math.Abs(x)/cartPoleLiteBound)
	return x, v, reward
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
