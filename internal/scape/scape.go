package scape

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Action is an element of an environment's action space.
type Action int

// NoAction is returned by a policy that has no rule matching an observation.
// Environments must treat it as a terminal outcome with a defined floor.
const NoAction Action = -1

// Observation is one point of an ObservationSpace, integer dimensions
// carrying integral values.
type Observation []float64

type DimKind int

const (
	DimInteger DimKind = iota
	DimReal
)

func (k DimKind) String() string {
	switch k {
	case DimInteger:
		return "integer"
	case DimReal:
		return "real"
	default:
		return fmt.Sprintf("DimKind(%d)", int(k))
	}
}

// Dimension is one inclusive-bounded axis of an observation space.
type Dimension struct {
	Name  string
	Lower float64
	Upper float64
	Kind  DimKind
}

// Span counts discrete points for integer dimensions and measures length for
// real ones.
func (d Dimension) Span() float64 {
	if d.Kind == DimInteger {
		return d.Upper - d.Lower + 1
	}
	return d.Upper - d.Lower
}

type ObservationSpace []Dimension

var (
	ErrEmptyObservationSpace = errors.New("observation space has no dimensions")
	ErrMixedDimensionKinds   = errors.New("observation space mixes integer and real dimensions")
	ErrInvalidDimension      = errors.New("invalid observation dimension")
	ErrEmptyActionSpace      = errors.New("action space has no actions")
)

// Kind returns the shared kind of all dimensions.
func (s ObservationSpace) Kind() (DimKind, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	return s[0].Kind, nil
}

func (s ObservationSpace) Validate() error {
	if len(s) == 0 {
		return ErrEmptyObservationSpace
	}
	for i, dim := range s {
		if dim.Lower > dim.Upper {
			return fmt.Errorf("%w: index=%d lower=%v upper=%v", ErrInvalidDimension, i, dim.Lower, dim.Upper)
		}
		if dim.Kind != s[0].Kind {
			return ErrMixedDimensionKinds
		}
		if dim.Kind == DimInteger && (dim.Lower != math.Trunc(dim.Lower) || dim.Upper != math.Trunc(dim.Upper)) {
			return fmt.Errorf("%w: index=%d integer bounds must be integral", ErrInvalidDimension, i)
		}
	}
	return nil
}

// ActionSpace is the ordered set of admissible actions.
type ActionSpace []Action

func (s ActionSpace) Validate() error {
	if len(s) == 0 {
		return ErrEmptyActionSpace
	}
	seen := make(map[Action]struct{}, len(s))
	for _, a := range s {
		if a == NoAction {
			return fmt.Errorf("action space must not contain the no-action sentinel %d", NoAction)
		}
		if _, dup := seen[a]; dup {
			return fmt.Errorf("duplicate action %d in action space", a)
		}
		seen[a] = struct{}{}
	}
	return nil
}

func (s ActionSpace) Contains(a Action) bool {
	for _, candidate := range s {
		if candidate == a {
			return true
		}
	}
	return false
}

// Without returns the actions of s other than excluded, preserving order.
func (s ActionSpace) Without(excluded Action) ActionSpace {
	out := make(ActionSpace, 0, len(s))
	for _, a := range s {
		if a != excluded {
			out = append(out, a)
		}
	}
	return out
}

// PerfResult is the aggregate outcome of assessing a policy.
type PerfResult struct {
	Perf          float64
	TimeStepsUsed int
}

type Policy interface {
	SelectAction(obs Observation) Action
}

type Environment interface {
	Name() string
	ObservationSpace() ObservationSpace
	ActionSpace() ActionSpace
	Assess(ctx context.Context, policy Policy, numRollouts int, gamma float64) (PerfResult, error)
}
