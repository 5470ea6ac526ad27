package genotype

import (
	"fmt"

	"rulevo/internal/scape"
)

// Interval is a closed range over one observation dimension.
type Interval struct {
	Lower float64
	Upper float64
	Kind  scape.DimKind
}

// NewInterval panics when lower > upper: decoding never produces such a
// pair, so seeing one means the caller is broken.
func NewInterval(lower, upper float64, kind scape.DimKind) Interval {
	if lower > upper {
		panic(fmt.Sprintf("genotype: interval lower %v > upper %v", lower, upper))
	}
	return Interval{Lower: lower, Upper: upper, Kind: kind}
}

func (i Interval) Contains(v float64) bool {
	return i.Lower <= v && v <= i.Upper
}

// Span counts the discrete points covered by an integer interval and the
// length of a real one.
func (i Interval) Span() float64 {
	if i.Kind == scape.DimInteger {
		return i.Upper - i.Lower + 1
	}
	return i.Upper - i.Lower
}

func (i Interval) String() string {
	if i.Kind == scape.DimInteger {
		return fmt.Sprintf("[%d, %d]", int64(i.Lower), int64(i.Upper))
	}
	return fmt.Sprintf("[%.4g, %.4g]", i.Lower, i.Upper)
}
