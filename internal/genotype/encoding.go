package genotype

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"rulevo/internal/scape"
)

const (
	generalityUpperIncl = 1.0

	// geometricTargetMass is the cumulative probability the integer noise
	// distribution reaches within half a dimension's span.
	geometricTargetMass = 0.99
)

// Encoding turns flat allele sequences into condition phenotypes. Both
// variants use the unordered-bound representation: two alleles per
// dimension, decoded as (min, max).
type Encoding interface {
	Kind() scape.DimKind
	ObservationSpace() scape.ObservationSpace
	InitConditionAlleles(rng *rand.Rand) []float64
	Decode(alleles []float64) []Interval
	Generality(phenotype []Interval) float64
	// MutateConditionAlleles returns a new slice; alleles is left untouched.
	MutateConditionAlleles(rng *rand.Rand, alleles []float64) []float64
}

// EncodingParams carries the noise knobs read from the hyperparameters.
type EncodingParams struct {
	PMut         float64
	MNought      int
	RNought      float64
	MutSigmaPcnt float64
}

// NewEncoding picks the encoding variant matching the observation space's
// dimension kind.
func NewEncoding(space scape.ObservationSpace, params EncodingParams) (Encoding, error) {
	kind, err := space.Kind()
	if err != nil {
		return nil, err
	}
	if params.PMut < 0 || params.PMut > 1 {
		return nil, fmt.Errorf("p_mut must be in [0, 1], got %v", params.PMut)
	}
	base := unorderedBound{space: append(scape.ObservationSpace(nil), space...), params: params}

	switch kind {
	case scape.DimInteger:
		enc := &IntegerEncoding{unorderedBound: base, geomP: make([]float64, len(space))}
		for i, dim := range space {
			enc.geomP[i] = geometricSuccessProb(dim.Span())
		}
		return enc, nil
	case scape.DimReal:
		total := 0.0
		for _, dim := range space {
			total += dim.Span()
		}
		if total <= 0 {
			return nil, fmt.Errorf("real observation space has zero total span")
		}
		if params.RNought < 0 || params.RNought > 1 {
			return nil, fmt.Errorf("r_nought must be in [0, 1], got %v", params.RNought)
		}
		if params.MutSigmaPcnt < 0 {
			return nil, fmt.Errorf("mut_sigma_pcnt must be >= 0, got %v", params.MutSigmaPcnt)
		}
		return &RealEncoding{unorderedBound: base}, nil
	default:
		return nil, fmt.Errorf("unsupported dimension kind: %s", kind)
	}
}

type unorderedBound struct {
	space  scape.ObservationSpace
	params EncodingParams
}

func (e unorderedBound) ObservationSpace() scape.ObservationSpace {
	return e.space
}

func (e unorderedBound) decode(alleles []float64, kind scape.DimKind) []Interval {
	if len(alleles) != 2*len(e.space) {
		panic(fmt.Sprintf("genotype: decode got %d alleles for %d dimensions", len(alleles), len(e.space)))
	}
	phenotype := make([]Interval, 0, len(e.space))
	for i := 0; i < len(alleles); i += 2 {
		first, second := alleles[i], alleles[i+1]
		phenotype = append(phenotype, NewInterval(math.Min(first, second), math.Max(first, second), kind))
	}
	return phenotype
}

func (e unorderedBound) generalityRatio(phenotype []Interval) float64 {
	numer := 0.0
	for _, interval := range phenotype {
		numer += interval.Span()
	}
	denom := 0.0
	for _, dim := range e.space {
		denom += dim.Span()
	}
	return numer / denom
}

func (e unorderedBound) mutate(rng *rand.Rand, alleles []float64, noise func(*rand.Rand, int) float64) []float64 {
	if len(alleles) != 2*len(e.space) {
		panic(fmt.Sprintf("genotype: mutate got %d alleles for %d dimensions", len(alleles), len(e.space)))
	}
	out := make([]float64, len(alleles))
	for i, allele := range alleles {
		if rng.Float64() < e.params.PMut {
			dimIdx := i / 2
			dim := e.space[dimIdx]
			allele = clamp(allele+noise(rng, dimIdx), dim.Lower, dim.Upper)
		}
		out[i] = allele
	}
	return out
}

// IntegerEncoding draws integral alleles and mutates them with signed
// geometric noise whose scale follows each dimension's span.
type IntegerEncoding struct {
	unorderedBound
	geomP []float64
}

func (e *IntegerEncoding) Kind() scape.DimKind {
	return scape.DimInteger
}

func (e *IntegerEncoding) InitConditionAlleles(rng *rand.Rand) []float64 {
	alleles := make([]float64, 0, 2*len(e.space))
	for _, dim := range e.space {
		for range 2 {
			lo, hi := int64(dim.Lower), int64(dim.Upper)
			alleles = append(alleles, float64(lo+rng.Int64N(hi-lo+1)))
		}
	}
	return alleles
}

func (e *IntegerEncoding) Decode(alleles []float64) []Interval {
	return e.decode(alleles, scape.DimInteger)
}

func (e *IntegerEncoding) Generality(phenotype []Interval) float64 {
	generality := e.generalityRatio(phenotype)
	if !(generality > 0 && generality <= generalityUpperIncl) {
		panic(fmt.Sprintf("genotype: integer condition generality %v outside (0, 1]", generality))
	}
	return generality
}

func (e *IntegerEncoding) MutateConditionAlleles(rng *rand.Rand, alleles []float64) []float64 {
	return e.mutate(rng, alleles, e.noise)
}

func (e *IntegerEncoding) noise(rng *rand.Rand, dimIdx int) float64 {
	var magnitude int64
	if e.params.MNought > 0 {
		magnitude = 1 + rng.Int64N(int64(e.params.MNought))
	} else {
		magnitude = sampleShiftedGeometric(rng, e.geomP[dimIdx])
	}
	if rng.IntN(2) == 0 {
		return -float64(magnitude)
	}
	return float64(magnitude)
}

// RealEncoding draws continuous alleles with extra mass on the dimension
// bounds and mutates them with Gaussian noise.
type RealEncoding struct {
	unorderedBound
}

func (e *RealEncoding) Kind() scape.DimKind {
	return scape.DimReal
}

func (e *RealEncoding) InitConditionAlleles(rng *rand.Rand) []float64 {
	alleles := make([]float64, 0, 2*len(e.space))
	for _, dim := range e.space {
		span := dim.Span()
		for range 2 {
			v := dim.Lower + rng.Float64()*span
			jitter := (2*rng.Float64() - 1) * e.params.RNought * span
			alleles = append(alleles, clamp(v+jitter, dim.Lower, dim.Upper))
		}
	}
	return alleles
}

func (e *RealEncoding) Decode(alleles []float64) []Interval {
	return e.decode(alleles, scape.DimReal)
}

func (e *RealEncoding) Generality(phenotype []Interval) float64 {
	generality := e.generalityRatio(phenotype)
	if !(generality >= 0 && generality <= generalityUpperIncl) {
		panic(fmt.Sprintf("genotype: real condition generality %v outside [0, 1]", generality))
	}
	return generality
}

func (e *RealEncoding) MutateConditionAlleles(rng *rand.Rand, alleles []float64) []float64 {
	return e.mutate(rng, alleles, func(rng *rand.Rand, dimIdx int) float64 {
		normal := distuv.Normal{
			Mu:    0,
			Sigma: e.params.MutSigmaPcnt * e.space[dimIdx].Span(),
			Src:   rng,
		}
		return normal.Rand()
	})
}

// geometricSuccessProb solves 1-(1-p)^n = geometricTargetMass for
// n = floor(span/2), at least one step.
func geometricSuccessProb(span float64) float64 {
	n := math.Max(1, math.Floor(span/2))
	return 1 - math.Pow(1-geometricTargetMass, 1/n)
}

// sampleShiftedGeometric draws from the geometric distribution on {1, 2, ...}
// by inversion.
func sampleShiftedGeometric(rng *rand.Rand, p float64) int64 {
	u := rng.Float64()
	k := math.Ceil(math.Log1p(-u) / math.Log1p(-p))
	if k < 1 || math.IsNaN(k) {
		return 1
	}
	return int64(k)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
