package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// BatchSummary aggregates runs that differ only by seed.
type BatchSummary struct {
	Runs     int     `json:"runs"`
	BestMean float64 `json:"best_mean"`
	BestStd  float64 `json:"best_std"`
	BestMax  float64 `json:"best_max"`
	BestMin  float64 `json:"best_min"`
	Goals    int     `json:"goals_reached"`
	// MeanCurve is the per-generation mean of every run's best perf.
	MeanCurve []CurvePoint `json:"mean_curve"`
}

type CurvePoint struct {
	Generation int     `json:"generation"`
	Mean       float64 `json:"mean"`
	Max        float64 `json:"max"`
	Runs       int     `json:"runs"`
}

// SummarizeBatch reduces each run's best-by-generation series. The final
// element of each series is that run's final best.
func SummarizeBatch(bestByGeneration [][]float64, goalsReached int) BatchSummary {
	finalBest := make([]float64, 0, len(bestByGeneration))
	for _, series := range bestByGeneration {
		if len(series) > 0 {
			finalBest = append(finalBest, series[len(series)-1])
		}
	}

	summary := BatchSummary{
		Runs:      len(bestByGeneration),
		Goals:     goalsReached,
		MeanCurve: MeanCurve(bestByGeneration),
	}
	if len(finalBest) == 0 {
		return summary
	}
	summary.BestMean = stat.Mean(finalBest, nil)
	summary.BestMax = floats.Max(finalBest)
	summary.BestMin = floats.Min(finalBest)
	if len(finalBest) > 1 {
		summary.BestStd = stat.StdDev(finalBest, nil)
	}
	return summary
}

// MeanCurve averages ragged series position by position. Runs that stopped
// early drop out of later points, so Runs counts the contributors.
func MeanCurve(series [][]float64) []CurvePoint {
	longest := 0
	for _, s := range series {
		longest = max(longest, len(s))
	}

	points := make([]CurvePoint, 0, longest)
	values := make([]float64, 0, len(series))
	for gen := range longest {
		values = values[:0]
		for _, s := range series {
			if gen < len(s) {
				values = append(values, s[gen])
			}
		}
		points = append(points, CurvePoint{
			Generation: gen,
			Mean:       stat.Mean(values, nil),
			Max:        floats.Max(values),
			Runs:       len(values),
		})
	}
	return points
}
