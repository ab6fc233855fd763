package telemetry

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats is one telemetry.csv row.
type WindowStats struct {
	WindowStartTick uint64 `csv:"-"`
	WindowEndTick   uint64 `csv:"window_end"`
	Digest          string `csv:"digest"`

	// Population at window end
	Population int `csv:"population"`
	Vine       int `csv:"vine"`
	Spine      int `csv:"spine"`
	Crystal    int `csv:"crystal"`
	Essence    int `csv:"essence"`
	Entities   int `csv:"entities"`

	// Events during window
	Spawns   int `csv:"spawns"`
	Merges   int `csv:"merges"`
	Splits   int `csv:"splits"`
	Places   int `csv:"places"`
	Discards int `csv:"discards"`
	Drops    int `csv:"drops"`

	// Budgets at window end
	TotalSpores int     `csv:"total_spores"`
	TotalWater  int     `csv:"total_water"`
	SporesMean  float64 `csv:"spores_mean"`
	SporesP50   float64 `csv:"spores_p50"`
	SporesP90   float64 `csv:"spores_p90"`
	WaterMean   float64 `csv:"water_mean"`
	MaxStage    int     `csv:"max_stage"`
}

// budgetStats returns the mean, median and 90th percentile of values.
func budgetStats(values []float64) (mean, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mean = stat.Mean(sorted, nil)
	p50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	p90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)
	return mean, p50, p90
}
