package trial

import (
	"sort"

	"github.com/jmarrett/adaptive-trial-sim/internal/interim"
)

// #region aggregate
// Aggregate computes the operating-characteristics table: per-zone means of
// sample size, conditional power, zone indicators, and final power over all
// converged replications, plus one "Overall" row. Rows are reduced in
// replication order regardless of input order, so the table is bit-identical
// however the replications were processed, and re-running on the same input
// yields the identical table. The zone indicator means in the Overall row
// sum to one.
func Aggregate(results []FinalResult) []OCRow {
	ordered := make([]FinalResult, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].IterID < ordered[j].IterID })
	results = ordered

	var rows []OCRow
	for _, region := range interim.Regions() {
		subset := make([]FinalResult, 0, len(results))
		for _, r := range results {
			if r.Decision.Region == region {
				subset = append(subset, r)
			}
		}
		if len(subset) == 0 {
			continue
		}
		rows = append(rows, meansOf(region.String(), subset))
	}
	if len(results) > 0 {
		rows = append(rows, meansOf("Overall", results))
	}
	return rows
}

func meansOf(label string, subset []FinalResult) OCRow {
	row := OCRow{Region: label, Count: len(subset)}
	n := float64(len(subset))
	for _, r := range subset {
		row.AvgTotalN += float64(r.Decision.TotalN)
		row.AvgCondPow += r.Decision.CondPow
		row.FutFlag += r.ZoneFlag(interim.Futile)
		row.UnfFlag += r.ZoneFlag(interim.Unfavorable)
		row.PrmFlag += r.ZoneFlag(interim.Promising)
		row.FavFlag += r.ZoneFlag(interim.Favorable)
		row.EffFlag += r.ZoneFlag(interim.Efficacious)
		row.Power += float64(r.Power)
	}
	row.AvgTotalN /= n
	row.AvgCondPow /= n
	row.FutFlag /= n
	row.UnfFlag /= n
	row.PrmFlag /= n
	row.FavFlag /= n
	row.EffFlag /= n
	row.Power /= n
	return row
}

// #endregion aggregate
