package trial

import (
	"time"

	"github.com/jmarrett/adaptive-trial-sim/internal/interim"
	"github.com/jmarrett/adaptive-trial-sim/internal/mixedmodel"
)

// #region final-result
// FinalResult joins one replication's stage results with its interim
// decision and the combination test outcome.
type FinalResult struct {
	IterID    int
	Stage1    mixedmodel.StageResult
	Stage2    mixedmodel.StageResult
	Decision  interim.Decision
	ZCombined float64
	Power     int // 1 = final success
}

// ZoneFlag returns the 0/1 indicator for a region.
func (f FinalResult) ZoneFlag(r interim.Region) float64 {
	if f.Decision.Region == r {
		return 1
	}
	return 0
}

// #endregion final-result

// #region oc-row
// OCRow is one operating-characteristics row: per-zone (or overall) means
// across converged replications.
type OCRow struct {
	Region     string // zone name or "Overall"
	Count      int
	AvgTotalN  float64
	AvgCondPow float64
	FutFlag    float64 // empirical proportion classified FUTILE
	UnfFlag    float64
	PrmFlag    float64
	FavFlag    float64
	EffFlag    float64
	Power      float64
}

// #endregion oc-row

// #region report
// Dropped counts replications excluded for non-convergence, per stage.
// The source deleted these rows silently; surfacing the counts keeps the
// data loss observable.
type Dropped struct {
	Stage1 int
	Stage2 int
}

// RunReport is the engine's complete output: the two tables the external
// collaborator persists, plus run diagnostics.
type RunReport struct {
	Results        []FinalResult
	OperatingChars []OCRow
	Dropped        Dropped
	Elapsed        time.Duration
}

// #endregion report
