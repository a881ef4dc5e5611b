package trial

import (
	"github.com/jmarrett/adaptive-trial-sim/internal/design"
	"github.com/jmarrett/adaptive-trial-sim/internal/interim"
	"github.com/jmarrett/adaptive-trial-sim/internal/mixedmodel"
)

// #region combine
// Combine applies the fixed-weight combination test to one replication's
// stage z statistics and settles the final success call. The weights come
// from the planned stage sizes and do not move with re-estimation. Interim
// decisions override the combination test: EFFICA was already a success at
// the interim, FUTILE stopped for futility.
func Combine(s1, s2 mixedmodel.StageResult, dec interim.Decision, d design.Derived, cst2 float64) FinalResult {
	z := d.W1*s1.ZValue + d.W2*s2.ZValue

	power := 0
	if z > cst2 {
		power = 1
	}
	switch dec.Region {
	case interim.Efficacious:
		power = 1
	case interim.Futile:
		power = 0
	}

	return FinalResult{
		IterID:    s1.IterID,
		Stage1:    s1,
		Stage2:    s2,
		Decision:  dec,
		ZCombined: z,
		Power:     power,
	}
}

// #endregion combine
