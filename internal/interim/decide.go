// Package interim classifies each converged stage-1 replication into a
// decision zone from its conditional power and re-estimates the stage-2
// sample size. Zone checks run in a fixed order with inclusive bounds on
// both sides of shared thresholds: a conditional power exactly on a
// boundary belongs to the first matching zone.
package interim

import (
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jmarrett/adaptive-trial-sim/internal/design"
	"github.com/jmarrett/adaptive-trial-sim/internal/mixedmodel"
)

// #region conditional-power
// ConditionalPower is the probability of final success given the stage-1
// z statistic, assuming the observed trend continues through stage 2.
func ConditionalPower(z float64, d design.Derived, cst2 float64) float64 {
	return 1 - distuv.UnitNormal.CDF(cst2/d.W2-z*d.WRatio-z/d.WRatio)
}

// conditionalPowerNull drops the stage-2 drift term: success probability if
// the stage-2 data carry no treatment effect. Diagnostic column only.
func conditionalPowerNull(z float64, d design.Derived, cst2 float64) float64 {
	return 1 - distuv.UnitNormal.CDF(cst2/d.W2 - z*d.WRatio)
}

// #endregion conditional-power

// #region decide
// Decide classifies one converged stage-1 result. The zone table is
// first-match-wins:
//
//	CondPow <  cp1fut                    -> FUTILE  (size unchanged)
//	cp1fut  <= CondPow <= cp1lowpz       -> UNFAVO  (size unchanged)
//	cp1lowpz <= CondPow <= cp2highpz     -> PROMIS  (size raised to nmax)
//	CondPow >  cp2highpz, t >  cst1      -> FAVORA  (size unchanged)
//	CondPow >  cp2highpz, t <= cst1      -> EFFICA  (size unchanged)
func Decide(s1 mixedmodel.StageResult, cfg design.Config, d design.Derived) Decision {
	cp := ConditionalPower(s1.ZValue, d, cfg.Cst2)

	dec := Decision{
		IterID:   s1.IterID,
		CondPow:  cp,
		CondPow2: conditionalPowerNull(s1.ZValue, d, cfg.Cst2),
		N2New:    cfg.Nst2,
	}

	dec.Region = classify(cp, s1.TValue, cfg)
	if dec.Region == Promising {
		dec.N2New = d.TotalNst2Max / 2
	}
	dec.TotalN = d.TotalNst1 + 2*dec.N2New
	return dec
}

// classify walks the zone table in order. Inclusive bounds at shared
// thresholds mean a boundary value lands in the earlier zone.
func classify(cp, tval float64, cfg design.Config) Region {
	switch {
	case cp < cfg.Cp1Fut:
		return Futile
	case cp >= cfg.Cp1Fut && cp <= cfg.Cp1LowPZ:
		return Unfavorable
	case cp >= cfg.Cp1LowPZ && cp <= cfg.Cp2HighPZ:
		return Promising
	case tval > cfg.Cst1:
		return Favorable
	default:
		return Efficacious
	}
}

// #endregion decide
