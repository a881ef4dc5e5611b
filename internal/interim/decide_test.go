package interim

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jmarrett/adaptive-trial-sim/internal/design"
	"github.com/jmarrett/adaptive-trial-sim/internal/mixedmodel"
)

func testDesign(t *testing.T) (design.Config, design.Derived) {
	t.Helper()
	cfg := design.DefaultConfig() // nst1=50 nst2=50 nmax=75, cst2=1.960395
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg, cfg.Derive()
}

// zForCondPow inverts the conditional-power formula for the equal-stage
// design (wratio == 1): cp = 1 - Phi(cst2/w2 - 2z).
func zForCondPow(cp float64, d design.Derived, cst2 float64) float64 {
	return (cst2/d.W2 - distuv.UnitNormal.Quantile(1-cp)) / 2
}

func stage1(iterID int, z, tval float64) mixedmodel.StageResult {
	return mixedmodel.StageResult{IterID: iterID, ZValue: z, TValue: tval, Converged: true}
}

func TestConditionalPowerRoundTrip(t *testing.T) {
	cfg, d := testDesign(t)
	for _, cp := range []float64{0.05, 0.3, 0.5, 0.9, 0.99} {
		z := zForCondPow(cp, d, cfg.Cst2)
		got := ConditionalPower(z, d, cfg.Cst2)
		if math.Abs(got-cp) > 1e-9 {
			t.Fatalf("cp round trip: want %v got %v", cp, got)
		}
	}
}

func TestZoneClassification(t *testing.T) {
	cfg, d := testDesign(t)

	cases := []struct {
		name   string
		cp     float64
		tval   float64
		region Region
	}{
		{"futile", 0.05, 0.5, Futile},
		{"unfavorable", 0.20, 0.8, Unfavorable},
		{"promising", 0.60, 1.5, Promising},
		{"favorable", 0.95, 4.2, Favorable},
		{"efficacious", 0.95, 1.0, Efficacious},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			z := zForCondPow(tc.cp, d, cfg.Cst2)
			dec := Decide(stage1(1, z, tc.tval), cfg, d)
			if dec.Region != tc.region {
				t.Fatalf("cp=%v t=%v: got %s want %s", tc.cp, tc.tval, dec.Region, tc.region)
			}
			if math.Abs(dec.CondPow-tc.cp) > 1e-9 {
				t.Fatalf("stored CondPow %v, want %v", dec.CondPow, tc.cp)
			}
		})
	}
}

func TestBoundaryFirstMatchWins(t *testing.T) {
	cfg, _ := testDesign(t)

	// Shared boundaries land in the earlier zone, and the partition covers
	// every (cp, t) pair with exactly one zone.
	cases := []struct {
		cp, tval float64
		region   Region
	}{
		{cfg.Cp1Fut, 0, Unfavorable},   // lower edge of UNFAVO is inclusive
		{cfg.Cp1LowPZ, 0, Unfavorable}, // tie goes to UNFAVO, not PROMIS
		{cfg.Cp2HighPZ, 9, Promising},  // tie goes to PROMIS, not FAVORA
		{cfg.Cst1, 0, Unfavorable},     // cst1 only matters above cp2highpz
	}
	for _, tc := range cases {
		if got := classify(tc.cp, tc.tval, cfg); got != tc.region {
			t.Fatalf("classify(%v, %v) = %s, want %s", tc.cp, tc.tval, got, tc.region)
		}
	}

	// Above cp2highpz the t threshold itself is exclusive upward: t == cst1
	// is EFFICA, anything above is FAVORA.
	if got := classify(0.99, cfg.Cst1, cfg); got != Efficacious {
		t.Fatalf("t == cst1 above cp2highpz must be EFFICA, got %s", got)
	}
	if got := classify(0.99, cfg.Cst1+1e-9, cfg); got != Favorable {
		t.Fatalf("t just above cst1 must be FAVORA, got %s", got)
	}
}

func TestStage2Sizing(t *testing.T) {
	cfg, d := testDesign(t)

	// PROMIS raises the per-arm size to nmax; everyone else keeps nst2.
	z := zForCondPow(0.6, d, cfg.Cst2)
	dec := Decide(stage1(1, z, 1.0), cfg, d)
	if dec.Region != Promising || dec.N2New != cfg.Nmax {
		t.Fatalf("promising: got region=%s n2new=%d, want PROMIS %d", dec.Region, dec.N2New, cfg.Nmax)
	}
	if dec.TotalN != d.TotalNst1+2*cfg.Nmax {
		t.Fatalf("promising TotalN %d, want %d", dec.TotalN, d.TotalNst1+2*cfg.Nmax)
	}

	for _, cp := range []float64{0.05, 0.2, 0.95} {
		z := zForCondPow(cp, d, cfg.Cst2)
		dec := Decide(stage1(1, z, 3.0), cfg, d)
		if dec.Region == Promising {
			continue
		}
		if dec.N2New != cfg.Nst2 {
			t.Fatalf("%s: n2new %d, want unchanged %d", dec.Region, dec.N2New, cfg.Nst2)
		}
	}
}

func TestScenarioFavorable(t *testing.T) {
	// Spec scenario: nst1=50, nst2=50, nmax=75, cst2=1.960395,
	// t=4.2, CondPow=0.95 -> FAVORA, N2new=50, TotalN=200.
	cfg, d := testDesign(t)
	z := zForCondPow(0.95, d, cfg.Cst2)

	dec := Decide(stage1(7, z, 4.2), cfg, d)
	if dec.Region != Favorable {
		t.Fatalf("expected FAVORA, got %s", dec.Region)
	}
	if dec.N2New != 50 || dec.TotalN != 200 {
		t.Fatalf("expected N2new=50 TotalN=200, got %d/%d", dec.N2New, dec.TotalN)
	}
}

func TestScenarioFutile(t *testing.T) {
	cfg, d := testDesign(t)
	z := zForCondPow(0.05, d, cfg.Cst2)

	dec := Decide(stage1(9, z, 0.3), cfg, d)
	if dec.Region != Futile {
		t.Fatalf("expected FUTILE, got %s", dec.Region)
	}
	if dec.N2New != cfg.Nst2 {
		t.Fatalf("futile must keep nst2, got %d", dec.N2New)
	}
}

func TestRegionStrings(t *testing.T) {
	want := []string{"FUTILE", "UNFAVO", "PROMIS", "FAVORA", "EFFICA"}
	for i, r := range Regions() {
		if r.String() != want[i] {
			t.Fatalf("region %d: got %s want %s", i, r.String(), want[i])
		}
	}
	if Region(99).String() != "UNKNOWN" {
		t.Fatal("out-of-range region should stringify as UNKNOWN")
	}
}
