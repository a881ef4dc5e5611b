package longdata

import (
	"math"
	"testing"
)

// wideDraws builds deterministic wide data: subject k's visit-t outcome is
// k*100 + t, so every (subject, visit) value is distinguishable.
func wideDraws(count, visits int) [][]float64 {
	draws := make([][]float64, count)
	for k := range draws {
		draws[k] = make([]float64, visits)
		for t := 1; t <= visits; t++ {
			draws[k][t-1] = float64(k*100 + t)
		}
	}
	return draws
}

func TestReshapeMapping(t *testing.T) {
	// 2 replications of 3 subjects, arm 1 offset by 3.
	rows, err := Reshape(wideDraws(6, 10), 3, 1, 3, 10)
	if err != nil {
		t.Fatalf("Reshape: %v", err)
	}
	if len(rows) != 60 {
		t.Fatalf("expected 60 rows, got %d", len(rows))
	}

	// Draw 0 → iter 1, sid 4 (offset). Draw 5 → iter 2, sid 6.
	first := rows[0]
	if first.IterID != 1 || first.SID != 4 || first.Trt != 1 || first.Visit != 1 {
		t.Fatalf("unexpected first row: %+v", first)
	}
	last := rows[59]
	if last.IterID != 2 || last.SID != 6 || last.Visit != 10 {
		t.Fatalf("unexpected last row: %+v", last)
	}
	if last.VisitLabel != "week 10" {
		t.Fatalf("unexpected visit label %q", last.VisitLabel)
	}
}

func TestReshapeWidthMismatch(t *testing.T) {
	draws := wideDraws(2, 9)
	if _, err := Reshape(draws, 2, 0, 0, 10); err == nil {
		t.Fatal("expected error for 9-wide draws with visits=10")
	}
}

func TestAssembleBaselineInvariant(t *testing.T) {
	arm0, _ := Reshape(wideDraws(4, 10), 2, 0, 0, 10)
	arm1, _ := Reshape(wideDraws(4, 10), 2, 1, 2, 10)

	rows, err := Assemble(arm0, arm1)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(rows) != len(arm0)+len(arm1) {
		t.Fatalf("join changed row count: %d vs %d", len(rows), len(arm0)+len(arm1))
	}

	byVisit1 := map[[2]int]float64{}
	for _, r := range rows {
		if r.Visit == 1 {
			if r.HasChg {
				t.Fatalf("baseline row iter=%d sid=%d has change defined", r.IterID, r.SID)
			}
			byVisit1[[2]int{r.IterID, r.SID}] = r.Y
		}
	}
	for _, r := range rows {
		if r.Visit == 1 {
			continue
		}
		if !r.HasChg {
			t.Fatalf("post-baseline row iter=%d sid=%d visit=%d missing change", r.IterID, r.SID, r.Visit)
		}
		want := r.Y - byVisit1[[2]int{r.IterID, r.SID}]
		if math.Abs(r.Chg-want) > 1e-12 {
			t.Fatalf("chg mismatch: got %v want %v", r.Chg, want)
		}
	}
}

func TestAssembleSIDDisjointness(t *testing.T) {
	n := 5
	arm0, _ := Reshape(wideDraws(n*3, 10), n, 0, 0, 10)
	arm1, _ := Reshape(wideDraws(n*3, 10), n, 1, n, 10)

	rows, err := Assemble(arm0, arm1)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	for iter := 1; iter <= 3; iter++ {
		sids0 := map[int]int{}
		sids1 := map[int]int{}
		for _, r := range rows {
			if r.IterID != iter || r.Visit != 1 {
				continue
			}
			if r.Trt == 0 {
				sids0[r.SID]++
			} else {
				sids1[r.SID]++
			}
		}
		for sid := 1; sid <= n; sid++ {
			if sids0[sid] != 1 {
				t.Fatalf("iter %d: arm-0 sid %d appears %d times", iter, sid, sids0[sid])
			}
			if sids1[sid+n] != 1 {
				t.Fatalf("iter %d: arm-1 sid %d appears %d times", iter, sid+n, sids1[sid+n])
			}
		}
		for sid := range sids0 {
			if _, clash := sids1[sid]; clash {
				t.Fatalf("iter %d: sid %d present in both arms", iter, sid)
			}
		}
	}
}

func TestAssembleRejectsCollisions(t *testing.T) {
	arm0, _ := Reshape(wideDraws(2, 10), 2, 0, 0, 10)
	// Same offset: arm 1 reuses arm 0's SIDs.
	arm1, _ := Reshape(wideDraws(2, 10), 2, 1, 0, 10)
	if _, err := Assemble(arm0, arm1); err == nil {
		t.Fatal("expected duplicate-observation error for colliding SIDs")
	}
}

func TestAssembleMissingBaseline(t *testing.T) {
	arm0, _ := Reshape(wideDraws(2, 10), 2, 0, 0, 10)
	// Strip subject 1's baseline row.
	trimmed := arm0[:0:0]
	for _, r := range arm0 {
		if r.SID == 1 && r.Visit == 1 {
			continue
		}
		trimmed = append(trimmed, r)
	}
	if _, err := Assemble(trimmed, nil); err == nil {
		t.Fatal("expected missing-baseline error")
	}
}

func TestSplitByIter(t *testing.T) {
	arm0, _ := Reshape(wideDraws(6, 10), 2, 0, 0, 10)
	groups := SplitByIter(arm0)

	ids := IterIDs(groups)
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Fatalf("unexpected iter ids: %v", ids)
	}
	for id, rows := range groups {
		if len(rows) != 20 {
			t.Fatalf("iter %d: expected 20 rows, got %d", id, len(rows))
		}
		for _, r := range rows {
			if r.IterID != id {
				t.Fatalf("row leaked across replication boundary: %+v in group %d", r, id)
			}
		}
	}
}
