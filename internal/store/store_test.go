package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jmarrett/adaptive-trial-sim/internal/design"
	"github.com/jmarrett/adaptive-trial-sim/internal/interim"
	"github.com/jmarrett/adaptive-trial-sim/internal/mixedmodel"
	"github.com/jmarrett/adaptive-trial-sim/internal/trial"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testReport() *trial.RunReport {
	mk := func(iter int, region interim.Region, totalN, power int) trial.FinalResult {
		return trial.FinalResult{
			IterID: iter,
			Stage1: mixedmodel.StageResult{
				IterID: iter, Diff: -1.2, StdErr: 0.4, TValue: -3.0, DF: 81.5, ZValue: -2.9, Converged: true,
			},
			Stage2: mixedmodel.StageResult{
				IterID: iter, Diff: -1.1, StdErr: 0.5, TValue: -2.2, DF: 77.0, ZValue: -2.1, Converged: true,
			},
			Decision: interim.Decision{
				IterID: iter, Region: region, CondPow: 0.42, CondPow2: 0.40, N2New: 50, TotalN: totalN,
			},
			ZCombined: 2.31,
			Power:     power,
		}
	}
	return &trial.RunReport{
		Results: []trial.FinalResult{
			mk(1, interim.Favorable, 200, 1),
			mk(2, interim.Futile, 100, 0),
			mk(3, interim.Promising, 250, 1),
		},
		OperatingChars: []trial.OCRow{
			{Region: "FUTILE", Count: 1, AvgTotalN: 100, AvgCondPow: 0.42, FutFlag: 1},
			{Region: "Overall", Count: 3, AvgTotalN: 183.3, AvgCondPow: 0.42, FutFlag: 1.0 / 3, Power: 2.0 / 3},
		},
		Dropped: trial.Dropped{Stage1: 2, Stage2: 1},
		Elapsed: 1500 * time.Millisecond,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := testStore(t)
	cfg := design.DefaultConfig()
	report := testReport()

	runID, err := s.SaveRun(cfg, report)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if runID == "" {
		t.Fatal("empty run ID")
	}

	rec, err := s.LoadRun(runID)
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if rec.RunID != runID {
		t.Errorf("run ID mismatch: %s vs %s", rec.RunID, runID)
	}
	if rec.Config != cfg {
		t.Errorf("config snapshot mismatch: %+v", rec.Config)
	}
	if rec.Dropped != report.Dropped {
		t.Errorf("dropped mismatch: %+v", rec.Dropped)
	}
	if rec.Elapsed != report.Elapsed {
		t.Errorf("elapsed mismatch: %v", rec.Elapsed)
	}
	if len(rec.Results) != len(report.Results) {
		t.Fatalf("got %d results, want %d", len(rec.Results), len(report.Results))
	}
	for i, got := range rec.Results {
		want := report.Results[i]
		if got.IterID != want.IterID || got.Decision.Region != want.Decision.Region ||
			got.Power != want.Power || got.Decision.TotalN != want.Decision.TotalN {
			t.Errorf("result %d: got %+v want %+v", i, got, want)
		}
		if got.Stage1.Diff != want.Stage1.Diff || got.Stage2.DF != want.Stage2.DF {
			t.Errorf("result %d stage fields: got %+v", i, got)
		}
	}
	if len(rec.OperatingChars) != 2 {
		t.Fatalf("got %d oc rows, want 2", len(rec.OperatingChars))
	}
	// Overall sorts last regardless of insert order.
	if rec.OperatingChars[len(rec.OperatingChars)-1].Region != "Overall" {
		t.Errorf("Overall row not last: %+v", rec.OperatingChars)
	}
}

func TestLoadRunResultsOrdered(t *testing.T) {
	s := testStore(t)
	report := testReport()
	report.Results[0], report.Results[2] = report.Results[2], report.Results[0]

	runID, err := s.SaveRun(design.DefaultConfig(), report)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	rec, err := s.LoadRun(runID)
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	for i := 1; i < len(rec.Results); i++ {
		if rec.Results[i].IterID <= rec.Results[i-1].IterID {
			t.Fatalf("results not ordered by iter: %d after %d",
				rec.Results[i].IterID, rec.Results[i-1].IterID)
		}
	}
}

func TestLoadRunMissing(t *testing.T) {
	s := testStore(t)
	if _, err := s.LoadRun("no-such-run"); err == nil {
		t.Fatal("expected error for missing run")
	}
}

func TestListRuns(t *testing.T) {
	s := testStore(t)
	cfg := design.DefaultConfig()

	id1, err := s.SaveRun(cfg, testReport())
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	id2, err := s.SaveRun(cfg, testReport())
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].RunID != id2 || runs[1].RunID != id1 {
		t.Errorf("runs not newest-first: %s, %s", runs[0].RunID, runs[1].RunID)
	}
	if runs[0].Converged != 3 {
		t.Errorf("converged count = %d, want 3", runs[0].Converged)
	}
	if runs[0].Dropped.Stage1 != 2 {
		t.Errorf("dropped stage1 = %d, want 2", runs[0].Dropped.Stage1)
	}

	runs, err = s.ListRuns(1)
	if err != nil {
		t.Fatalf("ListRuns limit: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("limit ignored: got %d runs", len(runs))
	}
}
