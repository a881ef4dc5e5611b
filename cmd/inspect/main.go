package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/jmarrett/adaptive-trial-sim/internal/store"
	"github.com/jmarrett/adaptive-trial-sim/internal/trial"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to results database")
	last := flag.Int("last", 20, "show N most recent runs")
	runID := flag.String("run", "", "show single run detail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/runs.db [--last N] [--run id] [--json]")
		os.Exit(2)
	}

	s, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	if *runID != "" {
		if err := runDetailMode(s, *runID, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	} else {
		if err := runListMode(s, *last, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID        string `json:"run_id"`
	CreatedAt    string `json:"created_at"`
	Replications int    `json:"replications"`
	Converged    int    `json:"converged"`
	Dropped1     int    `json:"dropped_stage1"`
	Dropped2     int    `json:"dropped_stage2"`
	ElapsedMS    int64  `json:"elapsed_ms"`
}

func runListMode(s *store.Store, last int, jsonOut bool) error {
	runs, err := s.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	rows := make([]listRow, len(runs))
	for i, r := range runs {
		rows[i] = listRow{
			RunID:        r.RunID,
			CreatedAt:    r.CreatedAt.Format("2006-01-02T15:04:05Z"),
			Replications: r.Replications,
			Converged:    r.Converged,
			Dropped1:     r.Dropped.Stage1,
			Dropped2:     r.Dropped.Stage2,
			ElapsedMS:    r.Elapsed.Milliseconds(),
		}
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-12s  %8s  %9s  %6s  %6s  %8s  %s\n",
		"Run", "Reps", "Converged", "Drop1", "Drop2", "Elapsed", "Time")
	fmt.Printf("%-12s+-%8s+-%9s+-%6s+-%6s+-%8s+-%s\n",
		"------------", "--------", "---------", "------", "------", "--------", "--------------------")
	for _, r := range rows {
		fmt.Printf("%-12s  %8d  %9d  %6d  %6d  %7.1fs  %s\n",
			shortID(r.RunID), r.Replications, r.Converged, r.Dropped1, r.Dropped2,
			float64(r.ElapsedMS)/1000, r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	RunID          string              `json:"run_id"`
	CreatedAt      string              `json:"created_at"`
	Replications   int                 `json:"replications"`
	Converged      int                 `json:"converged"`
	Dropped1       int                 `json:"dropped_stage1"`
	Dropped2       int                 `json:"dropped_stage2"`
	ElapsedMS      int64               `json:"elapsed_ms"`
	OperatingChars []trial.OCRow       `json:"operating_chars"`
	Results        []trial.FinalResult `json:"results,omitempty"`
}

func runDetailMode(s *store.Store, runID string, jsonOut bool) error {
	rec, err := s.LoadRun(runID)
	if err != nil {
		return err
	}

	out := detailOutput{
		RunID:          rec.RunID,
		CreatedAt:      rec.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Replications:   rec.Replications,
		Converged:      len(rec.Results),
		Dropped1:       rec.Dropped.Stage1,
		Dropped2:       rec.Dropped.Stage2,
		ElapsedMS:      rec.Elapsed.Milliseconds(),
		OperatingChars: rec.OperatingChars,
	}

	if jsonOut {
		out.Results = rec.Results
		return printJSON(out)
	}

	fmt.Printf("Run:          %s\n", out.RunID)
	fmt.Printf("Created:      %s\n", out.CreatedAt)
	fmt.Printf("Replications: %d (%d converged, %d+%d dropped)\n",
		out.Replications, out.Converged, out.Dropped1, out.Dropped2)
	fmt.Printf("Elapsed:      %.1fs\n", float64(out.ElapsedMS)/1000)

	fmt.Printf("\n%-8s  %6s  %10s  %8s  %7s\n", "Zone", "N", "Avg Total", "Avg CP", "Power")
	fmt.Printf("%-8s+-%6s+-%10s+-%8s+-%7s\n",
		"--------", "------", "----------", "--------", "-------")
	for _, row := range rec.OperatingChars {
		fmt.Printf("%-8s  %6d  %10.1f  %8.4f  %7.4f\n",
			row.Region, row.Count, row.AvgTotalN, row.AvgCondPow, row.Power)
	}
	return nil
}

// #endregion detail-mode

// #region helpers

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion helpers
