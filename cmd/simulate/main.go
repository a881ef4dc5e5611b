package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jmarrett/adaptive-trial-sim/internal/corrmat"
	"github.com/jmarrett/adaptive-trial-sim/internal/design"
	"github.com/jmarrett/adaptive-trial-sim/internal/store"
	"github.com/jmarrett/adaptive-trial-sim/internal/trial"
)

// #region main
func main() {
	cfgPath := flag.String("config", "", "design config YAML (defaults used when empty)")
	arm0Path := flag.String("arm0", "", "control-arm correlation matrix CSV")
	arm1Path := flag.String("arm1", "", "treatment-arm correlation matrix CSV")
	dbPath := flag.String("db", "", "SQLite results database (skip persistence when empty)")
	workers := flag.Int("workers", 0, "override worker count (0 = config / GOMAXPROCS)")
	visits := flag.Int("visits", 10, "scheduled visits per subject (used with --rho)")
	rho := flag.Float64("rho", 0.6, "AR(1) correlation for generated matrices (ignored with --arm0/--arm1)")
	sigma2 := flag.Float64("sigma2", 1.0, "visit variance for generated matrices")
	flag.Parse()

	cfg := design.DefaultConfig()
	if *cfgPath != "" {
		loaded, err := design.Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	arm0, arm1, err := loadStructures(*arm0Path, *arm1Path, *visits, *rho, *sigma2)
	if err != nil {
		log.Fatalf("failed to load correlation structures: %v", err)
	}

	runner, err := trial.NewRunner(cfg, arm0, arm1)
	if err != nil {
		log.Fatalf("failed to build runner: %v", err)
	}

	report, err := runner.Run()
	if err != nil {
		log.Fatalf("simulation failed: %v", err)
	}

	printOCTable(report)

	if *dbPath != "" {
		s, err := store.NewStore(*dbPath)
		if err != nil {
			log.Fatalf("failed to open store: %v", err)
		}
		defer s.Close()
		runID, err := s.SaveRun(cfg, report)
		if err != nil {
			log.Fatalf("failed to save run: %v", err)
		}
		log.Printf("[SIM] saved run %s to %s", runID, *dbPath)
	}
}

// #endregion main

// #region structures
// loadStructures reads both per-arm matrices from CSV, or generates AR(1)
// structures when no paths are given. Mixing one CSV with one generated
// matrix is rejected: the arms must come from the same source.
func loadStructures(arm0Path, arm1Path string, visits int, rho, sigma2 float64) (*corrmat.Structure, *corrmat.Structure, error) {
	if (arm0Path == "") != (arm1Path == "") {
		return nil, nil, fmt.Errorf("--arm0 and --arm1 must be given together")
	}
	if arm0Path == "" {
		st, err := corrmat.AR1(visits, rho, sigma2)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	}
	arm0, err := corrmat.FromCSV(arm0Path, visits)
	if err != nil {
		return nil, nil, fmt.Errorf("arm0: %w", err)
	}
	arm1, err := corrmat.FromCSV(arm1Path, visits)
	if err != nil {
		return nil, nil, fmt.Errorf("arm1: %w", err)
	}
	return arm0, arm1, nil
}

// #endregion structures

// #region output
func printOCTable(report *trial.RunReport) {
	fmt.Printf("Replications: %d kept, %d dropped stage 1, %d dropped stage 2 (%.1fs)\n\n",
		len(report.Results), report.Dropped.Stage1, report.Dropped.Stage2,
		report.Elapsed.Seconds())

	w := os.Stdout
	fmt.Fprintf(w, "%-8s  %6s  %10s  %8s  %6s  %6s  %6s  %6s  %6s  %7s\n",
		"Zone", "N", "Avg Total", "Avg CP", "FUT", "UNF", "PRM", "FAV", "EFF", "Power")
	fmt.Fprintf(w, "%-8s+-%6s+-%10s+-%8s+-%6s+-%6s+-%6s+-%6s+-%6s+-%7s\n",
		"--------", "------", "----------", "--------", "------", "------", "------", "------", "------", "-------")
	for _, row := range report.OperatingChars {
		fmt.Fprintf(w, "%-8s  %6d  %10.1f  %8.4f  %6.3f  %6.3f  %6.3f  %6.3f  %6.3f  %7.4f\n",
			row.Region, row.Count, row.AvgTotalN, row.AvgCondPow,
			row.FutFlag, row.UnfFlag, row.PrmFlag, row.FavFlag, row.EffFlag, row.Power)
	}
}

// #endregion output
