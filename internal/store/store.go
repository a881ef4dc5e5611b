// Package store persists completed simulation runs to SQLite. The engine's
// obligation ends at the in-memory tables; this is the collaborator that
// keeps them inspectable after the process exits.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jmarrett/adaptive-trial-sim/internal/design"
	"github.com/jmarrett/adaptive-trial-sim/internal/interim"
	"github.com/jmarrett/adaptive-trial-sim/internal/trial"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	created_at     TEXT NOT NULL,
	config_json    TEXT NOT NULL,
	replications   INTEGER NOT NULL,
	dropped_stage1 INTEGER NOT NULL,
	dropped_stage2 INTEGER NOT NULL,
	elapsed_ms     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS final_results (
	run_id      TEXT NOT NULL,
	iter_id     INTEGER NOT NULL,
	region      TEXT NOT NULL,
	cond_pow    REAL NOT NULL,
	cond_pow2   REAL NOT NULL,
	n2_new      INTEGER NOT NULL,
	total_n     INTEGER NOT NULL,
	diff1       REAL NOT NULL,
	stderr1     REAL NOT NULL,
	t1          REAL NOT NULL,
	df1         REAL NOT NULL,
	z1          REAL NOT NULL,
	diff2       REAL NOT NULL,
	stderr2     REAL NOT NULL,
	t2          REAL NOT NULL,
	df2         REAL NOT NULL,
	z2          REAL NOT NULL,
	z_combined  REAL NOT NULL,
	power       INTEGER NOT NULL,
	PRIMARY KEY (run_id, iter_id),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS operating_chars (
	run_id       TEXT NOT NULL,
	region       TEXT NOT NULL,
	n            INTEGER NOT NULL,
	avg_total_n  REAL NOT NULL,
	avg_cond_pow REAL NOT NULL,
	fut_flag     REAL NOT NULL,
	unf_flag     REAL NOT NULL,
	prm_flag     REAL NOT NULL,
	fav_flag     REAL NOT NULL,
	eff_flag     REAL NOT NULL,
	power        REAL NOT NULL,
	PRIMARY KEY (run_id, region),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// #endregion schema

// #region store
// Store persists run reports in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens the database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion store

// #region records
// RunRecord is one persisted run with both tables attached.
type RunRecord struct {
	RunID          string
	CreatedAt      time.Time
	Config         design.Config
	Replications   int
	Dropped        trial.Dropped
	Elapsed        time.Duration
	Results        []trial.FinalResult
	OperatingChars []trial.OCRow
}

// RunSummary is the listing view of a run.
type RunSummary struct {
	RunID        string
	CreatedAt    time.Time
	Replications int
	Converged    int
	Dropped      trial.Dropped
	Elapsed      time.Duration
}

// #endregion records

// #region save
// SaveRun writes a report and its config snapshot atomically and returns
// the new run ID.
func (s *Store) SaveRun(cfg design.Config, report *trial.RunReport) (string, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}

	runID := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (run_id, created_at, config_json, replications, dropped_stage1, dropped_stage2, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, now.Format(time.RFC3339Nano), string(cfgJSON), cfg.Iter,
		report.Dropped.Stage1, report.Dropped.Stage2, report.Elapsed.Milliseconds(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, r := range report.Results {
		_, err = tx.Exec(
			`INSERT INTO final_results (run_id, iter_id, region, cond_pow, cond_pow2, n2_new, total_n,
			                            diff1, stderr1, t1, df1, z1, diff2, stderr2, t2, df2, z2, z_combined, power)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, r.IterID, r.Decision.Region.String(), r.Decision.CondPow, r.Decision.CondPow2,
			r.Decision.N2New, r.Decision.TotalN,
			r.Stage1.Diff, r.Stage1.StdErr, r.Stage1.TValue, r.Stage1.DF, r.Stage1.ZValue,
			r.Stage2.Diff, r.Stage2.StdErr, r.Stage2.TValue, r.Stage2.DF, r.Stage2.ZValue,
			r.ZCombined, r.Power,
		)
		if err != nil {
			return "", fmt.Errorf("insert result iter %d: %w", r.IterID, err)
		}
	}

	for _, row := range report.OperatingChars {
		_, err = tx.Exec(
			`INSERT INTO operating_chars (run_id, region, n, avg_total_n, avg_cond_pow,
			                              fut_flag, unf_flag, prm_flag, fav_flag, eff_flag, power)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, row.Region, row.Count, row.AvgTotalN, row.AvgCondPow,
			row.FutFlag, row.UnfFlag, row.PrmFlag, row.FavFlag, row.EffFlag, row.Power,
		)
		if err != nil {
			return "", fmt.Errorf("insert oc row %s: %w", row.Region, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

// #endregion save

// #region load
// LoadRun reads one run with both tables, results ordered by replication.
func (s *Store) LoadRun(runID string) (RunRecord, error) {
	var rec RunRecord
	var createdStr, cfgJSON string
	var elapsedMS int64

	err := s.db.QueryRow(
		`SELECT run_id, created_at, config_json, replications, dropped_stage1, dropped_stage2, elapsed_ms
		 FROM runs WHERE run_id = ?`, runID,
	).Scan(&rec.RunID, &createdStr, &cfgJSON, &rec.Replications,
		&rec.Dropped.Stage1, &rec.Dropped.Stage2, &elapsedMS)
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	if err := json.Unmarshal([]byte(cfgJSON), &rec.Config); err != nil {
		return RunRecord{}, fmt.Errorf("unmarshal config: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT iter_id, region, cond_pow, cond_pow2, n2_new, total_n,
		        diff1, stderr1, t1, df1, z1, diff2, stderr2, t2, df2, z2, z_combined, power
		 FROM final_results WHERE run_id = ? ORDER BY iter_id`, runID,
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r trial.FinalResult
		var region string
		if err := rows.Scan(&r.IterID, &region, &r.Decision.CondPow, &r.Decision.CondPow2,
			&r.Decision.N2New, &r.Decision.TotalN,
			&r.Stage1.Diff, &r.Stage1.StdErr, &r.Stage1.TValue, &r.Stage1.DF, &r.Stage1.ZValue,
			&r.Stage2.Diff, &r.Stage2.StdErr, &r.Stage2.TValue, &r.Stage2.DF, &r.Stage2.ZValue,
			&r.ZCombined, &r.Power); err != nil {
			return RunRecord{}, fmt.Errorf("scan result: %w", err)
		}
		r.Decision.IterID = r.IterID
		r.Stage1.IterID = r.IterID
		r.Stage2.IterID = r.IterID
		r.Stage1.Converged = true
		r.Stage2.Converged = true
		r.Decision.Region, err = parseRegion(region)
		if err != nil {
			return RunRecord{}, err
		}
		rec.Results = append(rec.Results, r)
	}
	if err := rows.Err(); err != nil {
		return RunRecord{}, err
	}

	ocRows, err := s.db.Query(
		`SELECT region, n, avg_total_n, avg_cond_pow, fut_flag, unf_flag, prm_flag, fav_flag, eff_flag, power
		 FROM operating_chars WHERE run_id = ?
		 ORDER BY CASE region WHEN 'Overall' THEN 1 ELSE 0 END, region`, runID,
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("query oc: %w", err)
	}
	defer ocRows.Close()
	for ocRows.Next() {
		var row trial.OCRow
		if err := ocRows.Scan(&row.Region, &row.Count, &row.AvgTotalN, &row.AvgCondPow,
			&row.FutFlag, &row.UnfFlag, &row.PrmFlag, &row.FavFlag, &row.EffFlag, &row.Power); err != nil {
			return RunRecord{}, fmt.Errorf("scan oc row: %w", err)
		}
		rec.OperatingChars = append(rec.OperatingChars, row)
	}
	return rec, ocRows.Err()
}

func parseRegion(name string) (interim.Region, error) {
	for _, r := range interim.Regions() {
		if r.String() == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown region %q", name)
}

// ListRuns returns the most recent runs.
func (s *Store) ListRuns(limit int) ([]RunSummary, error) {
	rows, err := s.db.Query(
		`SELECT r.run_id, r.created_at, r.replications, r.dropped_stage1, r.dropped_stage2, r.elapsed_ms,
		        (SELECT COUNT(*) FROM final_results f WHERE f.run_id = r.run_id)
		 FROM runs r ORDER BY r.created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var createdStr string
		var elapsedMS int64
		if err := rows.Scan(&s.RunID, &createdStr, &s.Replications,
			&s.Dropped.Stage1, &s.Dropped.Stage2, &elapsedMS, &s.Converged); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		s.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, s)
	}
	return out, rows.Err()
}

// #endregion load
