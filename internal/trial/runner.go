// Package trial drives the full two-stage adaptive simulation: stage-1 data
// generation and model fits, the interim decision per replication, the
// re-sized stage-2 re-run, the combination test, and the final
// operating-characteristics aggregation.
package trial

import (
	"fmt"
	"log"
	"math"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/jmarrett/adaptive-trial-sim/internal/corrmat"
	"github.com/jmarrett/adaptive-trial-sim/internal/design"
	"github.com/jmarrett/adaptive-trial-sim/internal/interim"
	"github.com/jmarrett/adaptive-trial-sim/internal/longdata"
	"github.com/jmarrett/adaptive-trial-sim/internal/mixedmodel"
	"github.com/jmarrett/adaptive-trial-sim/internal/mvnorm"
)

// Stage-2 seed derivation: seed = ceil(base + mult*iterID), with a distinct
// multiplier per arm so streams never collide across arms or replications.
const (
	seedMultArm0 = 11.17
	seedMultArm1 = 13.31
)

func stage2Seed(base int64, mult float64, iterID int) int64 {
	return int64(math.Ceil(float64(base) + mult*float64(iterID)))
}

// #region runner
// Runner owns one simulation run: a validated design, the two read-only
// correlation structures, and the model layout.
type Runner struct {
	cfg   design.Config
	der   design.Derived
	model mixedmodel.ModelConfig
	arm0  *corrmat.Structure
	arm1  *corrmat.Structure
}

// NewRunner validates the design against the correlation structures.
func NewRunner(cfg design.Config, arm0, arm1 *corrmat.Structure) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if arm0.Visits() != arm1.Visits() {
		return nil, fmt.Errorf("trial: arm structures disagree on visits: %d vs %d", arm0.Visits(), arm1.Visits())
	}
	model := mixedmodel.DefaultModelConfig()
	model.Visits = arm0.Visits()
	if model.Visits < model.LandmarkVisit {
		return nil, fmt.Errorf("trial: %d visits cannot contain landmark visit %d", model.Visits, model.LandmarkVisit)
	}
	return &Runner{cfg: cfg, der: cfg.Derive(), model: model, arm0: arm0, arm1: arm1}, nil
}

func (r *Runner) workers() int {
	if r.cfg.Workers > 0 {
		return r.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// #endregion runner

// #region run

type slotStatus int

const (
	slotEmpty slotStatus = iota
	slotDrop1
	slotDrop2
	slotOK
)

type slot struct {
	status slotStatus
	res    FinalResult
}

// Run executes the whole simulation. Replications are independent once the
// stage-1 streams are drawn, so the per-replication work (stage-1 fit,
// interim decision, stage-2 generation and fit, combination) fans out over
// a bounded worker pool; each worker owns exactly its own slot, and all
// per-replication seeds depend on the replication index alone, so the
// output is identical regardless of scheduling.
func (r *Runner) Run() (*RunReport, error) {
	start := time.Now()
	visits := r.model.Visits

	// Stage-1: one flat draw stream per arm covering every replication.
	gen0, err := mvnorm.New(r.arm0, r.cfg.Seed11)
	if err != nil {
		return nil, err
	}
	gen1, err := mvnorm.New(r.arm1, r.cfg.Seed21)
	if err != nil {
		return nil, err
	}
	rows0, err := longdata.Reshape(gen0.Draw(r.cfg.Nst1*r.cfg.Iter), r.cfg.Nst1, 0, 0, visits)
	if err != nil {
		return nil, err
	}
	rows1, err := longdata.Reshape(gen1.Draw(r.cfg.Nst1*r.cfg.Iter), r.cfg.Nst1, 1, r.cfg.Nst1, visits)
	if err != nil {
		return nil, err
	}
	stage1, err := longdata.Assemble(rows0, rows1)
	if err != nil {
		return nil, err
	}
	groups := longdata.SplitByIter(stage1)

	log.Printf("[SIM] stage1 assembled: %d replications, %d subjects/arm, %d rows",
		r.cfg.Iter, r.cfg.Nst1, len(stage1))

	slots := make([]slot, r.cfg.Iter)
	workers := pool.New().WithMaxGoroutines(r.workers()).WithErrors()
	for i := 1; i <= r.cfg.Iter; i++ {
		iterID := i
		workers.Go(func() error {
			rows, ok := groups[iterID]
			if !ok {
				return fmt.Errorf("trial: replication %d missing from stage-1 table", iterID)
			}
			s1, err := mixedmodel.Fit(iterID, rows, r.model)
			if err != nil {
				return fmt.Errorf("trial: stage-1 fit iter %d: %w", iterID, err)
			}
			if !s1.Converged {
				slots[iterID-1].status = slotDrop1
				return nil
			}

			dec := interim.Decide(s1, r.cfg, r.der)

			s2, err := r.runStage2(iterID, dec.N2New)
			if err != nil {
				return fmt.Errorf("trial: stage-2 iter %d: %w", iterID, err)
			}
			if !s2.Converged {
				slots[iterID-1].status = slotDrop2
				return nil
			}

			slots[iterID-1] = slot{
				status: slotOK,
				res:    Combine(s1, s2, dec, r.der, r.cfg.Cst2),
			}
			return nil
		})
	}
	if err := workers.Wait(); err != nil {
		return nil, err
	}

	report := &RunReport{}
	for _, s := range slots {
		switch s.status {
		case slotDrop1:
			report.Dropped.Stage1++
		case slotDrop2:
			report.Dropped.Stage2++
		case slotOK:
			report.Results = append(report.Results, s.res)
		}
	}
	report.OperatingChars = Aggregate(report.Results)
	report.Elapsed = time.Since(start)

	log.Printf("[SIM] run complete: %d converged, %d dropped stage1, %d dropped stage2, elapsed=%s",
		len(report.Results), report.Dropped.Stage1, report.Dropped.Stage2, report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// runStage2 regenerates and fits one replication at its re-estimated size.
// Every intermediate table is local to this call and dropped on return, so
// at most one replication's stage-2 data is alive per worker.
func (r *Runner) runStage2(iterID, n2 int) (mixedmodel.StageResult, error) {
	gen0, err := mvnorm.New(r.arm0, stage2Seed(r.cfg.Seed12, seedMultArm0, iterID))
	if err != nil {
		return mixedmodel.StageResult{}, err
	}
	gen1, err := mvnorm.New(r.arm1, stage2Seed(r.cfg.Seed22, seedMultArm1, iterID))
	if err != nil {
		return mixedmodel.StageResult{}, err
	}

	visits := r.model.Visits
	rows0, err := longdata.Reshape(gen0.Draw(n2), n2, 0, 0, visits)
	if err != nil {
		return mixedmodel.StageResult{}, err
	}
	rows1, err := longdata.Reshape(gen1.Draw(n2), n2, 1, n2, visits)
	if err != nil {
		return mixedmodel.StageResult{}, err
	}
	rows, err := longdata.Assemble(rows0, rows1)
	if err != nil {
		return mixedmodel.StageResult{}, err
	}
	// The reshape saw a single replication; tag the rows with their owner.
	for i := range rows {
		rows[i].IterID = iterID
	}
	return mixedmodel.Fit(iterID, rows, r.model)
}

// #endregion run
