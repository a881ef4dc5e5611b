// Package mixedmodel fits the per-replication repeated-measures model:
// change from baseline on treatment, visit, and treatment×visit fixed
// effects with AR(1) within-subject residual correlation, estimated by
// REML with the correlation parameter profiled out. The single extract is
// the treatment contrast at the landmark visit.
package mixedmodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jmarrett/adaptive-trial-sim/internal/longdata"
)

// rhoBound keeps the correlation search away from the singular endpoints.
const rhoBound = 0.95

// pClamp bounds two-sided p-values away from {0,1} so the probit transform
// stays finite. Values beyond the clamp carry no additional information at
// float64 precision.
const pClamp = 1e-16

// #region model-assembly

// subjectSeries is one subject's ordered change-from-baseline vector over
// the post-baseline visits.
type subjectSeries struct {
	trt int
	y   []float64
}

// model is the assembled per-replication fitting problem.
type model struct {
	k        int // post-baseline visits per subject
	p        int // fixed-effect parameters
	subjects []subjectSeries
	armCount [2]int
	armYSum  [2][]float64  // per-arm elementwise sum of subject vectors
	armX     [2][][]float64 // per-arm design matrix as p column vectors of length k
	contrast []float64
}

// buildModel validates the replication's rows and assembles the design.
// Malformed input (incomplete visit vectors, unknown arms) is a hard error;
// statistical failure is signalled later through the convergence flag.
func buildModel(rows []longdata.Row, cfg ModelConfig) (*model, error) {
	if cfg.Visits < 3 {
		return nil, fmt.Errorf("mixedmodel: need at least 3 visits, got %d", cfg.Visits)
	}
	if cfg.LandmarkVisit < 2 || cfg.LandmarkVisit > cfg.Visits {
		return nil, fmt.Errorf("mixedmodel: landmark visit %d outside 2..%d", cfg.LandmarkVisit, cfg.Visits)
	}

	k := cfg.Visits - 1
	type acc struct {
		trt  int
		y    []float64
		seen []bool
	}
	bySID := map[int]*acc{}
	for _, r := range rows {
		if !r.HasChg {
			continue // baseline rows carry no response
		}
		if r.Visit < 2 || r.Visit > cfg.Visits {
			return nil, fmt.Errorf("mixedmodel: visit %d outside 2..%d", r.Visit, cfg.Visits)
		}
		if r.Trt != 0 && r.Trt != 1 {
			return nil, fmt.Errorf("mixedmodel: unknown treatment %d", r.Trt)
		}
		a, ok := bySID[r.SID]
		if !ok {
			a = &acc{trt: r.Trt, y: make([]float64, k), seen: make([]bool, k)}
			bySID[r.SID] = a
		}
		if a.trt != r.Trt {
			return nil, fmt.Errorf("mixedmodel: subject %d appears in both arms", r.SID)
		}
		idx := r.Visit - 2
		if a.seen[idx] {
			return nil, fmt.Errorf("mixedmodel: subject %d has duplicate visit %d", r.SID, r.Visit)
		}
		a.seen[idx] = true
		a.y[idx] = r.Chg
	}
	if len(bySID) == 0 {
		return nil, fmt.Errorf("mixedmodel: replication has no analyzable rows")
	}

	m := &model{k: k, p: 2 * k}
	m.armYSum[0] = make([]float64, k)
	m.armYSum[1] = make([]float64, k)
	for sid, a := range bySID {
		for t, seen := range a.seen {
			if !seen {
				return nil, fmt.Errorf("mixedmodel: subject %d missing visit %d", sid, t+2)
			}
		}
		m.subjects = append(m.subjects, subjectSeries{trt: a.trt, y: a.y})
		m.armCount[a.trt]++
		for i, v := range a.y {
			m.armYSum[a.trt][i] += v
		}
	}

	for arm := 0; arm < 2; arm++ {
		m.armX[arm] = designColumns(arm, k)
	}
	m.contrast = contrastVector(cfg.LandmarkVisit, cfg.Visits, k)
	return m, nil
}

// designColumns lays out the fixed effects in reference-cell coding with the
// last visit and treatment 1 as references: intercept, treatment-0
// indicator, visit dummies for visits 2..visits-1, and their interactions.
// Rows index post-baseline visits in order; columns are returned
// column-major for quadratic-form evaluation.
func designColumns(trt, k int) [][]float64 {
	p := 2 * k
	cols := make([][]float64, p)
	for i := range cols {
		cols[i] = make([]float64, k)
	}
	a := 0.0
	if trt == 0 {
		a = 1.0
	}
	for row := 0; row < k; row++ {
		cols[0][row] = 1.0
		cols[1][row] = a
		if row < k-1 { // last visit is the reference level
			cols[2+row][row] = 1.0
			cols[k+1+row][row] = a
		}
	}
	return cols
}

// contrastVector selects the treatment-0-minus-treatment-1 difference at
// the landmark visit: the treatment main effect plus, off the reference
// visit, the matching interaction term.
func contrastVector(landmark, visits, k int) []float64 {
	c := make([]float64, 2*k)
	c[1] = 1.0
	if landmark < visits {
		c[k+1+(landmark-2)] = 1.0
	}
	return c
}

// #endregion model-assembly

// #region gls

type glsFit struct {
	beta    *mat.VecDense
	rss     float64
	logDetA float64
	cAinvC  float64
	cBeta   float64
}

// gls solves the generalized least-squares normal equations at a fixed
// correlation parameter. All subjects in an arm share one design matrix, so
// the Gram accumulates per arm scaled by the arm's subject count.
func (m *model) gls(rho float64) (glsFit, bool) {
	q := ar1{rho: rho, k: m.k}

	A := mat.NewSymDense(m.p, nil)
	bv := make([]float64, m.p)
	for arm := 0; arm < 2; arm++ {
		if m.armCount[arm] == 0 {
			continue
		}
		X := m.armX[arm]
		cnt := float64(m.armCount[arm])
		for i := 0; i < m.p; i++ {
			for j := i; j < m.p; j++ {
				A.SetSym(i, j, A.At(i, j)+cnt*q.quad(X[i], X[j]))
			}
			bv[i] += q.quad(X[i], m.armYSum[arm])
		}
	}

	var ch mat.Cholesky
	if !ch.Factorize(A) {
		return glsFit{}, false
	}
	b := mat.NewVecDense(m.p, bv)
	beta := mat.NewVecDense(m.p, nil)
	if err := ch.SolveVecTo(beta, b); err != nil {
		return glsFit{}, false
	}

	yQuad := 0.0
	for _, s := range m.subjects {
		yQuad += q.quad(s.y, s.y)
	}
	rss := yQuad - mat.Dot(b, beta)

	cv := mat.NewVecDense(m.p, m.contrast)
	x := mat.NewVecDense(m.p, nil)
	if err := ch.SolveVecTo(x, cv); err != nil {
		return glsFit{}, false
	}

	return glsFit{
		beta:    beta,
		rss:     rss,
		logDetA: ch.LogDet(),
		cAinvC:  mat.Dot(cv, x),
		cBeta:   mat.Dot(cv, beta),
	}, true
}

// obs returns the total observation count.
func (m *model) obs() int { return len(m.subjects) * m.k }

// profileObjective is -2 times the REML log-likelihood with sigma2 and the
// fixed effects profiled out, up to an additive constant.
func (m *model) profileObjective(rho float64) float64 {
	fit, ok := m.gls(rho)
	if !ok || fit.rss <= 0 {
		return math.Inf(1)
	}
	nmp := float64(m.obs() - m.p)
	return nmp*math.Log(fit.rss) + float64(len(m.subjects))*ar1{rho: rho, k: m.k}.logDet() + fit.logDetA
}

// remlNeg2 is -2 times the full REML log-likelihood at (sigma2, rho), used
// only to approximate the covariance of the variance parameters for the
// small-sample degrees of freedom.
func (m *model) remlNeg2(sigma2, rho float64) float64 {
	fit, ok := m.gls(rho)
	if !ok || sigma2 <= 0 {
		return math.Inf(1)
	}
	nmp := float64(m.obs() - m.p)
	return nmp*math.Log(sigma2) +
		float64(len(m.subjects))*ar1{rho: rho, k: m.k}.logDet() +
		fit.logDetA + fit.rss/sigma2
}

// #endregion gls

// #region satterthwaite

// satterthwaiteDF approximates the denominator degrees of freedom for the
// landmark contrast from the curvature of the REML surface in
// (sigma2, rho). Falls back to the residual df when the numeric
// approximation degenerates.
func (m *model) satterthwaiteDF(sigma2, rho float64) float64 {
	residDF := float64(m.obs() - m.p)

	cAt := func(r float64) (float64, bool) {
		fit, ok := m.gls(r)
		if !ok {
			return 0, false
		}
		return fit.cAinvC, true
	}

	c0, ok := cAt(rho)
	if !ok {
		return residDF
	}
	fVal := sigma2 * c0

	hr := 1e-4
	if rho+hr >= rhoBound || rho-hr <= -rhoBound {
		hr = (rhoBound - math.Abs(rho)) / 2
	}
	cPlus, okP := cAt(rho + hr)
	cMinus, okM := cAt(rho - hr)
	if !okP || !okM || hr <= 0 {
		return residDF
	}
	grad := []float64{c0, sigma2 * (cPlus - cMinus) / (2 * hr)}

	hs := sigma2 * 1e-3
	q := m.remlNeg2
	q0 := q(sigma2, rho)
	h00 := (q(sigma2+hs, rho) - 2*q0 + q(sigma2-hs, rho)) / (hs * hs)
	h11 := (q(sigma2, rho+hr) - 2*q0 + q(sigma2, rho-hr)) / (hr * hr)
	h01 := (q(sigma2+hs, rho+hr) - q(sigma2+hs, rho-hr) -
		q(sigma2-hs, rho+hr) + q(sigma2-hs, rho-hr)) / (4 * hs * hr)

	det := h00*h11 - h01*h01
	if !isFinite(det) || det <= 0 {
		return residDF
	}
	// Var(theta) ~= 2 * H^-1 for H the Hessian of -2*logLik.
	v00 := 2 * h11 / det
	v11 := 2 * h00 / det
	v01 := -2 * h01 / det

	denom := grad[0]*grad[0]*v00 + 2*grad[0]*grad[1]*v01 + grad[1]*grad[1]*v11
	if !isFinite(denom) || denom <= 0 {
		return residDF
	}
	df := 2 * fVal * fVal / denom
	if !isFinite(df) || df < 1 {
		return residDF
	}
	return df
}

func isFinite(x float64) bool {
	return !math.IsInf(x, 0) && !math.IsNaN(x)
}

// #endregion satterthwaite

// #region fit

// Fit estimates one replication's model and extracts the landmark contrast.
// A statistical failure (degenerate normal equations, non-finite
// statistics) returns Converged=false rather than an error: the caller
// drops the replication and continues the batch.
func Fit(iterID int, rows []longdata.Row, cfg ModelConfig) (StageResult, error) {
	m, err := buildModel(rows, cfg)
	if err != nil {
		return StageResult{}, err
	}
	res := StageResult{IterID: iterID}

	rhoHat, ok := minimizeScalar(m.profileObjective, -rhoBound, rhoBound, 100)
	if !ok {
		return res, nil
	}
	fit, ok := m.gls(rhoHat)
	if !ok || fit.rss <= 0 || fit.cAinvC <= 0 {
		return res, nil
	}

	sigma2 := fit.rss / float64(m.obs()-m.p)
	diff := fit.cBeta
	se := math.Sqrt(sigma2 * fit.cAinvC)
	if !isFinite(diff) || !isFinite(se) || se == 0 {
		return res, nil
	}
	tval := diff / se
	df := m.satterthwaiteDF(sigma2, rhoHat)

	z, ok := tToZ(tval, df)
	if !ok {
		return res, nil
	}

	res.Diff = diff
	res.StdErr = se
	res.TValue = tval
	res.DF = df
	res.ZValue = z
	res.Converged = true
	return res, nil
}

// tToZ converts a t statistic to a signed z statistic through the exact
// two-sided p-value: p = 2*(1 - T_df(|t|)), z = sign(t) * Phi^-1(1 - p/2).
// The p-value is clamped away from {0,1} so the probit stays in domain.
func tToZ(tval, df float64) (float64, bool) {
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * (1 - tdist.CDF(math.Abs(tval)))
	if p < pClamp {
		p = pClamp
	}
	if p > 1-pClamp {
		p = 1 - pClamp
	}
	z := distuv.UnitNormal.Quantile(1 - p/2)
	if tval < 0 {
		z = -z
	}
	if !isFinite(z) {
		return 0, false
	}
	return z, true
}

// #endregion fit
