package mixedmodel

import "math"

// #region ar1-forms
// ar1 evaluates quadratic forms and determinants for a k×k first-order
// autoregressive correlation matrix R with parameter rho over equally
// spaced visits. R inverse is tridiagonal, so u' R^-1 v and log|R| have
// closed forms and no factorization is needed inside the REML search.
type ar1 struct {
	rho float64
	k   int
}

// quad computes u' R^-1 v. Both slices must have length k.
func (a ar1) quad(u, v []float64) float64 {
	k := a.k
	if k == 1 {
		return u[0] * v[0]
	}
	rho := a.rho
	var diag, inner, off float64
	for i := 0; i < k; i++ {
		diag += u[i] * v[i]
	}
	for i := 1; i < k-1; i++ {
		inner += u[i] * v[i]
	}
	for i := 0; i < k-1; i++ {
		off += u[i]*v[i+1] + u[i+1]*v[i]
	}
	return (diag + rho*rho*inner - rho*off) / (1 - rho*rho)
}

// logDet computes log|R| = (k-1) * log(1 - rho^2).
func (a ar1) logDet() float64 {
	return float64(a.k-1) * math.Log(1-a.rho*a.rho)
}

// #endregion ar1-forms

// #region golden-section
// minimizeScalar finds the minimizer of f on [lo, hi] by golden-section
// search. gonum's optimize package has no bounded scalar minimizer and the
// REML profile objective is one-dimensional, so this stays local. Returns
// the best point and whether any finite objective value was seen.
func minimizeScalar(f func(float64) float64, lo, hi float64, iters int) (float64, bool) {
	const invPhi = 0.6180339887498949

	a, b := lo, hi
	c := b - invPhi*(b-a)
	d := a + invPhi*(b-a)
	fc, fd := f(c), f(d)
	finite := !math.IsInf(fc, 0) || !math.IsInf(fd, 0)

	for i := 0; i < iters && b-a > 1e-8; i++ {
		if fc < fd {
			b, d, fd = d, c, fc
			c = b - invPhi*(b-a)
			fc = f(c)
		} else {
			a, c, fc = c, d, fd
			d = a + invPhi*(b-a)
			fd = f(d)
		}
		if !math.IsInf(fc, 0) || !math.IsInf(fd, 0) {
			finite = true
		}
	}

	x := (a + b) / 2
	return x, finite && !math.IsInf(f(x), 0) && !math.IsNaN(f(x))
}

// #endregion golden-section
