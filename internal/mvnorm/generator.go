// Package mvnorm draws correlated longitudinal outcome vectors. Each
// generator owns a seeded stream; identical (structure, seed, count) inputs
// reproduce bit-identical draws, which the whole system's reproducibility
// guarantee rests on.
package mvnorm

import (
	"fmt"

	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/jmarrett/adaptive-trial-sim/internal/corrmat"
)

// #region generator
// Generator produces independent multivariate-normal realizations from one
// arm's correlation structure. Zero mean: arm effects enter only through the
// structure itself.
type Generator struct {
	dist   *distmv.Normal
	visits int
}

// New builds a generator for one arm. The structure is shared read-only;
// the seed is the arm-specific stream seed.
func New(s *corrmat.Structure, seed int64) (*Generator, error) {
	mu := make([]float64, s.Visits())
	dist, ok := distmv.NewNormal(mu, s.Sym(), xrand.NewSource(uint64(seed)))
	if !ok {
		return nil, fmt.Errorf("mvnorm: structure is not positive definite")
	}
	return &Generator{dist: dist, visits: s.Visits()}, nil
}

// Visits returns the dimension of each realization.
func (g *Generator) Visits() int { return g.visits }

// #endregion generator

// #region draw
// Draw returns count independent realizations as one flat ordered sequence.
// Any non-negative count is accepted; callers decide the replication layout.
func (g *Generator) Draw(count int) [][]float64 {
	out := make([][]float64, count)
	for k := range out {
		out[k] = g.dist.Rand(nil)
	}
	return out
}

// #endregion draw

// #region subject-mapping
// SubjectFor maps the k-th realization (0-indexed) of a stream laid out as
// n subjects per replication to its (replication, subject) identity:
// replication floor(k/n)+1, subject (k mod n)+1. The modulo mapping, not a
// sequential counter, is what keeps subject identities collision-free and
// reproducible; it must not be approximated.
func SubjectFor(k, n int) (iterID, sid int) {
	return k/n + 1, k%n + 1
}

// #endregion subject-mapping
