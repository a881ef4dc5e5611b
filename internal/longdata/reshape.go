// Package longdata turns wide generator output into the long-format
// analysis table: one row per (subject, visit), with change from baseline
// derived after both arms are assembled.
package longdata

import (
	"fmt"
	"sort"
)

// #region reshape
// Reshape converts a flat ordered sequence of wide per-subject draws into
// long rows. n is the per-replication subject count for this arm, trt the
// arm indicator constant for every row, and sidOffset the arm's subject-ID
// offset (0 for arm 0, the arm-0 subject count for arm 1). Visit indices
// come from column position 1..visits.
func Reshape(draws [][]float64, n, trt, sidOffset, visits int) ([]Row, error) {
	if n <= 0 {
		return nil, fmt.Errorf("reshape: subject count %d not positive", n)
	}
	rows := make([]Row, 0, len(draws)*visits)
	for k, wide := range draws {
		if len(wide) != visits {
			return nil, fmt.Errorf("reshape: draw %d has %d visits, want %d", k, len(wide), visits)
		}
		iterID := k/n + 1
		sid := k%n + 1 + sidOffset
		for t := 1; t <= visits; t++ {
			rows = append(rows, Row{
				IterID:     iterID,
				SID:        sid,
				Trt:        trt,
				Visit:      t,
				VisitLabel: VisitLabel(t),
				Y:          wide[t-1],
			})
		}
	}
	return rows, nil
}

// #endregion reshape

// #region assemble
// Assemble unions both arms' long rows into one table and derives change
// from baseline: for every (IterID, SID) the visit-1 outcome is the
// baseline, Chg = Y - baseline for later visits and stays undefined at the
// baseline visit itself. The arms must share no SID values, every
// (IterID, SID, Visit) must be unique, and each subject must contribute
// exactly one baseline row; violations are bugs upstream and rejected here.
func Assemble(arm0, arm1 []Row) ([]Row, error) {
	type subjKey struct{ iterID, sid int }
	type obsKey struct{ iterID, sid, visit int }

	all := make([]Row, 0, len(arm0)+len(arm1))
	all = append(all, arm0...)
	all = append(all, arm1...)

	seen := make(map[obsKey]struct{}, len(all))
	baseline := make(map[subjKey]float64)
	for _, r := range all {
		ok := obsKey{r.IterID, r.SID, r.Visit}
		if _, dup := seen[ok]; dup {
			return nil, fmt.Errorf("assemble: duplicate observation iter=%d sid=%d visit=%d", r.IterID, r.SID, r.Visit)
		}
		seen[ok] = struct{}{}
		if r.Visit == 1 {
			sk := subjKey{r.IterID, r.SID}
			if _, dup := baseline[sk]; dup {
				return nil, fmt.Errorf("assemble: duplicate baseline iter=%d sid=%d", r.IterID, r.SID)
			}
			baseline[sk] = r.Y
		}
	}

	out := make([]Row, len(all))
	for i, r := range all {
		base, ok := baseline[subjKey{r.IterID, r.SID}]
		if !ok {
			return nil, fmt.Errorf("assemble: missing baseline iter=%d sid=%d", r.IterID, r.SID)
		}
		if r.Visit > 1 {
			r.Chg = r.Y - base
			r.HasChg = true
		}
		out[i] = r
	}
	return out, nil
}

// #endregion assemble

// #region split
// SplitByIter groups rows by replication index. This is the explicit form
// of per-replication iteration: callers fit one replication's subset at a
// time and may process keys in parallel.
func SplitByIter(rows []Row) map[int][]Row {
	groups := make(map[int][]Row)
	for _, r := range rows {
		groups[r.IterID] = append(groups[r.IterID], r)
	}
	return groups
}

// IterIDs returns the sorted replication indices present in a grouping.
func IterIDs(groups map[int][]Row) []int {
	ids := make([]int, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// #endregion split
