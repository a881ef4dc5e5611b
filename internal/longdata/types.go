package longdata

import "fmt"

// #region row
// Row is one (subject, visit) observation in the analysis-ready long table.
type Row struct {
	IterID     int     // replication index, 1-based
	SID        int     // subject ID, unique within a replication across both arms
	Trt        int     // treatment arm, 0 or 1
	Visit      int     // visit index, 1-based
	VisitLabel string  // human-readable visit label
	Y          float64 // outcome at this visit
	Chg        float64 // change from baseline; undefined at visit 1
	HasChg     bool    // false only at the baseline visit
}

// #endregion row

// VisitLabel formats the canonical label for a visit index.
func VisitLabel(visit int) string {
	return fmt.Sprintf("week %d", visit)
}
