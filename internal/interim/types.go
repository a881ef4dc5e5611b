package interim

// #region region
// Region is one of the five mutually exclusive interim decision zones.
type Region int

const (
	Futile Region = iota
	Unfavorable
	Promising
	Favorable
	Efficacious
)

var regionNames = [...]string{"FUTILE", "UNFAVO", "PROMIS", "FAVORA", "EFFICA"}

func (r Region) String() string {
	if r < 0 || int(r) >= len(regionNames) {
		return "UNKNOWN"
	}
	return regionNames[r]
}

// Regions lists every zone in classification order.
func Regions() []Region {
	return []Region{Futile, Unfavorable, Promising, Favorable, Efficacious}
}

// #endregion region

// #region decision
// Decision is the per-replication interim outcome: the conditional power,
// the zone it lands in, and the re-estimated stage-2 sizing.
type Decision struct {
	IterID   int
	Region   Region
	CondPow  float64
	CondPow2 float64 // diagnostic only, feeds no decision
	N2New    int     // stage-2 per-arm size used verbatim by the stage-2 driver
	TotalN   int     // final total across both stages and arms
}

// #endregion decision
