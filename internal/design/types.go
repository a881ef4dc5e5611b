package design

// #region config
// Config holds the full set of design constants for one simulation run.
// All fields are required; Validate rejects out-of-range values before any
// simulation work begins.
type Config struct {
	Nst1 int `yaml:"nst1" validate:"gt=0"` // stage-1 sample size per arm
	Nst2 int `yaml:"nst2" validate:"gt=0"` // initial stage-2 sample size per arm
	Nmax int `yaml:"nmax" validate:"gt=0"` // maximum stage-2 sample size per arm
	Iter int `yaml:"iter" validate:"gt=0"` // number of trial replications

	// Stage-1 generator seeds (one per arm) and stage-2 base seeds.
	Seed11 int64 `yaml:"seed11i" validate:"gt=0"`
	Seed21 int64 `yaml:"seed21i" validate:"gt=0"`
	Seed12 int64 `yaml:"seed12i" validate:"gt=0"`
	Seed22 int64 `yaml:"seed22i" validate:"gt=0"`

	Cst1 float64 `yaml:"cst1"`                      // stage-1 critical value
	Cst2 float64 `yaml:"cst2" validate:"gt=0"`      // final (combination test) critical value
	Beta float64 `yaml:"beta" validate:"gt=0,lt=1"` // target type-II error

	// Conditional-power thresholds partitioning the decision zones.
	Cp1Fut    float64 `yaml:"cp1fut" validate:"gte=0"`
	Cp1LowPZ  float64 `yaml:"cp1lowpz" validate:"gtfield=Cp1Fut"`
	Cp2HighPZ float64 `yaml:"cp2highpz" validate:"gtfield=Cp1LowPZ,lte=1"`

	// Workers caps the replication worker pool. Zero means GOMAXPROCS.
	Workers int `yaml:"workers" validate:"gte=0"`
}

// #endregion config

// #region derived
// Derived carries quantities computed once from a validated Config and
// shared read-only by every replication worker.
type Derived struct {
	TotalNst1    int // 2*nst1
	TotalNst2    int // 2*nst2
	TotalN       int // planned total across both stages
	TotalNst2Max int // 2*nmax

	W1     float64 // sqrt(TotalNst1/TotalN)
	W2     float64 // sqrt(TotalNst2/TotalN)
	WRatio float64 // W1/W2
}

// #endregion derived

// #region defaults
// DefaultConfig returns the reference two-stage design: 50/arm in stage 1,
// 50/arm planned for stage 2 with re-estimation up to 75/arm.
func DefaultConfig() Config {
	return Config{
		Nst1:      50,
		Nst2:      50,
		Nmax:      75,
		Iter:      1000,
		Seed11:    1234,
		Seed21:    5678,
		Seed12:    4321,
		Seed22:    8765,
		Cst1:      2.24,
		Cst2:      1.960395,
		Beta:      0.2,
		Cp1Fut:    0.10,
		Cp1LowPZ:  0.30,
		Cp2HighPZ: 0.90,
	}
}

// #endregion defaults
