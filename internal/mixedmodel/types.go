package mixedmodel

// #region stage-result
// StageResult is the estimator's per-replication output: the treatment
// contrast at the landmark visit with its inference statistics. A
// non-converged fit carries no usable statistics and the replication is
// dropped from all downstream tables for that stage.
type StageResult struct {
	IterID    int
	Diff      float64 // treatment0 - treatment1 at the landmark visit
	StdErr    float64
	TValue    float64
	DF        float64 // small-sample denominator degrees of freedom
	ZValue    float64 // signed probit transform of the two-sided p-value
	Converged bool
}

// #endregion stage-result

// #region model-config
// ModelConfig fixes the repeated-measures layout.
type ModelConfig struct {
	Visits        int // total visits including baseline
	LandmarkVisit int // visit at which the treatment contrast is read
}

// DefaultModelConfig matches the 10-visit design with the week-4 landmark.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{Visits: 10, LandmarkVisit: 4}
}

// #endregion model-config
