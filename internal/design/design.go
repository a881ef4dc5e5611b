package design

import (
	"fmt"
	"math"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// #region load
// Load reads a yaml config file and validates it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// #endregion load

// #region validate
var validate = validator.New()

// Validate checks every design constant. Any violation is fatal for the run;
// nothing downstream tolerates a partially valid design.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid design config: %w", err)
	}
	// Cross-field checks the struct tags cannot express.
	if c.Nmax < c.Nst2 {
		return fmt.Errorf("invalid design config: nmax (%d) must be >= nst2 (%d)", c.Nmax, c.Nst2)
	}
	seeds := map[int64]string{}
	for _, s := range []struct {
		name string
		val  int64
	}{
		{"seed11i", c.Seed11}, {"seed21i", c.Seed21},
		{"seed12i", c.Seed12}, {"seed22i", c.Seed22},
	} {
		if prev, ok := seeds[s.val]; ok {
			return fmt.Errorf("invalid design config: %s and %s share seed %d", prev, s.name, s.val)
		}
		seeds[s.val] = s.name
	}
	return nil
}

// #endregion validate

// #region derive
// Derive computes the per-run totals and information weights. The weights
// are fixed by the planned (not re-estimated) sample sizes and never change
// after the interim.
func (c Config) Derive() Derived {
	d := Derived{
		TotalNst1:    2 * c.Nst1,
		TotalNst2:    2 * c.Nst2,
		TotalNst2Max: 2 * c.Nmax,
	}
	d.TotalN = d.TotalNst1 + d.TotalNst2
	d.W1 = math.Sqrt(float64(d.TotalNst1) / float64(d.TotalN))
	d.W2 = math.Sqrt(float64(d.TotalNst2) / float64(d.TotalN))
	d.WRatio = d.W1 / d.W2
	return d
}

// #endregion derive
