package score

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
)

// weightTolerance is how far the weight sum may drift from 1.0 before the
// configuration is rejected.
const weightTolerance = 0.001

// Weights are the relative contributions of each scoring signal.
type Weights struct {
	CVSS         float64 `mapstructure:"cvss" yaml:"cvss"`
	EPSS         float64 `mapstructure:"epss" yaml:"epss"`
	KEV          float64 `mapstructure:"kev" yaml:"kev"`
	Reachability float64 `mapstructure:"reachability" yaml:"reachability"`
	Age          float64 `mapstructure:"age" yaml:"age"`
	Exploit      float64 `mapstructure:"exploit" yaml:"exploit"`
}

// Thresholds are the tier cut-offs applied to the final [0,100] score.
type Thresholds struct {
	P0 float64 `mapstructure:"p0" yaml:"p0"`
	P1 float64 `mapstructure:"p1" yaml:"p1"`
	P2 float64 `mapstructure:"p2" yaml:"p2"`
	P3 float64 `mapstructure:"p3" yaml:"p3"`
}

// Config is the full scorer configuration.
type Config struct {
	Weights       Weights    `mapstructure:"weights" yaml:"weights"`
	Thresholds    Thresholds `mapstructure:"thresholds" yaml:"thresholds"`
	AgeWindowDays int        `mapstructure:"age_window_days" yaml:"age_window_days"`
}

// DefaultConfig returns the shipped scoring model.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			CVSS:         0.25,
			EPSS:         0.20,
			KEV:          0.20,
			Reachability: 0.20,
			Age:          0.05,
			Exploit:      0.10,
		},
		Thresholds:    Thresholds{P0: 85, P1: 65, P2: 40, P3: 20},
		AgeWindowDays: 365,
	}
}

// Validate rejects configurations the scorer cannot defend: weights must be
// non-negative and sum to 1.0 within tolerance, thresholds strictly
// descending within [0,100], and the age window positive. A configuration
// error fails the whole invocation.
func (c Config) Validate() error {
	w := c.Weights
	for name, v := range map[string]float64{
		"cvss": w.CVSS, "epss": w.EPSS, "kev": w.KEV,
		"reachability": w.Reachability, "age": w.Age, "exploit": w.Exploit,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("scorer weight %s must be in [0,1], got %v", name, v)
		}
	}
	sum := w.CVSS + w.EPSS + w.KEV + w.Reachability + w.Age + w.Exploit
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("scorer weights must sum to 1.0 (±%v), got %v", weightTolerance, sum)
	}

	th := c.Thresholds
	if !(th.P0 > th.P1 && th.P1 > th.P2 && th.P2 > th.P3 && th.P3 > 0 && th.P0 <= 100) {
		return fmt.Errorf("tier thresholds must be strictly descending within (0,100], got P0=%v P1=%v P2=%v P3=%v",
			th.P0, th.P1, th.P2, th.P3)
	}

	if c.AgeWindowDays <= 0 {
		return fmt.Errorf("age window must be positive, got %d days", c.AgeWindowDays)
	}
	return nil
}

// Version identifies the configuration for cache keying.
func (c Config) Version() string {
	enc := fmt.Sprintf("%v|%v|%d", c.Weights, c.Thresholds, c.AgeWindowDays)
	sum := sha256.Sum256([]byte(enc))
	return hex.EncodeToString(sum[:])
}
