package application

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	alerts "oxywatch-cloud/internal/alerts/domain"
)

// ThresholdConfig holds threshold values as read from yaml. Zero fields
// fall back to the global defaults when merged.
type ThresholdConfig struct {
	RefillPercent float64 `yaml:"refill_percent"`
	TempMin       float64 `yaml:"temp_min"`
	TempMax       float64 `yaml:"temp_max"`
}

// EvaluationConfig is the yaml-backed evaluation configuration: global
// defaults plus optional per-tank overrides.
type EvaluationConfig struct {
	Defaults ThresholdConfig            `yaml:"defaults"`
	Tanks    map[string]ThresholdConfig `yaml:"tanks"`
}

// LoadEvaluationConfig loads thresholds from a yaml file. An empty path
// returns the built-in defaults.
func LoadEvaluationConfig(path string) (EvaluationConfig, error) {
	cfg := EvaluationConfig{
		Defaults: ThresholdConfig{
			RefillPercent: alerts.DefaultThresholds().RefillPercent,
			TempMin:       alerts.DefaultThresholds().TempMin,
			TempMax:       alerts.DefaultThresholds().TempMax,
		},
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("thresholds config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c EvaluationConfig) validate() error {
	if err := validateThresholds(c.Defaults); err != nil {
		return fmt.Errorf("thresholds config: defaults: %w", err)
	}
	for tankID, override := range c.Tanks {
		merged := mergeThresholds(c.Defaults, override)
		if err := validateThresholds(merged); err != nil {
			return fmt.Errorf("thresholds config: tank %s: %w", tankID, err)
		}
	}
	return nil
}

func validateThresholds(t ThresholdConfig) error {
	if t.RefillPercent < 0 || t.RefillPercent > 100 {
		return errors.New("refill_percent must be a percentage")
	}
	if t.TempMin >= t.TempMax {
		return errors.New("temp_min must be below temp_max")
	}
	return nil
}

// Thresholds returns the global defaults as evaluator thresholds.
func (c EvaluationConfig) Thresholds() alerts.Thresholds {
	return alerts.Thresholds{
		RefillPercent: c.Defaults.RefillPercent,
		TempMin:       c.Defaults.TempMin,
		TempMax:       c.Defaults.TempMax,
	}
}

// ThresholdsForTank returns the merged thresholds for a tank.
func (c EvaluationConfig) ThresholdsForTank(tankID string) alerts.Thresholds {
	if c.Tanks != nil {
		if override, ok := c.Tanks[tankID]; ok {
			merged := mergeThresholds(c.Defaults, override)
			return alerts.Thresholds{
				RefillPercent: merged.RefillPercent,
				TempMin:       merged.TempMin,
				TempMax:       merged.TempMax,
			}
		}
	}
	return c.Thresholds()
}

func mergeThresholds(base, override ThresholdConfig) ThresholdConfig {
	if override.RefillPercent != 0 {
		base.RefillPercent = override.RefillPercent
	}
	if override.TempMin != 0 {
		base.TempMin = override.TempMin
	}
	if override.TempMax != 0 {
		base.TempMax = override.TempMax
	}
	return base
}
