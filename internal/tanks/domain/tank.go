package tanks

import (
	"context"
	"errors"
	"time"
)

// TankConfiguration is the registry record for a monitored oxygen tank.
// The alert evaluator treats it as an immutable snapshot per evaluation.
type TankConfiguration struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`

	CapacityLiters  float64 `json:"capacity_liters"`
	CurrentLevel    float64 `json:"current_level"`
	CurrentPressure float64 `json:"current_pressure"`

	MinPressure      float64 `json:"min_pressure"`
	MaxPressure      float64 `json:"max_pressure"`
	CriticalPressure float64 `json:"critical_pressure,omitempty"`

	// RefillThresholdPercent overrides the global low-level default when
	// positive. Expressed as a percentage of capacity.
	RefillThresholdPercent float64 `json:"refill_threshold_percent,omitempty"`

	// Optional safe band overrides for temperature monitoring.
	TempMin *float64 `json:"temp_min,omitempty"`
	TempMax *float64 `json:"temp_max,omitempty"`

	LeakDetectionEnabled  bool `json:"leak_detection_enabled"`
	TemperatureMonitoring bool `json:"temperature_monitoring"`

	IsLeaking       bool `json:"is_leaking"`
	IsDamaged       bool `json:"is_damaged"`
	IsCriticalLevel bool `json:"is_critical_level"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks tank configuration invariants.
func (t TankConfiguration) Validate() error {
	if t.ID == "" {
		return errors.New("tank: empty id")
	}
	if t.TenantID == "" {
		return errors.New("tank: empty tenant id")
	}
	if t.Name == "" {
		return errors.New("tank: empty name")
	}
	if t.CapacityLiters <= 0 {
		return errors.New("tank: capacity must be positive")
	}
	if t.MinPressure >= t.MaxPressure {
		return errors.New("tank: min pressure must be below max pressure")
	}
	if t.RefillThresholdPercent < 0 || t.RefillThresholdPercent > 100 {
		return errors.New("tank: refill threshold must be a percentage")
	}
	if t.TempMin != nil && t.TempMax != nil && *t.TempMin >= *t.TempMax {
		return errors.New("tank: temp min must be below temp max")
	}
	return nil
}

// TankRepository persists tank configurations.
type TankRepository interface {
	Get(ctx context.Context, tenantID, id string) (*TankConfiguration, error)
	List(ctx context.Context, tenantID string) ([]TankConfiguration, error)
	Save(ctx context.Context, tank *TankConfiguration) error
}

// FillPercent computes the current fill level as a percentage of capacity.
func (t TankConfiguration) FillPercent() float64 {
	if t.CapacityLiters <= 0 {
		return 0
	}
	return t.CurrentLevel / t.CapacityLiters * 100
}
