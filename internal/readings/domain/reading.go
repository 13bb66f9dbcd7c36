package readings

import (
	"context"
	"errors"
	"time"
)

// Reading is one normalized sensor sample for a tank. Temperature and
// humidity are optional; a missing value skips the related evaluation.
type Reading struct {
	TankID      string    `json:"tank_id"`
	Level       float64   `json:"level"`
	Pressure    float64   `json:"pressure"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	TS          time.Time `json:"ts"`
}

// Validate checks reading invariants.
func (r Reading) Validate() error {
	if r.TankID == "" {
		return errors.New("reading: empty tank id")
	}
	if r.Level < 0 {
		return errors.New("reading: negative level")
	}
	if r.Pressure < 0 {
		return errors.New("reading: negative pressure")
	}
	return nil
}

// ReadingRepository persists sensor readings.
type ReadingRepository interface {
	Insert(ctx context.Context, tenantID string, batch []Reading) error
}
