package events

import "time"

// ReadingReceived is raised after a sensor reading has been ingested.
type ReadingReceived struct {
	EventID     string    `json:"event_id"`
	TenantID    string    `json:"tenant_id"`
	TankID      string    `json:"tank_id"`
	Level       float64   `json:"level"`
	Pressure    float64   `json:"pressure"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
