package alerts

import (
	"fmt"
	"time"

	readings "oxywatch-cloud/internal/readings/domain"
	tanks "oxywatch-cloud/internal/tanks/domain"
)

// Thresholds holds the global evaluation defaults. A per-tank refill
// threshold overrides RefillPercent; the units are always percent.
type Thresholds struct {
	RefillPercent float64
	TempMin       float64
	TempMax       float64
}

// DefaultThresholds are the documented global defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{RefillPercent: 20, TempMin: 10, TempMax: 40}
}

// ConditionVerdict is the outcome of evaluating one condition against a
// reading.
type ConditionVerdict struct {
	Condition ConditionType
	Category  Category
	Severity  Severity
	Breached  bool
	Message   string
	Snapshot  SensorSnapshot
}

// CreationRequest asks the lifecycle layer to open a new alert.
type CreationRequest struct {
	TankID    string
	Condition ConditionType
	Category  Category
	Severity  Severity
	Message   string
	Snapshot  SensorSnapshot
}

// Evaluate checks a reading against the tank's configured thresholds and
// returns one verdict per evaluated condition. It is pure and performs no
// alert lookups; pair it with Reconcile for duplicate suppression.
func Evaluate(cfg tanks.TankConfiguration, reading readings.Reading, defaults Thresholds) ([]ConditionVerdict, error) {
	if cfg.CapacityLiters <= 0 {
		return nil, &ConfigurationError{TankID: cfg.ID, Reason: "capacity must be positive"}
	}
	if cfg.MinPressure >= cfg.MaxPressure {
		return nil, &ConfigurationError{TankID: cfg.ID, Reason: "min pressure must be below max pressure"}
	}

	fillPercent := reading.Level / cfg.CapacityLiters * 100
	snapshot := SensorSnapshot{
		Level:       reading.Level,
		FillPercent: fillPercent,
		Pressure:    reading.Pressure,
		Temperature: reading.Temperature,
		Humidity:    reading.Humidity,
		RecordedAt:  reading.TS.UTC(),
	}

	refill := defaults.RefillPercent
	if cfg.RefillThresholdPercent > 0 {
		refill = cfg.RefillThresholdPercent
	}

	verdicts := []ConditionVerdict{
		{
			Condition: ConditionLowLevel,
			Category:  CategoryTankMonitoring,
			Severity:  SeverityHigh,
			Breached:  fillPercent <= refill,
			Message:   fmt.Sprintf("tank level at %.1f%% of capacity (refill threshold %.1f%%)", fillPercent, refill),
			Snapshot:  snapshot,
		},
	}

	// Low and high pressure are mutually exclusive for min < max.
	switch {
	case reading.Pressure < cfg.MinPressure:
		verdicts = append(verdicts, ConditionVerdict{
			Condition: ConditionLowPressure,
			Category:  CategoryTankMonitoring,
			Severity:  SeverityHigh,
			Breached:  true,
			Message:   fmt.Sprintf("pressure %.1f below minimum %.1f", reading.Pressure, cfg.MinPressure),
			Snapshot:  snapshot,
		})
	case reading.Pressure > cfg.MaxPressure:
		verdicts = append(verdicts, ConditionVerdict{
			Condition: ConditionHighPressure,
			Category:  CategoryTankMonitoring,
			Severity:  SeverityMedium,
			Breached:  true,
			Message:   fmt.Sprintf("pressure %.1f above maximum %.1f", reading.Pressure, cfg.MaxPressure),
			Snapshot:  snapshot,
		})
	}

	if cfg.TemperatureMonitoring && reading.Temperature != nil {
		tempMin := defaults.TempMin
		tempMax := defaults.TempMax
		if cfg.TempMin != nil {
			tempMin = *cfg.TempMin
		}
		if cfg.TempMax != nil {
			tempMax = *cfg.TempMax
		}
		temp := *reading.Temperature
		verdicts = append(verdicts, ConditionVerdict{
			Condition: ConditionTemperature,
			Category:  CategorySafety,
			Severity:  SeverityMedium,
			Breached:  temp < tempMin || temp > tempMax,
			Message:   fmt.Sprintf("temperature %.1f outside safe band %.1f..%.1f", temp, tempMin, tempMax),
			Snapshot:  snapshot,
		})
	}

	if cfg.IsCriticalLevel {
		verdicts = append(verdicts, ConditionVerdict{
			Condition: ConditionCriticalLevel,
			Category:  CategoryTankMonitoring,
			Severity:  SeverityCritical,
			Breached:  true,
			Message:   fmt.Sprintf("tank flagged critically low at %.1f%% of capacity", fillPercent),
			Snapshot:  snapshot,
		})
	}
	if cfg.LeakDetectionEnabled && cfg.IsLeaking {
		verdicts = append(verdicts, ConditionVerdict{
			Condition: ConditionLeak,
			Category:  CategorySafety,
			Severity:  SeverityCritical,
			Breached:  true,
			Message:   "leak detected on tank",
			Snapshot:  snapshot,
		})
	}
	if cfg.IsDamaged {
		verdicts = append(verdicts, ConditionVerdict{
			Condition: ConditionDamage,
			Category:  CategoryMaintenance,
			Severity:  SeverityHigh,
			Breached:  true,
			Message:   "tank reported damaged",
			Snapshot:  snapshot,
		})
	}

	return verdicts, nil
}

// Reconcile applies duplicate suppression: a breached verdict whose
// (tank, condition) pair already has an open alert yields no request.
func Reconcile(tankID string, verdicts []ConditionVerdict, openAlerts []Alert) []CreationRequest {
	openByCondition := make(map[ConditionType]struct{}, len(openAlerts))
	for _, alert := range openAlerts {
		if alert.IsOpen() {
			openByCondition[alert.Condition] = struct{}{}
		}
	}

	var requests []CreationRequest
	for _, verdict := range verdicts {
		if !verdict.Breached {
			continue
		}
		if _, ok := openByCondition[verdict.Condition]; ok {
			continue
		}
		requests = append(requests, CreationRequest{
			TankID:    tankID,
			Condition: verdict.Condition,
			Category:  verdict.Category,
			Severity:  verdict.Severity,
			Message:   verdict.Message,
			Snapshot:  verdict.Snapshot,
		})
	}
	return requests
}

// NewAlert materializes a creation request as an active alert. Policy flags
// derive from severity: high and above require acknowledgment, critical and
// above require resolution notes and auto-escalate.
func NewAlert(id, tenantID string, req CreationRequest, now time.Time) Alert {
	snapshot := req.Snapshot
	return Alert{
		ID:                     id,
		TenantID:               tenantID,
		TankID:                 req.TankID,
		Condition:              req.Condition,
		Category:               req.Category,
		Severity:               req.Severity,
		Status:                 StatusActive,
		Message:                req.Message,
		SensorData:             &snapshot,
		CreatedAt:              now,
		RequiresAcknowledgment: SeverityAtLeast(req.Severity, SeverityHigh),
		RequiresResolution:     SeverityAtLeast(req.Severity, SeverityCritical),
		AutoEscalate:           SeverityAtLeast(req.Severity, SeverityCritical),
		EscalationDelaySeconds: DefaultEscalationDelaySeconds,
		Actions: []ActionEntry{{
			Action: ActionCreated,
			Actor:  "system",
			Detail: req.Message,
			At:     now,
		}},
		Version:   1,
		UpdatedAt: now,
	}
}
