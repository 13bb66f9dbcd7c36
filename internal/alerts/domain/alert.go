package alerts

import "time"

// Status is the lifecycle status of an alert.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
	StatusEscalated    Status = "escalated"
	StatusDismissed    Status = "dismissed"
)

// Severity ranks the impact of an alert.
type Severity string

const (
	SeverityLow       Severity = "low"
	SeverityMedium    Severity = "medium"
	SeverityHigh      Severity = "high"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Category groups alerts by domain area.
type Category string

const (
	CategoryTankMonitoring Category = "tank_monitoring"
	CategorySafety         Category = "safety"
	CategorySecurity       Category = "security"
	CategoryMaintenance    Category = "maintenance"
	CategoryEmergency      Category = "emergency"
	CategoryUserManagement Category = "user_management"
)

// ConditionType is the canonical alert condition enumeration. Tank-scoped
// conditions use the tank_ prefix; the remaining values cover system-level
// alerts that carry no tank id.
type ConditionType string

const (
	ConditionLowLevel      ConditionType = "tank_low_level"
	ConditionCriticalLevel ConditionType = "tank_critical_level"
	ConditionLowPressure   ConditionType = "tank_low_pressure"
	ConditionHighPressure  ConditionType = "tank_high_pressure"
	ConditionLeak          ConditionType = "tank_leak"
	ConditionTemperature   ConditionType = "tank_temperature_range"
	ConditionDamage        ConditionType = "tank_damage"
	ConditionSystemFault   ConditionType = "system_fault"
	ConditionSecurity      ConditionType = "security_breach"
	ConditionEmergency     ConditionType = "emergency"
)

// DefaultEscalationDelaySeconds applies when an alert does not override the
// auto-escalation delay.
const DefaultEscalationDelaySeconds = 300

// SensorSnapshot captures the sensor values that triggered an alert.
type SensorSnapshot struct {
	Level       float64   `json:"level"`
	FillPercent float64   `json:"fill_percent"`
	Pressure    float64   `json:"pressure"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// ActionEntry is one append-only action history record.
type ActionEntry struct {
	Action string    `json:"action"`
	Actor  string    `json:"actor"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// EscalationEntry is one append-only escalation history record.
type EscalationEntry struct {
	Level  int       `json:"level"`
	Target string    `json:"target"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// NotificationEntry is one append-only notification history record.
type NotificationEntry struct {
	Method    string    `json:"method"`
	Recipient string    `json:"recipient"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Alert is the core alert record. It is a plain data structure; all state
// transitions go through the lifecycle functions in this package.
type Alert struct {
	ID        string        `json:"id"`
	TenantID  string        `json:"tenant_id"`
	TankID    string        `json:"tank_id,omitempty"`
	Condition ConditionType `json:"condition"`
	Category  Category      `json:"category"`
	Severity  Severity      `json:"severity"`
	Status    Status        `json:"status"`
	Message   string        `json:"message"`

	SensorData *SensorSnapshot `json:"sensor_data,omitempty"`

	CreatedAt        time.Time `json:"created_at"`
	AcknowledgedBy   string    `json:"acknowledged_by,omitempty"`
	AcknowledgedAt   time.Time `json:"acknowledged_at,omitempty"`
	ResolvedBy       string    `json:"resolved_by,omitempty"`
	ResolvedAt       time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes  string    `json:"resolution_notes,omitempty"`
	EscalatedTo      string    `json:"escalated_to,omitempty"`
	EscalatedAt      time.Time `json:"escalated_at,omitempty"`
	EscalationReason string    `json:"escalation_reason,omitempty"`
	DismissedBy      string    `json:"dismissed_by,omitempty"`
	DismissedAt      time.Time `json:"dismissed_at,omitempty"`

	EscalationLevel     int `json:"escalation_level"`
	AcknowledgmentCount int `json:"acknowledgment_count"`
	NotificationCount   int `json:"notification_count"`

	RequiresAcknowledgment bool `json:"requires_acknowledgment"`
	RequiresResolution     bool `json:"requires_resolution"`
	AutoEscalate           bool `json:"auto_escalate"`
	EscalationDelaySeconds int  `json:"escalation_delay_seconds"`

	Actions       []ActionEntry       `json:"actions"`
	Escalations   []EscalationEntry   `json:"escalations"`
	Notifications []NotificationEntry `json:"notifications"`

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy; the history slices do not share backing
// arrays with the receiver.
func (a Alert) Clone() Alert {
	copied := a
	if a.SensorData != nil {
		snapshot := *a.SensorData
		copied.SensorData = &snapshot
	}
	copied.Actions = append([]ActionEntry(nil), a.Actions...)
	copied.Escalations = append([]EscalationEntry(nil), a.Escalations...)
	copied.Notifications = append([]NotificationEntry(nil), a.Notifications...)
	return copied
}

// IsOpen reports whether the alert still suppresses a duplicate for its
// (tank, condition) pair.
func (a Alert) IsOpen() bool {
	return a.Status == StatusActive || a.Status == StatusEscalated
}

// IsTerminal reports whether the alert admits no further transitions.
func (a Alert) IsTerminal() bool {
	return a.Status == StatusResolved || a.Status == StatusDismissed
}

// IsUrgent reports whether the alert severity demands immediate handling.
func (a Alert) IsUrgent() bool {
	return a.Severity == SeverityCritical || a.Severity == SeverityEmergency
}

// NeedsImmediateAttention reports whether the alert is active and either
// urgent or flagged as requiring acknowledgment.
func (a Alert) NeedsImmediateAttention() bool {
	return a.Status == StatusActive && (a.IsUrgent() || a.RequiresAcknowledgment)
}

// EscalationDelay returns the configured auto-escalation delay.
func (a Alert) EscalationDelay() time.Duration {
	seconds := a.EscalationDelaySeconds
	if seconds <= 0 {
		seconds = DefaultEscalationDelaySeconds
	}
	return time.Duration(seconds) * time.Second
}

// NextEscalationAt returns when the alert becomes due for auto-escalation.
// The zero time means auto-escalation does not apply.
func (a Alert) NextEscalationAt() time.Time {
	if !a.AutoEscalate || a.Status != StatusActive {
		return time.Time{}
	}
	return a.CreatedAt.Add(a.EscalationDelay())
}

// DurationMinutes returns minutes since the alert was created.
func (a Alert) DurationMinutes(now time.Time) float64 {
	return now.Sub(a.CreatedAt).Minutes()
}

// TimeSinceAcknowledgment returns the elapsed time since first
// acknowledgment, or false when the alert was never acknowledged.
func (a Alert) TimeSinceAcknowledgment(now time.Time) (time.Duration, bool) {
	if a.AcknowledgedAt.IsZero() {
		return 0, false
	}
	return now.Sub(a.AcknowledgedAt), true
}

// TimeSinceResolution returns the elapsed time since resolution, or false
// when the alert is not resolved.
func (a Alert) TimeSinceResolution(now time.Time) (time.Duration, bool) {
	if a.ResolvedAt.IsZero() {
		return 0, false
	}
	return now.Sub(a.ResolvedAt), true
}

// ValidStatus reports whether the value is a known lifecycle status.
func ValidStatus(value string) bool {
	switch Status(value) {
	case StatusActive, StatusAcknowledged, StatusResolved, StatusEscalated, StatusDismissed:
		return true
	default:
		return false
	}
}

// SeverityAtLeast reports whether value ranks at or above target.
func SeverityAtLeast(value, target Severity) bool {
	return severityRank(value) >= severityRank(target)
}

func severityRank(value Severity) int {
	switch value {
	case SeverityEmergency:
		return 5
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}
