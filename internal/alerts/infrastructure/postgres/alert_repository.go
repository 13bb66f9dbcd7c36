package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	alerts "oxywatch-cloud/internal/alerts/domain"
)

const alertColumns = `id, tenant_id, tank_id, condition, category, severity, status, message,
	sensor_data, created_at, acknowledged_by, acknowledged_at, resolved_by, resolved_at,
	resolution_notes, escalated_to, escalated_at, escalation_reason, dismissed_by, dismissed_at,
	escalation_level, acknowledgment_count, notification_count,
	requires_acknowledgment, requires_resolution, auto_escalate, escalation_delay_seconds,
	actions, escalations, notifications, version, updated_at`

// AlertRepository is a Postgres repository for alerts. The history slices
// are stored as JSONB columns; Save rejects lost updates via the version
// column.
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if alert.ID == "" || alert.TenantID == "" {
		return errors.New("alert repo: missing fields")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	if alert.UpdatedAt.IsZero() {
		alert.UpdatedAt = alert.CreatedAt
	}
	sensorData, actions, escalations, notifications, err := marshalHistories(alert)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO alerts (`+alertColumns+`
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8,
	$9, $10, $11, $12, $13, $14,
	$15, $16, $17, $18, $19, $20,
	$21, $22, $23,
	$24, $25, $26, $27,
	$28, $29, $30, $31, $32
)`,
		alert.ID,
		alert.TenantID,
		alert.TankID,
		string(alert.Condition),
		string(alert.Category),
		string(alert.Severity),
		string(alert.Status),
		alert.Message,
		sensorData,
		alert.CreatedAt,
		alert.AcknowledgedBy,
		nullableTime(alert.AcknowledgedAt),
		alert.ResolvedBy,
		nullableTime(alert.ResolvedAt),
		alert.ResolutionNotes,
		alert.EscalatedTo,
		nullableTime(alert.EscalatedAt),
		alert.EscalationReason,
		alert.DismissedBy,
		nullableTime(alert.DismissedAt),
		alert.EscalationLevel,
		alert.AcknowledgmentCount,
		alert.NotificationCount,
		alert.RequiresAcknowledgment,
		alert.RequiresResolution,
		alert.AutoEscalate,
		alert.EscalationDelaySeconds,
		actions,
		escalations,
		notifications,
		alert.Version,
		alert.UpdatedAt,
	)
	return err
}

// Save updates an alert. The stored row must still carry the previous
// version or the update is rejected with ErrConcurrencyConflict.
func (r *AlertRepository) Save(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	sensorData, actions, escalations, notifications, err := marshalHistories(alert)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET status = $1, acknowledged_by = $2, acknowledged_at = $3, resolved_by = $4, resolved_at = $5,
	resolution_notes = $6, escalated_to = $7, escalated_at = $8, escalation_reason = $9,
	dismissed_by = $10, dismissed_at = $11, escalation_level = $12, acknowledgment_count = $13,
	notification_count = $14, sensor_data = $15, actions = $16, escalations = $17,
	notifications = $18, version = $19, updated_at = $20
WHERE id = $21 AND version = $22`,
		string(alert.Status),
		alert.AcknowledgedBy,
		nullableTime(alert.AcknowledgedAt),
		alert.ResolvedBy,
		nullableTime(alert.ResolvedAt),
		alert.ResolutionNotes,
		alert.EscalatedTo,
		nullableTime(alert.EscalatedAt),
		alert.EscalationReason,
		alert.DismissedBy,
		nullableTime(alert.DismissedAt),
		alert.EscalationLevel,
		alert.AcknowledgmentCount,
		alert.NotificationCount,
		sensorData,
		actions,
		escalations,
		notifications,
		alert.Version,
		alert.UpdatedAt,
		alert.ID,
		alert.Version-1,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		existing, err := r.GetByID(ctx, alert.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return alerts.ErrNotFound
		}
		return alerts.ErrConcurrencyConflict
	}
	return nil
}

// GetByID fetches an alert by id.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+alertColumns+`
FROM alerts
WHERE id = $1`, id)
	return scanAlert(row)
}

// FindOpenByTankCondition returns the open alert for a (tank, condition)
// pair. Acknowledged alerts do not count as open.
func (r *AlertRepository) FindOpenByTankCondition(ctx context.Context, tenantID, tankID string, condition alerts.ConditionType) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if tenantID == "" || tankID == "" || condition == "" {
		return nil, errors.New("alert repo: invalid query")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+alertColumns+`
FROM alerts
WHERE tenant_id = $1 AND tank_id = $2 AND condition = $3
	AND status IN ('active', 'escalated')
ORDER BY created_at DESC
LIMIT 1`, tenantID, tankID, string(condition))
	return scanAlert(row)
}

// ListOpenByTank returns all open alerts for a tank.
func (r *AlertRepository) ListOpenByTank(ctx context.Context, tenantID, tankID string) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if tenantID == "" || tankID == "" {
		return nil, errors.New("alert repo: invalid query")
	}
	return r.list(ctx, `
SELECT `+alertColumns+`
FROM alerts
WHERE tenant_id = $1 AND tank_id = $2 AND status IN ('active', 'escalated')
ORDER BY created_at ASC`, tenantID, tankID)
}

// ListOpenAutoEscalate returns active alerts flagged for auto-escalation.
// An empty tenantID sweeps every tenant.
func (r *AlertRepository) ListOpenAutoEscalate(ctx context.Context, tenantID string) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if tenantID == "" {
		return r.list(ctx, `
SELECT `+alertColumns+`
FROM alerts
WHERE status = 'active' AND auto_escalate
ORDER BY created_at ASC`)
	}
	return r.list(ctx, `
SELECT `+alertColumns+`
FROM alerts
WHERE tenant_id = $1 AND status = 'active' AND auto_escalate
ORDER BY created_at ASC`, tenantID)
}

// ListByTankStatusAndTime lists alerts for a tank within a time window.
func (r *AlertRepository) ListByTankStatusAndTime(ctx context.Context, tenantID, tankID, status string, from, to time.Time) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if tenantID == "" || tankID == "" {
		return nil, errors.New("alert repo: invalid query")
	}
	query := `
SELECT ` + alertColumns + `
FROM alerts
WHERE tenant_id = $1 AND tank_id = $2`
	args := []any{tenantID, tankID}
	if status != "" {
		args = append(args, status)
		query += " AND status = $3"
	}
	if !from.IsZero() {
		args = append(args, from)
		query += " AND created_at >= $" + strconv.Itoa(len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += " AND created_at < $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY created_at DESC"
	return r.list(ctx, query, args...)
}

func (r *AlertRepository) list(ctx context.Context, query string, args ...any) ([]alerts.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerts.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type alertScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row alertScanner) (*alerts.Alert, error) {
	var alert alerts.Alert
	var condition, category, severity, status string
	var sensorData, actions, escalations, notifications []byte
	var acknowledgedAt, resolvedAt, escalatedAt, dismissedAt sql.NullTime
	if err := row.Scan(
		&alert.ID,
		&alert.TenantID,
		&alert.TankID,
		&condition,
		&category,
		&severity,
		&status,
		&alert.Message,
		&sensorData,
		&alert.CreatedAt,
		&alert.AcknowledgedBy,
		&acknowledgedAt,
		&alert.ResolvedBy,
		&resolvedAt,
		&alert.ResolutionNotes,
		&alert.EscalatedTo,
		&escalatedAt,
		&alert.EscalationReason,
		&alert.DismissedBy,
		&dismissedAt,
		&alert.EscalationLevel,
		&alert.AcknowledgmentCount,
		&alert.NotificationCount,
		&alert.RequiresAcknowledgment,
		&alert.RequiresResolution,
		&alert.AutoEscalate,
		&alert.EscalationDelaySeconds,
		&actions,
		&escalations,
		&notifications,
		&alert.Version,
		&alert.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	alert.Condition = alerts.ConditionType(condition)
	alert.Category = alerts.Category(category)
	alert.Severity = alerts.Severity(severity)
	alert.Status = alerts.Status(status)
	alert.CreatedAt = alert.CreatedAt.UTC()
	alert.UpdatedAt = alert.UpdatedAt.UTC()
	if acknowledgedAt.Valid {
		alert.AcknowledgedAt = acknowledgedAt.Time.UTC()
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = resolvedAt.Time.UTC()
	}
	if escalatedAt.Valid {
		alert.EscalatedAt = escalatedAt.Time.UTC()
	}
	if dismissedAt.Valid {
		alert.DismissedAt = dismissedAt.Time.UTC()
	}
	if len(sensorData) > 0 {
		var snapshot alerts.SensorSnapshot
		if err := json.Unmarshal(sensorData, &snapshot); err != nil {
			return nil, err
		}
		alert.SensorData = &snapshot
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &alert.Actions); err != nil {
			return nil, err
		}
	}
	if len(escalations) > 0 {
		if err := json.Unmarshal(escalations, &alert.Escalations); err != nil {
			return nil, err
		}
	}
	if len(notifications) > 0 {
		if err := json.Unmarshal(notifications, &alert.Notifications); err != nil {
			return nil, err
		}
	}
	return &alert, nil
}

func marshalHistories(alert *alerts.Alert) (sensorData, actions, escalations, notifications []byte, err error) {
	if alert.SensorData != nil {
		sensorData, err = json.Marshal(alert.SensorData)
		if err != nil {
			return nil, nil, nil, nil, err
		}
	}
	actions, err = json.Marshal(emptyIfNilActions(alert.Actions))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	escalations, err = json.Marshal(emptyIfNilEscalations(alert.Escalations))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	notifications, err = json.Marshal(emptyIfNilNotifications(alert.Notifications))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return sensorData, actions, escalations, notifications, nil
}

func emptyIfNilActions(entries []alerts.ActionEntry) []alerts.ActionEntry {
	if entries == nil {
		return []alerts.ActionEntry{}
	}
	return entries
}

func emptyIfNilEscalations(entries []alerts.EscalationEntry) []alerts.EscalationEntry {
	if entries == nil {
		return []alerts.EscalationEntry{}
	}
	return entries
}

func emptyIfNilNotifications(entries []alerts.NotificationEntry) []alerts.NotificationEntry {
	if entries == nil {
		return []alerts.NotificationEntry{}
	}
	return entries
}

func nullableTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}
