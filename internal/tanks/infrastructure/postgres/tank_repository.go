package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	tanks "oxywatch-cloud/internal/tanks/domain"
)

const defaultTanksTable = "tanks"

// DBTX abstracts *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TankRepository is a Postgres implementation for tank configurations.
type TankRepository struct {
	db    DBTX
	table string
}

// NewTankRepository constructs a repository.
func NewTankRepository(db DBTX, opts ...TankOption) *TankRepository {
	repo := &TankRepository{db: db, table: defaultTanksTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// TankOption configures the repository.
type TankOption func(*TankRepository)

// WithTanksTable overrides the default table name.
func WithTanksTable(table string) TankOption {
	return func(repo *TankRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

const tankColumns = `id, tenant_id, name, location, capacity_liters, current_level, current_pressure,
	min_pressure, max_pressure, critical_pressure, refill_threshold_percent, temp_min, temp_max,
	leak_detection_enabled, temperature_monitoring, is_leaking, is_damaged, is_critical_level,
	created_at, updated_at`

// Get loads a tank scoped to a tenant.
func (r *TankRepository) Get(ctx context.Context, tenantID, id string) (*tanks.TankConfiguration, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("tank repo: nil db")
	}
	if tenantID == "" || id == "" {
		return nil, errors.New("tank repo: empty tenant or id")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1 AND tenant_id = $2
LIMIT 1`, tankColumns, r.table)

	return scanTank(r.db.QueryRowContext(ctx, query, id, tenantID))
}

// List returns all tanks owned by a tenant ordered by name.
func (r *TankRepository) List(ctx context.Context, tenantID string) ([]tanks.TankConfiguration, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("tank repo: nil db")
	}
	if tenantID == "" {
		return nil, errors.New("tank repo: empty tenant id")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE tenant_id = $1
ORDER BY name ASC`, tankColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []tanks.TankConfiguration
	for rows.Next() {
		tank, err := scanTank(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tank)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a tank configuration.
func (r *TankRepository) Save(ctx context.Context, tank *tanks.TankConfiguration) error {
	if r == nil || r.db == nil {
		return errors.New("tank repo: nil db")
	}
	if tank == nil {
		return errors.New("tank repo: nil tank")
	}
	if err := tank.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	tenant_id,
	name,
	location,
	capacity_liters,
	current_level,
	current_pressure,
	min_pressure,
	max_pressure,
	critical_pressure,
	refill_threshold_percent,
	temp_min,
	temp_max,
	leak_detection_enabled,
	temperature_monitoring,
	is_leaking,
	is_damaged,
	is_critical_level
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
)
ON CONFLICT (id)
DO UPDATE SET
	tenant_id = EXCLUDED.tenant_id,
	name = EXCLUDED.name,
	location = EXCLUDED.location,
	capacity_liters = EXCLUDED.capacity_liters,
	current_level = EXCLUDED.current_level,
	current_pressure = EXCLUDED.current_pressure,
	min_pressure = EXCLUDED.min_pressure,
	max_pressure = EXCLUDED.max_pressure,
	critical_pressure = EXCLUDED.critical_pressure,
	refill_threshold_percent = EXCLUDED.refill_threshold_percent,
	temp_min = EXCLUDED.temp_min,
	temp_max = EXCLUDED.temp_max,
	leak_detection_enabled = EXCLUDED.leak_detection_enabled,
	temperature_monitoring = EXCLUDED.temperature_monitoring,
	is_leaking = EXCLUDED.is_leaking,
	is_damaged = EXCLUDED.is_damaged,
	is_critical_level = EXCLUDED.is_critical_level,
	updated_at = NOW()`, r.table)

	tempMin := sql.NullFloat64{}
	if tank.TempMin != nil {
		tempMin = sql.NullFloat64{Float64: *tank.TempMin, Valid: true}
	}
	tempMax := sql.NullFloat64{}
	if tank.TempMax != nil {
		tempMax = sql.NullFloat64{Float64: *tank.TempMax, Valid: true}
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		tank.ID,
		tank.TenantID,
		tank.Name,
		tank.Location,
		tank.CapacityLiters,
		tank.CurrentLevel,
		tank.CurrentPressure,
		tank.MinPressure,
		tank.MaxPressure,
		tank.CriticalPressure,
		tank.RefillThresholdPercent,
		tempMin,
		tempMax,
		tank.LeakDetectionEnabled,
		tank.TemperatureMonitoring,
		tank.IsLeaking,
		tank.IsDamaged,
		tank.IsCriticalLevel,
	)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if tank.CreatedAt.IsZero() {
		tank.CreatedAt = now
	}
	tank.UpdatedAt = now
	return nil
}

type tankScanner interface {
	Scan(dest ...any) error
}

func scanTank(row tankScanner) (*tanks.TankConfiguration, error) {
	var (
		tank             tanks.TankConfiguration
		tempMin, tempMax sql.NullFloat64
	)
	if err := row.Scan(
		&tank.ID,
		&tank.TenantID,
		&tank.Name,
		&tank.Location,
		&tank.CapacityLiters,
		&tank.CurrentLevel,
		&tank.CurrentPressure,
		&tank.MinPressure,
		&tank.MaxPressure,
		&tank.CriticalPressure,
		&tank.RefillThresholdPercent,
		&tempMin,
		&tempMax,
		&tank.LeakDetectionEnabled,
		&tank.TemperatureMonitoring,
		&tank.IsLeaking,
		&tank.IsDamaged,
		&tank.IsCriticalLevel,
		&tank.CreatedAt,
		&tank.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if tempMin.Valid {
		value := tempMin.Float64
		tank.TempMin = &value
	}
	if tempMax.Valid {
		value := tempMax.Float64
		tank.TempMax = &value
	}
	tank.CreatedAt = tank.CreatedAt.UTC()
	tank.UpdatedAt = tank.UpdatedAt.UTC()
	return &tank, nil
}
