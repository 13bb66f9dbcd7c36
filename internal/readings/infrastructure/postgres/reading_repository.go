package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	readings "oxywatch-cloud/internal/readings/domain"
)

const defaultReadingTable = "sensor_readings"

// ReadingRepository is a Postgres implementation for sensor readings.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// NewReadingRepository constructs a repository with default table name.
func NewReadingRepository(db *sql.DB, opts ...RepositoryOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReadingRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Insert upserts a batch of readings. Re-delivered samples for the same
// tank and timestamp overwrite the previous row.
func (r *ReadingRepository) Insert(ctx context.Context, tenantID string, batch []readings.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("readings repo: nil db")
	}
	if tenantID == "" {
		return errors.New("readings repo: empty tenant id")
	}
	if len(batch) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	tenant_id,
	tank_id,
	level,
	pressure,
	temperature,
	humidity,
	ts
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (tenant_id, tank_id, ts)
DO UPDATE SET
	level = EXCLUDED.level,
	pressure = EXCLUDED.pressure,
	temperature = EXCLUDED.temperature,
	humidity = EXCLUDED.humidity,
	updated_at = NOW()`, r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, reading := range batch {
		if err := reading.Validate(); err != nil {
			_ = tx.Rollback()
			return err
		}
		if reading.TS.IsZero() {
			_ = tx.Rollback()
			return errors.New("readings repo: zero timestamp")
		}

		temperature := sql.NullFloat64{}
		if reading.Temperature != nil {
			temperature = sql.NullFloat64{Float64: *reading.Temperature, Valid: true}
		}
		humidity := sql.NullFloat64{}
		if reading.Humidity != nil {
			humidity = sql.NullFloat64{Float64: *reading.Humidity, Valid: true}
		}

		if _, err := stmt.ExecContext(
			ctx,
			tenantID,
			reading.TankID,
			reading.Level,
			reading.Pressure,
			temperature,
			humidity,
			reading.TS,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}
