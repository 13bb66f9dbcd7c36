package auth

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrTenantMismatch indicates resource belongs to a different tenant.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("resource not found")
)

// TankTenantChecker validates tank tenant ownership.
type TankTenantChecker interface {
	EnsureTankTenant(ctx context.Context, tenantID, tankID string) error
}

// TankChecker checks tank ownership against the tank registry.
type TankChecker struct {
	db *sql.DB
}

// NewTankChecker constructs a TankChecker.
func NewTankChecker(db *sql.DB) *TankChecker {
	if db == nil {
		return nil
	}
	return &TankChecker{db: db}
}

// EnsureTankTenant verifies the tank belongs to the tenant.
func (c *TankChecker) EnsureTankTenant(ctx context.Context, tenantID, tankID string) error {
	if c == nil || c.db == nil {
		return nil
	}
	if tenantID == "" || tankID == "" {
		return nil
	}
	var owner string
	err := c.db.QueryRowContext(ctx, `SELECT tenant_id FROM tanks WHERE id = $1`, tankID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if owner != tenantID {
		return ErrTenantMismatch
	}
	return nil
}
