package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	alerts "oxywatch-cloud/internal/alerts/domain"
)

// AlertRepository is an in-memory alert store. It mirrors the postgres
// repository's semantics, including optimistic versioning on Save.
type AlertRepository struct {
	mu   sync.RWMutex
	data map[string]alerts.Alert
}

// NewAlertRepository constructs a repository.
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{data: make(map[string]alerts.Alert)}
}

// GetByID loads one alert. Returns nil when the id is unknown.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alerts.Alert, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.data[id]
	if !ok {
		return nil, nil
	}
	copied := stored.Clone()
	return &copied, nil
}

// FindOpenByTankCondition returns the open alert suppressing the given
// (tank, condition) pair, or nil when none is open.
func (r *AlertRepository) FindOpenByTankCondition(ctx context.Context, tenantID, tankID string, condition alerts.ConditionType) (*alerts.Alert, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, stored := range r.data {
		if stored.TenantID != tenantID || stored.TankID != tankID || stored.Condition != condition {
			continue
		}
		if !stored.IsOpen() {
			continue
		}
		copied := stored.Clone()
		return &copied, nil
	}
	return nil, nil
}

// ListOpenByTank returns all open alerts for a tank.
func (r *AlertRepository) ListOpenByTank(ctx context.Context, tenantID, tankID string) ([]alerts.Alert, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []alerts.Alert
	for _, stored := range r.data {
		if stored.TenantID == tenantID && stored.TankID == tankID && stored.IsOpen() {
			out = append(out, stored.Clone())
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

// ListOpenAutoEscalate returns active auto-escalating alerts. An empty
// tenantID matches every tenant.
func (r *AlertRepository) ListOpenAutoEscalate(ctx context.Context, tenantID string) ([]alerts.Alert, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []alerts.Alert
	for _, stored := range r.data {
		if tenantID != "" && stored.TenantID != tenantID {
			continue
		}
		if stored.Status == alerts.StatusActive && stored.AutoEscalate {
			out = append(out, stored.Clone())
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

// ListByTankStatusAndTime filters alerts by tank, optional status, and an
// optional creation-time window.
func (r *AlertRepository) ListByTankStatusAndTime(ctx context.Context, tenantID, tankID, status string, from, to time.Time) ([]alerts.Alert, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []alerts.Alert
	for _, stored := range r.data {
		if stored.TenantID != tenantID || stored.TankID != tankID {
			continue
		}
		if status != "" && string(stored.Status) != status {
			continue
		}
		if !from.IsZero() && stored.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && stored.CreatedAt.After(to) {
			continue
		}
		out = append(out, stored.Clone())
	}
	sortByCreatedAt(out)
	return out, nil
}

// Create inserts a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	_ = ctx
	if alert == nil {
		return errors.New("memory: nil alert")
	}
	if alert.ID == "" {
		return errors.New("memory: empty alert id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[alert.ID]; exists {
		return alerts.ErrConcurrencyConflict
	}
	r.data[alert.ID] = alert.Clone()
	return nil
}

// Save updates an alert. The incoming version must exceed the stored one
// by exactly one or the update is rejected.
func (r *AlertRepository) Save(ctx context.Context, alert *alerts.Alert) error {
	_ = ctx
	if alert == nil {
		return errors.New("memory: nil alert")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.data[alert.ID]
	if !ok {
		return alerts.ErrNotFound
	}
	if alert.Version != stored.Version+1 {
		return alerts.ErrConcurrencyConflict
	}
	r.data[alert.ID] = alert.Clone()
	return nil
}

func sortByCreatedAt(list []alerts.Alert) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
