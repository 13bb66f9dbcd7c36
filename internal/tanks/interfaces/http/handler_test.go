package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"oxywatch-cloud/internal/auth"
	tankapp "oxywatch-cloud/internal/tanks/application"
	tanks "oxywatch-cloud/internal/tanks/domain"
)

type memoryTankRepo struct {
	mu    sync.Mutex
	items map[string]tanks.TankConfiguration
}

func newMemoryTankRepo() *memoryTankRepo {
	return &memoryTankRepo{items: make(map[string]tanks.TankConfiguration)}
}

func (r *memoryTankRepo) Get(_ context.Context, tenantID, id string) (*tanks.TankConfiguration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tank, ok := r.items[id]
	if !ok || tank.TenantID != tenantID {
		return nil, nil
	}
	copied := tank
	return &copied, nil
}

func (r *memoryTankRepo) List(_ context.Context, tenantID string) ([]tanks.TankConfiguration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []tanks.TankConfiguration
	for _, tank := range r.items {
		if tank.TenantID == tenantID {
			result = append(result, tank)
		}
	}
	return result, nil
}

func (r *memoryTankRepo) Save(_ context.Context, tank *tanks.TankConfiguration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[tank.ID] = *tank
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *memoryTankRepo) {
	t.Helper()
	repo := newMemoryTankRepo()
	service, err := tankapp.NewService(repo, "tenant-a")
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handler, err := NewHandler(service)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler, repo
}

const validTankBody = `{
	"id": "tank-1",
	"name": "Ward 3 Main",
	"location": "Building A",
	"capacity_liters": 100,
	"min_pressure": 100,
	"max_pressure": 2200,
	"refill_threshold_percent": 20,
	"leak_detection_enabled": true
}`

func TestRegisterTank(t *testing.T) {
	handler, repo := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tanks", strings.NewReader(validTankBody))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	stored, err := repo.Get(context.Background(), "tenant-a", "tank-1")
	if err != nil || stored == nil {
		t.Fatalf("tank not stored: %v", err)
	}
	if stored.Name != "Ward 3 Main" || stored.TenantID != "tenant-a" {
		t.Fatalf("unexpected tank %+v", stored)
	}
}

func TestRegisterTankRejectsInvalidConfig(t *testing.T) {
	handler, _ := newTestHandler(t)

	body := strings.Replace(validTankBody, `"capacity_liters": 100`, `"capacity_liters": 0`, 1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tanks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUpdateTankByPath(t *testing.T) {
	handler, repo := newTestHandler(t)

	seed := httptest.NewRequest(http.MethodPost, "/api/v1/tanks", strings.NewReader(validTankBody))
	handler.ServeHTTP(httptest.NewRecorder(), seed)

	update := strings.Replace(validTankBody, `"Ward 3 Main"`, `"Ward 3 Backup"`, 1)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/tanks/tank-1", strings.NewReader(update))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	stored, _ := repo.Get(context.Background(), "tenant-a", "tank-1")
	if stored == nil || stored.Name != "Ward 3 Backup" {
		t.Fatalf("update not applied: %+v", stored)
	}
}

func TestGetTankScopedToTenant(t *testing.T) {
	handler, _ := newTestHandler(t)

	seed := httptest.NewRequest(http.MethodPost, "/api/v1/tanks", strings.NewReader(validTankBody))
	handler.ServeHTTP(httptest.NewRecorder(), seed)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tanks/tank-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	foreign := httptest.NewRequest(http.MethodGet, "/api/v1/tanks/tank-1", nil)
	foreign = foreign.WithContext(auth.WithIdentity(foreign.Context(), "tenant-b", auth.RoleViewer, "user-1"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, foreign)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign tenant status = %d", rec.Code)
	}
}

func TestListTanks(t *testing.T) {
	handler, _ := newTestHandler(t)

	seed := httptest.NewRequest(http.MethodPost, "/api/v1/tanks", strings.NewReader(validTankBody))
	handler.ServeHTTP(httptest.NewRecorder(), seed)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tanks", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var listed []tanks.TankConfiguration
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "tank-1" {
		t.Fatalf("unexpected list %+v", listed)
	}
}
