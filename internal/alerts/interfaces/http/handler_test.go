package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	alertapp "oxywatch-cloud/internal/alerts/application"
	alerts "oxywatch-cloud/internal/alerts/domain"
	"oxywatch-cloud/internal/alerts/infrastructure/memory"
	"oxywatch-cloud/internal/auth"
	tanks "oxywatch-cloud/internal/tanks/domain"
)

type tankReaderFunc func() *tanks.TankConfiguration

func (f tankReaderFunc) Get(_ context.Context, _, _ string) (*tanks.TankConfiguration, error) {
	return f(), nil
}

func newTestHandler(t *testing.T) (*Handler, *memory.AlertRepository) {
	t.Helper()
	repo := memory.NewAlertRepository()
	service, err := alertapp.NewService(repo, tankReaderFunc(func() *tanks.TankConfiguration {
		return &tanks.TankConfiguration{ID: "tank-1", TenantID: "tenant-a", Name: "ward-3 main", CapacityLiters: 100, MinPressure: 100, MaxPressure: 2200}
	}), "tenant-a")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	handler, err := NewHandler(service, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return handler, repo
}

func seedActiveAlert(t *testing.T, repo *memory.AlertRepository, id string) alerts.Alert {
	t.Helper()
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	alert := alerts.Alert{
		ID:        id,
		TenantID:  "tenant-a",
		TankID:    "tank-1",
		Condition: alerts.ConditionLowLevel,
		Category:  alerts.CategoryTankMonitoring,
		Severity:  alerts.SeverityHigh,
		Status:    alerts.StatusActive,
		Message:   "tank level below refill threshold",
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if err := repo.Create(context.Background(), &alert); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return alert
}

func TestActionAcknowledge(t *testing.T) {
	handler, repo := newTestHandler(t)
	seedActiveAlert(t, repo, "alert-1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/alert-1/ack", strings.NewReader(`{"actor":"operator-1","notes":"on my way"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var alert alerts.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &alert); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if alert.Status != alerts.StatusAcknowledged || alert.AcknowledgedBy != "operator-1" {
		t.Fatalf("unexpected alert: %+v", alert)
	}
}

func TestActionOnTerminalAlertConflicts(t *testing.T) {
	handler, repo := newTestHandler(t)
	seedActiveAlert(t, repo, "alert-1")

	resolve := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/alert-1/resolve", strings.NewReader(`{"actor":"operator-1","notes":"refilled"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, resolve)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	dismiss := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/alert-1/dismiss", strings.NewReader(`{"actor":"operator-2"}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, dismiss)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestActionUnknownAlert(t *testing.T) {
	handler, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/missing/ack", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestEscalateRequiresTarget(t *testing.T) {
	handler, repo := newTestHandler(t)
	seedActiveAlert(t, repo, "alert-1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/alert-1/escalate", strings.NewReader(`{"reason":"no response"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetAlertForeignTenantForbidden(t *testing.T) {
	handler, repo := newTestHandler(t)
	seedActiveAlert(t, repo, "alert-1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/alert-1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "tenant-b", auth.RoleViewer, "user-9"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestListRequiresWindow(t *testing.T) {
	handler, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?tank_id=tank-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListReturnsSeededAlert(t *testing.T) {
	handler, repo := newTestHandler(t)
	seedActiveAlert(t, repo, "alert-1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?tank_id=tank-1&from=2026-02-10T00:00:00Z&to=2026-02-11T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var list []alerts.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].ID != "alert-1" {
		t.Fatalf("unexpected list: %+v", list)
	}
}
