package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	alerts "oxywatch-cloud/internal/alerts/domain"
)

func seedAlert(id string, status alerts.Status, createdAt time.Time) alerts.Alert {
	return alerts.Alert{
		ID:        id,
		TenantID:  "tenant-a",
		TankID:    "tank-1",
		Condition: alerts.ConditionLowLevel,
		Category:  alerts.CategoryTankMonitoring,
		Severity:  alerts.SeverityHigh,
		Status:    status,
		Message:   "oxygen level below refill threshold",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Version:   1,
	}
}

func TestCreateAndGetClonesState(t *testing.T) {
	repo := NewAlertRepository()
	ctx := context.Background()
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	alert := seedAlert("alert-1", alerts.StatusActive, now)
	alert.Actions = []alerts.ActionEntry{{Action: "created", Actor: "system", At: now}}
	if err := repo.Create(ctx, &alert); err != nil {
		t.Fatalf("Create: %v", err)
	}

	loaded, err := repo.GetByID(ctx, "alert-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loaded == nil || loaded.ID != "alert-1" {
		t.Fatalf("unexpected alert: %+v", loaded)
	}

	// Mutating the loaded copy must not reach the stored record.
	loaded.Actions[0].Actor = "mallory"
	again, err := repo.GetByID(ctx, "alert-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if again.Actions[0].Actor != "system" {
		t.Fatalf("stored alert mutated through loaded copy")
	}
}

func TestGetUnknownReturnsNil(t *testing.T) {
	repo := NewAlertRepository()
	loaded, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil, got %+v", loaded)
	}
}

func TestSaveRejectsStaleVersion(t *testing.T) {
	repo := NewAlertRepository()
	ctx := context.Background()
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	alert := seedAlert("alert-1", alerts.StatusActive, now)
	if err := repo.Create(ctx, &alert); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := alerts.Acknowledge(alert, "operator-1", "", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if err := repo.Save(ctx, &first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A second writer derived from the same original loses the race.
	second, err := alerts.Dismiss(alert, "operator-2", "", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if err := repo.Save(ctx, &second); !errors.Is(err, alerts.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}

	loaded, err := repo.GetByID(ctx, "alert-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loaded.Status != alerts.StatusAcknowledged {
		t.Fatalf("expected acknowledged, got %s", loaded.Status)
	}
}

func TestSaveUnknownReturnsNotFound(t *testing.T) {
	repo := NewAlertRepository()
	alert := seedAlert("ghost", alerts.StatusActive, time.Now().UTC())
	if err := repo.Save(context.Background(), &alert); !errors.Is(err, alerts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindOpenByTankConditionIgnoresClosed(t *testing.T) {
	repo := NewAlertRepository()
	ctx := context.Background()
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	resolved := seedAlert("alert-resolved", alerts.StatusResolved, now)
	acknowledged := seedAlert("alert-acked", alerts.StatusAcknowledged, now.Add(time.Minute))
	acknowledged.Condition = alerts.ConditionLowPressure
	if err := repo.Create(ctx, &resolved); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, &acknowledged); err != nil {
		t.Fatalf("Create: %v", err)
	}

	found, err := repo.FindOpenByTankCondition(ctx, "tenant-a", "tank-1", alerts.ConditionLowLevel)
	if err != nil {
		t.Fatalf("FindOpenByTankCondition: %v", err)
	}
	if found != nil {
		t.Fatalf("resolved alert should not suppress, got %+v", found)
	}

	found, err = repo.FindOpenByTankCondition(ctx, "tenant-a", "tank-1", alerts.ConditionLowPressure)
	if err != nil {
		t.Fatalf("FindOpenByTankCondition: %v", err)
	}
	if found != nil {
		t.Fatalf("acknowledged alert should not suppress, got %+v", found)
	}

	escalated := seedAlert("alert-escalated", alerts.StatusEscalated, now.Add(2*time.Minute))
	if err := repo.Create(ctx, &escalated); err != nil {
		t.Fatalf("Create: %v", err)
	}
	found, err = repo.FindOpenByTankCondition(ctx, "tenant-a", "tank-1", alerts.ConditionLowLevel)
	if err != nil {
		t.Fatalf("FindOpenByTankCondition: %v", err)
	}
	if found == nil || found.ID != "alert-escalated" {
		t.Fatalf("expected escalated alert, got %+v", found)
	}
}

func TestListByTankStatusAndTime(t *testing.T) {
	repo := NewAlertRepository()
	ctx := context.Background()
	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	for i, status := range []alerts.Status{alerts.StatusActive, alerts.StatusResolved, alerts.StatusActive} {
		alert := seedAlert("alert-"+string(rune('a'+i)), status, base.Add(time.Duration(i)*time.Hour))
		if err := repo.Create(ctx, &alert); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	active, err := repo.ListByTankStatusAndTime(ctx, "tenant-a", "tank-1", "active", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ListByTankStatusAndTime: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active alerts, got %d", len(active))
	}

	windowed, err := repo.ListByTankStatusAndTime(ctx, "tenant-a", "tank-1", "", base.Add(30*time.Minute), base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("ListByTankStatusAndTime: %v", err)
	}
	if len(windowed) != 1 || windowed[0].ID != "alert-b" {
		t.Fatalf("unexpected window result: %+v", windowed)
	}
}

func TestListOpenAutoEscalate(t *testing.T) {
	repo := NewAlertRepository()
	ctx := context.Background()
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	auto := seedAlert("alert-auto", alerts.StatusActive, now)
	auto.AutoEscalate = true
	manual := seedAlert("alert-manual", alerts.StatusActive, now)
	manual.Condition = alerts.ConditionHighPressure
	acked := seedAlert("alert-acked", alerts.StatusAcknowledged, now)
	acked.AutoEscalate = true
	acked.Condition = alerts.ConditionLeak
	foreign := seedAlert("alert-foreign", alerts.StatusActive, now.Add(time.Minute))
	foreign.TenantID = "tenant-b"
	foreign.AutoEscalate = true
	for _, alert := range []*alerts.Alert{&auto, &manual, &acked, &foreign} {
		if err := repo.Create(ctx, alert); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	due, err := repo.ListOpenAutoEscalate(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("ListOpenAutoEscalate: %v", err)
	}
	if len(due) != 1 || due[0].ID != "alert-auto" {
		t.Fatalf("unexpected result: %+v", due)
	}

	// The empty tenant id sweeps every tenant.
	all, err := repo.ListOpenAutoEscalate(ctx, "")
	if err != nil {
		t.Fatalf("ListOpenAutoEscalate all tenants: %v", err)
	}
	if len(all) != 2 || all[0].ID != "alert-auto" || all[1].ID != "alert-foreign" {
		t.Fatalf("unexpected sweep result: %+v", all)
	}
}
