package application

import (
	"context"
	"testing"
	"time"

	alerts "oxywatch-cloud/internal/alerts/domain"
	tanks "oxywatch-cloud/internal/tanks/domain"
)

func TestSchedulerEscalatesOverdueAlert(t *testing.T) {
	service, _, notifier, clock := newTestService(t)
	scheduler, err := NewEscalationScheduler(service, "oncall-supervisors", nil)
	if err != nil {
		t.Fatalf("NewEscalationScheduler: %v", err)
	}
	ctx := context.Background()

	// A critical-level breach opens an auto-escalating alert.
	tank := testTank()
	tank.IsCriticalLevel = true
	reader := &stubTankReader{tanks: map[string]*tanks.TankConfiguration{"tank-1": tank}}
	service.tanksRepo = reader

	if err := service.HandleReadingReceived(ctx, lowLevelReading()); err != nil {
		t.Fatalf("HandleReadingReceived: %v", err)
	}
	var alert alerts.Alert
	for _, event := range notifier.byType("active") {
		if event.Alert.Condition == alerts.ConditionCriticalLevel {
			alert = event.Alert
		}
	}
	if alert.ID == "" {
		t.Fatalf("expected critical level alert")
	}
	if !alert.AutoEscalate {
		t.Fatalf("critical alert must auto-escalate")
	}

	// Before the delay elapses nothing happens.
	if err := scheduler.Tick(ctx, clock.Now().Add(299*time.Second)); err != nil {
		t.Fatalf("early Tick: %v", err)
	}
	if got := len(notifier.byType("escalated")); got != 0 {
		t.Fatalf("expected no escalation yet, got %d", got)
	}

	// Past the delay the sweep escalates exactly once.
	if err := scheduler.Tick(ctx, clock.Now().Add(301*time.Second)); err != nil {
		t.Fatalf("due Tick: %v", err)
	}
	escalated := notifier.byType("escalated")
	if len(escalated) != 1 {
		t.Fatalf("expected 1 escalation, got %d", len(escalated))
	}
	if escalated[0].Alert.EscalatedTo != "oncall-supervisors" {
		t.Fatalf("unexpected target %q", escalated[0].Alert.EscalatedTo)
	}
	if escalated[0].Alert.EscalationLevel != 1 {
		t.Fatalf("unexpected level %d", escalated[0].Alert.EscalationLevel)
	}

	// A second sweep finds the alert already escalated.
	if err := scheduler.Tick(ctx, clock.Now().Add(600*time.Second)); err != nil {
		t.Fatalf("repeat Tick: %v", err)
	}
	if got := len(notifier.byType("escalated")); got != 1 {
		t.Fatalf("sweep must not escalate twice, got %d", got)
	}
}

func TestSchedulerSweepsAllTenants(t *testing.T) {
	service, repo, notifier, clock := newTestService(t)
	scheduler, err := NewEscalationScheduler(service, "oncall-supervisors", nil)
	if err != nil {
		t.Fatalf("NewEscalationScheduler: %v", err)
	}
	ctx := context.Background()

	now := clock.Now()
	for i, tenantID := range []string{"tenant-a", "tenant-b"} {
		alert := alerts.Alert{
			ID:           "alert-crit-" + tenantID,
			TenantID:     tenantID,
			TankID:       "tank-1",
			Condition:    alerts.ConditionCriticalLevel,
			Category:     alerts.CategoryTankMonitoring,
			Severity:     alerts.SeverityCritical,
			Status:       alerts.StatusActive,
			CreatedAt:    now.Add(-10 * time.Minute),
			UpdatedAt:    now.Add(-10 * time.Minute),
			AutoEscalate: true,
			Version:      1,
		}
		if err := repo.Create(ctx, &alert); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	if err := scheduler.Tick(ctx, now); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	escalated := notifier.byType("escalated")
	if len(escalated) != 2 {
		t.Fatalf("expected both tenants swept, got %d escalations", len(escalated))
	}
	tenants := map[string]bool{}
	for _, event := range escalated {
		tenants[event.Alert.TenantID] = true
	}
	if !tenants["tenant-a"] || !tenants["tenant-b"] {
		t.Fatalf("expected escalations for both tenants, got %v", tenants)
	}
}

func TestSchedulerSkipsAcknowledgedAlert(t *testing.T) {
	service, repo, notifier, clock := newTestService(t)
	scheduler, err := NewEscalationScheduler(service, "oncall-supervisors", nil)
	if err != nil {
		t.Fatalf("NewEscalationScheduler: %v", err)
	}
	ctx := context.Background()

	now := clock.Now()
	alert := alerts.Alert{
		ID:           "alert-crit",
		TenantID:     "tenant-a",
		TankID:       "tank-1",
		Condition:    alerts.ConditionCriticalLevel,
		Category:     alerts.CategoryTankMonitoring,
		Severity:     alerts.SeverityCritical,
		Status:       alerts.StatusActive,
		CreatedAt:    now.Add(-10 * time.Minute),
		UpdatedAt:    now.Add(-10 * time.Minute),
		AutoEscalate: true,
		Version:      1,
	}
	if err := repo.Create(ctx, &alert); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := service.Acknowledge(ctx, alert.ID, "operator-1", ""); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	if err := scheduler.Tick(ctx, now); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := len(notifier.byType("escalated")); got != 0 {
		t.Fatalf("acknowledged alert must not auto-escalate, got %d", got)
	}
}
