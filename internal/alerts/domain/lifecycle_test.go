package alerts

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

func activeAlert() Alert {
	return NewAlert("alert-1", "tenant-1", CreationRequest{
		TankID:    "tank-1",
		Condition: ConditionLowLevel,
		Category:  CategoryTankMonitoring,
		Severity:  SeverityHigh,
		Message:   "tank level at 15.0% of capacity (refill threshold 20.0%)",
	}, testNow)
}

func TestAcknowledgeFromActive(t *testing.T) {
	alert := activeAlert()
	ackAt := testNow.Add(time.Minute)

	next, err := Acknowledge(alert, "op-1", "on my way", ackAt)
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if next.Status != StatusAcknowledged {
		t.Fatalf("expected acknowledged, got %s", next.Status)
	}
	if !next.AcknowledgedAt.Equal(ackAt) || next.AcknowledgedBy != "op-1" {
		t.Fatalf("acknowledgment fields not set: %+v", next)
	}
	if next.AcknowledgmentCount != 1 {
		t.Fatalf("expected count 1, got %d", next.AcknowledgmentCount)
	}
	if len(next.Actions) != len(alert.Actions)+1 {
		t.Fatalf("expected exactly one new action entry")
	}
	last := next.Actions[len(next.Actions)-1]
	if last.Action != ActionAcknowledged || last.Actor != "op-1" || last.Detail != "on my way" {
		t.Fatalf("unexpected action entry: %+v", last)
	}
}

func TestReacknowledgeKeepsFirstTimestamp(t *testing.T) {
	alert := activeAlert()
	first := testNow.Add(time.Minute)
	acked, err := Acknowledge(alert, "op-1", "", first)
	if err != nil {
		t.Fatalf("first acknowledge: %v", err)
	}
	escalated, err := Escalate(acked, "supervisor", "still breached", first.Add(time.Minute))
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}

	second := first.Add(10 * time.Minute)
	reacked, err := Acknowledge(escalated, "op-2", "taking over", second)
	if err != nil {
		t.Fatalf("second acknowledge: %v", err)
	}
	if !reacked.AcknowledgedAt.Equal(first) || reacked.AcknowledgedBy != "op-1" {
		t.Fatalf("first acknowledgment must be immutable, got %v by %s", reacked.AcknowledgedAt, reacked.AcknowledgedBy)
	}
	if reacked.AcknowledgmentCount != 2 {
		t.Fatalf("expected count 2, got %d", reacked.AcknowledgmentCount)
	}
}

func TestResolveIsTerminal(t *testing.T) {
	alert := activeAlert()
	resolvedAt := testNow.Add(5 * time.Minute)

	resolved, err := Resolve(alert, "opX", "refilled", resolvedAt)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != StatusResolved {
		t.Fatalf("expected resolved, got %s", resolved.Status)
	}
	if !resolved.ResolvedAt.Equal(resolvedAt) || resolved.ResolutionNotes != "refilled" {
		t.Fatalf("resolution fields not set: %+v", resolved)
	}

	_, err = Acknowledge(resolved, "opY", "", resolvedAt.Add(time.Minute))
	var transitionErr *InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if transitionErr.Status != StatusResolved {
		t.Fatalf("expected rejection to name resolved, got %s", transitionErr.Status)
	}
}

func TestIllegalTransitionsLeaveAlertUnchanged(t *testing.T) {
	alert := activeAlert()
	resolved, err := Resolve(alert, "op-1", "done", testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	dismissed, err := Dismiss(activeAlert(), "op-1", "noise", testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	terminal := []Alert{resolved, dismissed}
	for _, current := range terminal {
		before := current
		ops := []func() (Alert, error){
			func() (Alert, error) { return Acknowledge(current, "op-2", "", testNow.Add(time.Hour)) },
			func() (Alert, error) { return Resolve(current, "op-2", "", testNow.Add(time.Hour)) },
			func() (Alert, error) { return Escalate(current, "sup", "late", testNow.Add(time.Hour)) },
			func() (Alert, error) { return Dismiss(current, "op-2", "", testNow.Add(time.Hour)) },
		}
		for i, op := range ops {
			got, err := op()
			if !IsInvalidTransition(err) {
				t.Fatalf("op %d on %s: expected InvalidTransitionError, got %v", i, before.Status, err)
			}
			if got.Status != before.Status ||
				got.EscalationLevel != before.EscalationLevel ||
				got.AcknowledgmentCount != before.AcknowledgmentCount ||
				len(got.Actions) != len(before.Actions) {
				t.Fatalf("op %d on %s: rejected transition mutated the alert", i, before.Status)
			}
		}
	}
}

func TestEscalateFromDismissedRejected(t *testing.T) {
	dismissed, err := Dismiss(activeAlert(), "op-1", "", testNow)
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if _, err := Escalate(dismissed, "sup", "late", testNow.Add(time.Minute)); !IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestEscalationLevelMonotonic(t *testing.T) {
	alert := activeAlert()

	escalated, err := Escalate(alert, "opZ", "timeout", testNow.Add(6*time.Minute))
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if escalated.Status != StatusEscalated || escalated.EscalationLevel != 1 {
		t.Fatalf("expected escalated level 1, got %s level %d", escalated.Status, escalated.EscalationLevel)
	}
	if len(escalated.Escalations) != 1 || escalated.Escalations[0].Level != 1 {
		t.Fatalf("expected one escalation entry at level 1: %+v", escalated.Escalations)
	}

	acked, err := Acknowledge(escalated, "op-2", "", testNow.Add(7*time.Minute))
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	again, err := Escalate(acked, "manager", "unresolved", testNow.Add(20*time.Minute))
	if err != nil {
		t.Fatalf("second escalate: %v", err)
	}
	if again.EscalationLevel != 2 {
		t.Fatalf("expected level 2, got %d", again.EscalationLevel)
	}
	if !again.EscalatedAt.Equal(escalated.EscalatedAt) {
		t.Fatalf("first escalation timestamp must be immutable")
	}
}

func TestHistoriesAppendOnly(t *testing.T) {
	alert := activeAlert()
	actions := len(alert.Actions)

	acked, _ := Acknowledge(alert, "op-1", "", testNow.Add(time.Minute))
	if len(acked.Actions) != actions+1 || len(acked.Escalations) != 0 {
		t.Fatalf("acknowledge must append exactly one action entry")
	}
	escalated, _ := Escalate(acked, "sup", "slow", testNow.Add(2*time.Minute))
	if len(escalated.Actions) != actions+2 || len(escalated.Escalations) != 1 {
		t.Fatalf("escalate must append one action and one escalation entry")
	}
	notified := RecordNotification(escalated, "webhook", "ops-channel", "delivered", "", testNow.Add(3*time.Minute))
	if len(notified.Notifications) != 1 || notified.NotificationCount != 1 {
		t.Fatalf("record notification must append one entry and bump counter")
	}
	if notified.Status != escalated.Status {
		t.Fatalf("record notification must not change status")
	}
	// Derived copies never share history storage with their originals.
	if len(escalated.Notifications) != 0 {
		t.Fatalf("original alert mutated by derived copy")
	}
}

func TestNotificationAllowedAfterResolution(t *testing.T) {
	resolved, err := Resolve(activeAlert(), "op-1", "refilled", testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	late := RecordNotification(resolved, "sms", "+15550100", "delivered", "", testNow.Add(time.Hour))
	if late.Status != StatusResolved || late.NotificationCount != 1 {
		t.Fatalf("late delivery confirmation must log without a status change")
	}
}

func TestShouldAutoEscalate(t *testing.T) {
	alert := activeAlert()
	alert.AutoEscalate = true
	alert.EscalationDelaySeconds = 300
	alert.CreatedAt = testNow.Add(-301 * time.Second)

	if !ShouldAutoEscalate(alert, testNow) {
		t.Fatalf("expected auto-escalation due after delay elapsed")
	}

	early := alert
	early.CreatedAt = testNow.Add(-299 * time.Second)
	if ShouldAutoEscalate(early, testNow) {
		t.Fatalf("auto-escalation must not fire before the delay")
	}

	acked, _ := Acknowledge(alert, "op-1", "", testNow)
	if ShouldAutoEscalate(acked, testNow.Add(time.Hour)) {
		t.Fatalf("acknowledged alerts do not auto-escalate")
	}

	disabled := alert
	disabled.AutoEscalate = false
	if ShouldAutoEscalate(disabled, testNow) {
		t.Fatalf("auto-escalation disabled")
	}
}

func TestNextEscalationAt(t *testing.T) {
	alert := activeAlert()
	alert.AutoEscalate = true
	alert.EscalationDelaySeconds = 300

	due := alert.NextEscalationAt()
	if !due.Equal(alert.CreatedAt.Add(300 * time.Second)) {
		t.Fatalf("expected deadline at creation+300s, got %v", due)
	}
	if ShouldAutoEscalate(alert, due.Add(-time.Second)) {
		t.Fatalf("auto-escalation must not fire before the deadline")
	}
	if !ShouldAutoEscalate(alert, due) {
		t.Fatalf("auto-escalation due exactly at the deadline")
	}

	noDelay := alert
	noDelay.EscalationDelaySeconds = 0
	if !noDelay.NextEscalationAt().Equal(alert.CreatedAt.Add(DefaultEscalationDelaySeconds * time.Second)) {
		t.Fatalf("zero delay must fall back to the default")
	}

	acked, _ := Acknowledge(alert, "op-1", "", testNow)
	if !acked.NextEscalationAt().IsZero() {
		t.Fatalf("acknowledged alerts have no escalation deadline")
	}
	disabled := alert
	disabled.AutoEscalate = false
	if !disabled.NextEscalationAt().IsZero() {
		t.Fatalf("deadline must be zero when auto-escalation is disabled")
	}
}

func TestDerivedQueries(t *testing.T) {
	alert := activeAlert()
	alert.Severity = SeverityCritical
	if !alert.IsUrgent() || !alert.NeedsImmediateAttention() {
		t.Fatalf("critical active alert needs immediate attention")
	}

	if _, ok := alert.TimeSinceAcknowledgment(testNow); ok {
		t.Fatalf("unacknowledged alert has no acknowledgment age")
	}
	acked, _ := Acknowledge(alert, "op-1", "", testNow.Add(time.Minute))
	if age, ok := acked.TimeSinceAcknowledgment(testNow.Add(2 * time.Minute)); !ok || age != time.Minute {
		t.Fatalf("expected 1m since acknowledgment, got %v ok=%v", age, ok)
	}

	if minutes := alert.DurationMinutes(testNow.Add(30 * time.Minute)); minutes != 30 {
		t.Fatalf("expected 30 minutes duration, got %v", minutes)
	}
}
