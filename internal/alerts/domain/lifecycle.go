package alerts

import "time"

const (
	ActionCreated      = "created"
	ActionAcknowledged = "acknowledged"
	ActionResolved     = "resolved"
	ActionEscalated    = "escalated"
	ActionDismissed    = "dismissed"
)

// Acknowledge moves an alert to acknowledged. Legal from active or
// escalated. The first acknowledgment wins the timestamp; the counter
// increments on every successful call.
func Acknowledge(alert Alert, actor, notes string, now time.Time) (Alert, error) {
	if alert.Status != StatusActive && alert.Status != StatusEscalated {
		return alert, &InvalidTransitionError{Action: ActionAcknowledged, Status: alert.Status}
	}
	next := alert
	next.Status = StatusAcknowledged
	if next.AcknowledgedAt.IsZero() {
		next.AcknowledgedAt = now
		next.AcknowledgedBy = actor
	}
	next.AcknowledgmentCount++
	next.Actions = appendAction(next.Actions, ActionEntry{
		Action: ActionAcknowledged,
		Actor:  actor,
		Detail: notes,
		At:     now,
	})
	next.Version++
	next.UpdatedAt = now
	return next, nil
}

// Resolve moves an alert to its resolved terminal state. Legal from any
// non-terminal status.
func Resolve(alert Alert, actor, notes string, now time.Time) (Alert, error) {
	if alert.IsTerminal() {
		return alert, &InvalidTransitionError{Action: ActionResolved, Status: alert.Status}
	}
	next := alert
	next.Status = StatusResolved
	next.ResolvedBy = actor
	next.ResolvedAt = now
	next.ResolutionNotes = notes
	next.Actions = appendAction(next.Actions, ActionEntry{
		Action: ActionResolved,
		Actor:  actor,
		Detail: notes,
		At:     now,
	})
	next.Version++
	next.UpdatedAt = now
	return next, nil
}

// Escalate raises the alert one escalation level. Legal from active or
// acknowledged. Appends one escalation entry and one action entry.
func Escalate(alert Alert, target, reason string, now time.Time) (Alert, error) {
	if alert.Status != StatusActive && alert.Status != StatusAcknowledged {
		return alert, &InvalidTransitionError{Action: ActionEscalated, Status: alert.Status}
	}
	next := alert
	next.Status = StatusEscalated
	next.EscalatedTo = target
	next.EscalationReason = reason
	if next.EscalatedAt.IsZero() {
		next.EscalatedAt = now
	}
	next.EscalationLevel++
	next.Escalations = appendEscalation(next.Escalations, EscalationEntry{
		Level:  next.EscalationLevel,
		Target: target,
		Reason: reason,
		At:     now,
	})
	next.Actions = appendAction(next.Actions, ActionEntry{
		Action: ActionEscalated,
		Actor:  target,
		Detail: reason,
		At:     now,
	})
	next.Version++
	next.UpdatedAt = now
	return next, nil
}

// Dismiss moves an alert to its dismissed terminal state. Legal from any
// non-terminal status.
func Dismiss(alert Alert, actor, reason string, now time.Time) (Alert, error) {
	if alert.IsTerminal() {
		return alert, &InvalidTransitionError{Action: ActionDismissed, Status: alert.Status}
	}
	next := alert
	next.Status = StatusDismissed
	next.DismissedBy = actor
	next.DismissedAt = now
	next.Actions = appendAction(next.Actions, ActionEntry{
		Action: ActionDismissed,
		Actor:  actor,
		Detail: reason,
		At:     now,
	})
	next.Version++
	next.UpdatedAt = now
	return next, nil
}

// RecordNotification logs a delivery outcome. Allowed in any state, even
// after resolution; it never changes the status.
func RecordNotification(alert Alert, method, recipient, status, errMsg string, now time.Time) Alert {
	next := alert
	next.Notifications = appendNotification(next.Notifications, NotificationEntry{
		Method:    method,
		Recipient: recipient,
		Status:    status,
		Error:     errMsg,
		At:        now,
	})
	next.NotificationCount++
	next.Version++
	next.UpdatedAt = now
	return next
}

// ShouldAutoEscalate reports whether the scheduler should escalate the
// alert: auto-escalation enabled, still active, and the deadline reached.
func ShouldAutoEscalate(alert Alert, now time.Time) bool {
	due := alert.NextEscalationAt()
	return !due.IsZero() && !now.Before(due)
}

// The append helpers copy the backing array so that derived alert values
// never share history storage with their originals.

func appendAction(entries []ActionEntry, entry ActionEntry) []ActionEntry {
	out := make([]ActionEntry, len(entries), len(entries)+1)
	copy(out, entries)
	return append(out, entry)
}

func appendEscalation(entries []EscalationEntry, entry EscalationEntry) []EscalationEntry {
	out := make([]EscalationEntry, len(entries), len(entries)+1)
	copy(out, entries)
	return append(out, entry)
}

func appendNotification(entries []NotificationEntry, entry NotificationEntry) []NotificationEntry {
	out := make([]NotificationEntry, len(entries), len(entries)+1)
	copy(out, entries)
	return append(out, entry)
}
