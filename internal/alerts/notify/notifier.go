package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	alertapp "oxywatch-cloud/internal/alerts/application"
	alerts "oxywatch-cloud/internal/alerts/domain"
	tanks "oxywatch-cloud/internal/tanks/domain"
)

// TankReader loads tank metadata for notification content.
type TankReader interface {
	Get(ctx context.Context, tenantID, id string) (*tanks.TankConfiguration, error)
}

// DeliveryRecorder appends a delivery outcome to the alert's notification
// history. *application.Service satisfies it.
type DeliveryRecorder interface {
	RecordNotification(ctx context.Context, id, method, recipient, status, errMsg string) (*alerts.Alert, error)
}

// Clock provides time for the cooldown and dedupe windows.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders alert events and delivers them via a channel. Every
// delivery attempt is recorded on the alert.
type Notifier struct {
	tanks        TankReader
	recorder     DeliveryRecorder
	channel      Channel
	template     *Template
	method       string
	recipient    string
	clock        Clock
	mu           sync.Mutex
	sent         map[string]sendRecord
	cooldown     time.Duration
	dedupeWindow time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same
// alert and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithRecorder assigns a delivery recorder.
func WithRecorder(recorder DeliveryRecorder) Option {
	return func(n *Notifier) {
		n.recorder = recorder
	}
}

// WithMethod overrides the delivery method label recorded on alerts.
func WithMethod(method string) Option {
	return func(n *Notifier) {
		if method != "" {
			n.method = method
		}
	}
}

// WithRecipient overrides the recipient label recorded on alerts.
func WithRecipient(recipient string) Option {
	return func(n *Notifier) {
		if recipient != "" {
			n.recipient = recipient
		}
	}
}

// NewNotifier constructs an alert notifier.
func NewNotifier(tankReader TankReader, channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, fmt.Errorf("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		tanks:    tankReader,
		channel:  channel,
		template: template,
		method:   "webhook",
		clock:    systemClock{},
		sent:     make(map[string]sendRecord),
	}
	if hook, ok := channel.(*WebhookChannel); ok {
		n.recipient = hook.Recipient()
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// SetRecorder wires the delivery recorder after construction. The alert
// service is itself the recorder, so it cannot be passed to NewNotifier.
func (n *Notifier) SetRecorder(recorder DeliveryRecorder) {
	if n == nil {
		return
	}
	n.recorder = recorder
}

// Notify implements application.AlertNotifier.
func (n *Notifier) Notify(ctx context.Context, event alertapp.AlertEvent) {
	if n == nil || n.channel == nil {
		return
	}
	tank := n.lookupTank(ctx, event.Alert)
	content, err := n.template.Render(buildTemplateData(event.Type, event.Alert, tank))
	if err != nil {
		return
	}
	if !n.shouldSend(event.Alert.ID, event.Type, content) {
		return
	}
	sendErr := n.channel.Send(ctx, content)
	if sendErr == nil {
		n.markSent(event.Alert.ID, event.Type, content)
	}
	n.record(ctx, event.Alert.ID, sendErr)
}

func (n *Notifier) lookupTank(ctx context.Context, alert alerts.Alert) *tanks.TankConfiguration {
	if n.tanks == nil || alert.TankID == "" {
		return nil
	}
	tank, err := n.tanks.Get(ctx, alert.TenantID, alert.TankID)
	if err != nil {
		return nil
	}
	return tank
}

func (n *Notifier) record(ctx context.Context, alertID string, sendErr error) {
	if n.recorder == nil || alertID == "" {
		return
	}
	status := "sent"
	errMsg := ""
	if sendErr != nil {
		status = "failed"
		errMsg = sendErr.Error()
	}
	_, _ = n.recorder.RecordNotification(ctx, alertID, n.method, n.recipient, status, errMsg)
}

func buildTemplateData(eventType string, alert alerts.Alert, tank *tanks.TankConfiguration) TemplateData {
	tankName := alert.TankID
	if tank != nil && tank.Name != "" {
		tankName = tank.Name
	}
	fillPercent := ""
	if alert.SensorData != nil {
		fillPercent = fmt.Sprintf("%.1f%%", alert.SensorData.FillPercent)
	}
	return TemplateData{
		Tank:        tankName,
		TankID:      alert.TankID,
		Condition:   string(alert.Condition),
		Severity:    string(alert.Severity),
		Message:     alert.Message,
		FillPercent: fillPercent,
		StartTime:   alert.CreatedAt.UTC().Format(time.RFC3339),
		Status:      string(alert.Status),
		StatusCode:  string(alert.Status),
		Suggestion:  suggestionFor(alert.Severity),
		Event:       eventType,
		EventLabel:  eventLabel(eventType),
	}
}

func eventLabel(event string) string {
	switch event {
	case "active":
		return "Triggered"
	case "acknowledged":
		return "Acknowledged"
	case "resolved":
		return "Resolved"
	case "escalated":
		return "Escalated"
	case "dismissed":
		return "Dismissed"
	default:
		return event
	}
}

func suggestionFor(severity alerts.Severity) string {
	switch severity {
	case alerts.SeverityEmergency, alerts.SeverityCritical:
		return "Investigate immediately and mitigate risk."
	case alerts.SeverityHigh:
		return "Dispatch an operator to the tank location."
	case alerts.SeverityMedium:
		return "Verify the condition and take action if needed."
	default:
		return "Monitor the alert condition."
	}
}

func (n *Notifier) shouldSend(alertID, eventType, content string) bool {
	if n == nil {
		return false
	}
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(alertID, eventType)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(alertID, eventType, content string) {
	if n == nil {
		return
	}
	key := notificationKey(alertID, eventType)
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func notificationKey(alertID, eventType string) string {
	return alertID + "|" + eventType
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
