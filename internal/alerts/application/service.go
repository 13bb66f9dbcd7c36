package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	alerts "oxywatch-cloud/internal/alerts/domain"
	"oxywatch-cloud/internal/audit"
	"oxywatch-cloud/internal/auth"
	"oxywatch-cloud/internal/observability/metrics"
	readingevents "oxywatch-cloud/internal/readings/application/events"
	readings "oxywatch-cloud/internal/readings/domain"
	tanks "oxywatch-cloud/internal/tanks/domain"
)

// AlertRepository persists alert records. Save applies optimistic
// versioning and returns alerts.ErrConcurrencyConflict on a lost update.
// ListOpenAutoEscalate treats an empty tenantID as every tenant.
type AlertRepository interface {
	GetByID(ctx context.Context, id string) (*alerts.Alert, error)
	FindOpenByTankCondition(ctx context.Context, tenantID, tankID string, condition alerts.ConditionType) (*alerts.Alert, error)
	ListOpenByTank(ctx context.Context, tenantID, tankID string) ([]alerts.Alert, error)
	ListOpenAutoEscalate(ctx context.Context, tenantID string) ([]alerts.Alert, error)
	ListByTankStatusAndTime(ctx context.Context, tenantID, tankID, status string, from, to time.Time) ([]alerts.Alert, error)
	Create(ctx context.Context, alert *alerts.Alert) error
	Save(ctx context.Context, alert *alerts.Alert) error
}

// TankReader loads tank configuration snapshots.
type TankReader interface {
	Get(ctx context.Context, tenantID, id string) (*tanks.TankConfiguration, error)
}

// AlertNotifier publishes alert lifecycle events.
type AlertNotifier interface {
	Notify(ctx context.Context, event AlertEvent)
}

// AlertEvent represents a lifecycle update.
type AlertEvent struct {
	Type  string       `json:"type"`
	Alert alerts.Alert `json:"alert"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

const lockStripes = 64

// Service handles threshold evaluation and alert state transitions.
// Mutating operations on a single alert are serialized via striped locks;
// creation is serialized per tank so the duplicate check cannot race.
type Service struct {
	alerts        AlertRepository
	tanksRepo     TankReader
	thresholds    alerts.Thresholds
	thresholdsFor ThresholdResolver
	notifier      AlertNotifier
	auditor       audit.Logger
	clock         Clock
	tenantID      string
	locks         [lockStripes]sync.Mutex
}

// ThresholdResolver returns evaluation defaults for a tank.
type ThresholdResolver func(tankID string) alerts.Thresholds

// ServiceOption customizes the alert service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier AlertNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithAuditor assigns an audit logger for operator transitions.
func WithAuditor(auditor audit.Logger) ServiceOption {
	return func(s *Service) {
		s.auditor = auditor
	}
}

// WithThresholds overrides the global evaluation defaults.
func WithThresholds(thresholds alerts.Thresholds) ServiceOption {
	return func(s *Service) {
		s.thresholds = thresholds
	}
}

// WithThresholdResolver resolves per-tank evaluation defaults, typically
// from the YAML threshold config.
func WithThresholdResolver(resolver ThresholdResolver) ServiceOption {
	return func(s *Service) {
		s.thresholdsFor = resolver
	}
}

// NewService constructs an alert service.
func NewService(alertRepo AlertRepository, tankRepo TankReader, tenantID string, opts ...ServiceOption) (*Service, error) {
	if alertRepo == nil {
		return nil, errors.New("alerts: nil alert repository")
	}
	if tankRepo == nil {
		return nil, errors.New("alerts: nil tank reader")
	}
	if tenantID == "" {
		return nil, errors.New("alerts: empty tenant id")
	}
	service := &Service{
		alerts:     alertRepo,
		tanksRepo:  tankRepo,
		thresholds: alerts.DefaultThresholds(),
		clock:      systemClock{},
		tenantID:   tenantID,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// HandleReadingReceived evaluates a reading against the owning tank's
// configuration and opens alerts for newly breached conditions.
func (s *Service) HandleReadingReceived(ctx context.Context, evt readingevents.ReadingReceived) error {
	if s == nil {
		return errors.New("alerts: nil service")
	}
	if evt.TankID == "" {
		return errors.New("alerts: reading missing tank id")
	}
	start := s.clock.Now()
	tenantID := evt.TenantID
	if tenantID == "" {
		tenantID = s.tenantID
	}

	cfg, err := s.tanksRepo.Get(ctx, tenantID, evt.TankID)
	if err != nil {
		return err
	}
	if cfg == nil {
		return &alerts.ConfigurationError{TankID: evt.TankID, Reason: "unknown tank"}
	}

	reading := readings.Reading{
		TankID:      evt.TankID,
		Level:       evt.Level,
		Pressure:    evt.Pressure,
		Temperature: evt.Temperature,
		Humidity:    evt.Humidity,
		TS:          evt.OccurredAt,
	}
	defaults := s.thresholds
	if s.thresholdsFor != nil {
		defaults = s.thresholdsFor(evt.TankID)
	}
	verdicts, err := alerts.Evaluate(*cfg, reading, defaults)
	if err != nil {
		return err
	}

	created, err := s.openForVerdicts(ctx, tenantID, evt.TankID, verdicts)
	if err != nil {
		return err
	}
	// Events fire outside the stripe lock: listeners may re-enter the
	// service for delivery bookkeeping.
	for _, alert := range created {
		s.notify(ctx, "active", alert)
	}
	metrics.ObserveEvaluation(s.clock.Now().Sub(start))
	return nil
}

// openForVerdicts creates alerts for breached conditions. Creation must be
// atomic with the duplicate check: serialize per tank and re-check open
// alerts under the stripe.
func (s *Service) openForVerdicts(ctx context.Context, tenantID, tankID string, verdicts []alerts.ConditionVerdict) ([]alerts.Alert, error) {
	lock := s.lockFor(tankID)
	lock.Lock()
	defer lock.Unlock()

	open, err := s.alerts.ListOpenByTank(ctx, tenantID, tankID)
	if err != nil {
		return nil, err
	}
	var created []alerts.Alert
	for _, request := range alerts.Reconcile(tankID, verdicts, open) {
		existing, err := s.alerts.FindOpenByTankCondition(ctx, tenantID, request.TankID, request.Condition)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}
		now := s.clock.Now().UTC()
		alert := alerts.NewAlert(buildAlertID(), tenantID, request, now)
		if err := s.alerts.Create(ctx, &alert); err != nil {
			return created, err
		}
		created = append(created, alert)
	}
	return created, nil
}

// Acknowledge acknowledges an alert.
func (s *Service) Acknowledge(ctx context.Context, id, actor, notes string) (*alerts.Alert, error) {
	return s.transition(ctx, id, "acknowledged", func(alert alerts.Alert, now time.Time) (alerts.Alert, error) {
		return alerts.Acknowledge(alert, actor, notes, now)
	}, actor)
}

// Resolve resolves an alert. Terminal.
func (s *Service) Resolve(ctx context.Context, id, actor, notes string) (*alerts.Alert, error) {
	return s.transition(ctx, id, "resolved", func(alert alerts.Alert, now time.Time) (alerts.Alert, error) {
		return alerts.Resolve(alert, actor, notes, now)
	}, actor)
}

// Escalate escalates an alert to a target.
func (s *Service) Escalate(ctx context.Context, id, target, reason string) (*alerts.Alert, error) {
	return s.transition(ctx, id, "escalated", func(alert alerts.Alert, now time.Time) (alerts.Alert, error) {
		return alerts.Escalate(alert, target, reason, now)
	}, target)
}

// Dismiss dismisses an alert. Terminal.
func (s *Service) Dismiss(ctx context.Context, id, actor, reason string) (*alerts.Alert, error) {
	return s.transition(ctx, id, "dismissed", func(alert alerts.Alert, now time.Time) (alerts.Alert, error) {
		return alerts.Dismiss(alert, actor, reason, now)
	}, actor)
}

// RecordNotification logs a delivery outcome against an alert. Allowed in
// any state and never emits a lifecycle event.
func (s *Service) RecordNotification(ctx context.Context, id, method, recipient, status, errMsg string) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if id == "" {
		return nil, errors.New("alerts: alert id required")
	}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	alert, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := alerts.RecordNotification(*alert, method, recipient, status, errMsg, s.clock.Now().UTC())
	if err := s.alerts.Save(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetAlert fetches an alert by id.
func (s *Service) GetAlert(ctx context.Context, id string) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if id == "" {
		return nil, errors.New("alerts: alert id required")
	}
	return s.load(ctx, id)
}

// ListAlerts returns alerts by tank/status/time window.
func (s *Service) ListAlerts(ctx context.Context, tankID, status string, from, to time.Time) ([]alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if tankID == "" {
		return nil, errors.New("alerts: tank id required")
	}
	if status != "" && !alerts.ValidStatus(status) {
		return nil, errors.New("alerts: unknown status")
	}
	return s.alerts.ListByTankStatusAndTime(ctx, s.tenant(ctx), tankID, status, from.UTC(), to.UTC())
}

// ListOpenAutoEscalate returns open auto-escalating alerts across every
// tenant for the escalation scheduler.
func (s *Service) ListOpenAutoEscalate(ctx context.Context) ([]alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	return s.alerts.ListOpenAutoEscalate(ctx, "")
}

func (s *Service) transition(ctx context.Context, id, eventType string, apply func(alerts.Alert, time.Time) (alerts.Alert, error), actor string) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if id == "" {
		return nil, errors.New("alerts: alert id required")
	}
	updated, err := s.applyLocked(ctx, id, apply)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, eventType, *updated)
	s.auditTransition(ctx, eventType, *updated, actor)
	return updated, nil
}

func (s *Service) applyLocked(ctx context.Context, id string, apply func(alerts.Alert, time.Time) (alerts.Alert, error)) (*alerts.Alert, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	alert, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := apply(*alert, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.alerts.Save(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Service) load(ctx context.Context, id string) (*alerts.Alert, error) {
	alert, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, alerts.ErrNotFound
	}
	tenantID := s.tenant(ctx)
	if tenantID != "" && alert.TenantID != tenantID {
		return nil, auth.ErrTenantMismatch
	}
	return alert, nil
}

func (s *Service) tenant(ctx context.Context) string {
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID == "" {
		tenantID = s.tenantID
	}
	return tenantID
}

func (s *Service) notify(ctx context.Context, eventType string, alert alerts.Alert) {
	if s == nil {
		return
	}
	metrics.IncAlertEvent(eventType)
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, AlertEvent{Type: eventType, Alert: alert})
}

func (s *Service) auditTransition(ctx context.Context, action string, alert alerts.Alert, actor string) {
	if s == nil || s.auditor == nil {
		return
	}
	_ = s.auditor.Log(ctx, audit.Entry{
		TenantID:     alert.TenantID,
		Actor:        actor,
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       "alert." + action,
		ResourceType: "alert",
		ResourceID:   alert.ID,
		TankID:       alert.TankID,
	})
}

func (s *Service) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.locks[h.Sum32()%lockStripes]
}

// buildAlertID generates a random alert identifier. The id carries no
// deterministic component: a condition that re-arms within the same clock
// tick must not collide with a prior alert for the same tank.
func buildAlertID() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return "alert-" + hex.EncodeToString(buf[:])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
