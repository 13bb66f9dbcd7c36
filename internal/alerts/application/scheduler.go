package application

import (
	"context"
	"errors"
	"log"
	"time"

	alerts "oxywatch-cloud/internal/alerts/domain"
	"oxywatch-cloud/internal/auth"
	"oxywatch-cloud/internal/observability/metrics"
)

// EscalationScheduler sweeps open alerts and escalates the ones whose
// auto-escalation delay has elapsed without acknowledgment.
type EscalationScheduler struct {
	service *Service
	target  string
	clock   Clock
	logger  *log.Logger
}

// NewEscalationScheduler constructs a scheduler. The target names the
// escalation recipient, typically an on-call group.
func NewEscalationScheduler(service *Service, target string, logger *log.Logger) (*EscalationScheduler, error) {
	if service == nil {
		return nil, errors.New("escalation: nil service")
	}
	if target == "" {
		return nil, errors.New("escalation: empty target")
	}
	return &EscalationScheduler{
		service: service,
		target:  target,
		clock:   service.clock,
		logger:  logger,
	}, nil
}

// Tick runs one sweep at the given time.
func (s *EscalationScheduler) Tick(ctx context.Context, now time.Time) error {
	if s == nil {
		return errors.New("escalation: nil scheduler")
	}
	if now.IsZero() {
		now = s.clock.Now()
	}
	open, err := s.service.ListOpenAutoEscalate(ctx)
	if err != nil {
		metrics.IncEscalationSweep(metrics.ResultError)
		return err
	}
	var firstErr error
	for _, alert := range open {
		if !alerts.ShouldAutoEscalate(alert, now.UTC()) {
			continue
		}
		// The sweep crosses tenants, so each transition runs under the
		// alert's own tenant identity.
		tctx := auth.WithIdentity(ctx, alert.TenantID, auth.RoleOperator, "escalation-scheduler")
		if _, err := s.service.Escalate(tctx, alert.ID, s.target, "auto-escalation timeout"); err != nil {
			// Another writer may have acknowledged or resolved the alert
			// between the sweep query and this transition.
			if alerts.IsInvalidTransition(err) || errors.Is(err, alerts.ErrConcurrencyConflict) {
				continue
			}
			if s.logger != nil {
				s.logger.Printf("escalation: alert %s: %v", alert.ID, err)
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.IncEscalationTriggered()
	}
	if firstErr != nil {
		metrics.IncEscalationSweep(metrics.ResultError)
		return firstErr
	}
	metrics.IncEscalationSweep(metrics.ResultSuccess)
	return nil
}

// Run ticks on the interval until the context is cancelled.
func (s *EscalationScheduler) Run(ctx context.Context, interval time.Duration) {
	if s == nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := s.Tick(ctx, now.UTC()); err != nil && s.logger != nil {
				s.logger.Printf("escalation: sweep error: %v", err)
			}
		}
	}
}
