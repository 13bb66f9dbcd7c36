package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"oxywatch-cloud/internal/eventing"
	"oxywatch-cloud/internal/observability/metrics"
	readingevents "oxywatch-cloud/internal/readings/application/events"
	readings "oxywatch-cloud/internal/readings/domain"
)

// Config holds JetStream consumer settings for the reading stream.
type Config struct {
	URL          string
	Stream       string
	Subject      string
	DeliverGroup string
	Durable      string
	AckWait      time.Duration
	MaxDeliver   int
}

// EventPublisher forwards reading events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Subscriber consumes sensor readings from a JetStream queue consumer.
type Subscriber struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	logger *log.Logger
}

// readingMessage is one gateway sample on the wire.
type readingMessage struct {
	TenantID    string   `json:"tenantId"`
	TankID      string   `json:"tankId"`
	TS          int64    `json:"ts"`
	Level       *float64 `json:"level"`
	Pressure    *float64 `json:"pressure"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

// NewSubscriber connects and starts the queue consumer.
func NewSubscriber(cfg Config, repo readings.ReadingRepository, publisher EventPublisher, tenantID string, logger *log.Logger) (*Subscriber, error) {
	if repo == nil {
		return nil, errors.New("readings nats: nil repository")
	}
	if tenantID == "" {
		return nil, errors.New("readings nats: empty tenant id")
	}
	if logger == nil {
		logger = log.Default()
	}

	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("readings nats: connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("readings nats: jetstream: %w", err)
	}

	subscriber := &Subscriber{nc: nc, logger: logger}

	ackWait := cfg.AckWait
	if ackWait <= 0 {
		ackWait = 30 * time.Second
	}
	maxDeliver := cfg.MaxDeliver
	if maxDeliver <= 0 {
		maxDeliver = 5
	}
	subOpts := []nats.SubOpt{
		nats.BindStream(cfg.Stream),
		nats.Durable(cfg.Durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(ackWait),
		nats.MaxDeliver(maxDeliver),
		nats.DeliverAll(),
	}

	sub, err := js.QueueSubscribe(cfg.Subject, cfg.DeliverGroup, func(message *nats.Msg) {
		subscriber.handle(message, repo, publisher, tenantID)
	}, subOpts...)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("readings nats: queue subscribe %q/%q: %w", cfg.Subject, cfg.DeliverGroup, err)
	}
	subscriber.sub = sub
	return subscriber, nil
}

func (s *Subscriber) handle(message *nats.Msg, repo readings.ReadingRepository, publisher EventPublisher, defaultTenantID string) {
	start := time.Now()

	var msg readingMessage
	if err := json.Unmarshal(message.Data, &msg); err != nil {
		s.logger.Printf("readings nats: decode error: %v", err)
		metrics.IncIngestError("decode")
		metrics.ObserveIngest(metrics.IngestResultError, time.Since(start))
		// Malformed payloads never decode on redelivery either.
		s.ack(message)
		return
	}

	reading, err := msg.toReading()
	if err != nil {
		s.logger.Printf("readings nats: invalid payload: %v", err)
		metrics.IncIngestError("payload")
		metrics.ObserveIngest(metrics.IngestResultError, time.Since(start))
		s.ack(message)
		return
	}

	tenantID := msg.TenantID
	if tenantID == "" {
		tenantID = defaultTenantID
	}

	ctx := context.Background()
	if err := repo.Insert(ctx, tenantID, []readings.Reading{reading}); err != nil {
		s.logger.Printf("readings nats: insert error: %v", err)
		metrics.IncIngestError("insert")
		metrics.ObserveIngest(metrics.IngestResultError, time.Since(start))
		s.nack(message)
		return
	}

	if publisher != nil {
		event := readingevents.ReadingReceived{
			EventID:     eventing.NewEventID(),
			TenantID:    tenantID,
			TankID:      reading.TankID,
			Level:       reading.Level,
			Pressure:    reading.Pressure,
			Temperature: reading.Temperature,
			Humidity:    reading.Humidity,
			OccurredAt:  reading.TS,
		}
		ctx = eventing.WithEventID(ctx, event.EventID)
		ctx = eventing.WithTenantID(ctx, tenantID)
		if err := publisher.Publish(ctx, event); err != nil {
			s.logger.Printf("readings nats: publish error: %v", err)
			metrics.IncIngestError("publish")
			metrics.ObserveIngest(metrics.IngestResultError, time.Since(start))
			s.nack(message)
			return
		}
	}

	metrics.ObserveIngest(metrics.IngestResultSuccess, time.Since(start))
	s.ack(message)
}

func (m readingMessage) toReading() (readings.Reading, error) {
	if m.TankID == "" {
		return readings.Reading{}, errors.New("missing tankId")
	}
	if m.Level == nil || m.Pressure == nil {
		return readings.Reading{}, errors.New("missing level or pressure")
	}
	ts, err := parseTimestamp(m.TS)
	if err != nil {
		return readings.Reading{}, err
	}
	reading := readings.Reading{
		TankID:      m.TankID,
		Level:       *m.Level,
		Pressure:    *m.Pressure,
		Temperature: m.Temperature,
		Humidity:    m.Humidity,
		TS:          ts,
	}
	if err := reading.Validate(); err != nil {
		return readings.Reading{}, err
	}
	return reading, nil
}

func parseTimestamp(value int64) (time.Time, error) {
	if value <= 0 {
		return time.Time{}, errors.New("invalid ts")
	}
	// Accept milliseconds or seconds.
	if value > 1_000_000_000_000 {
		return time.UnixMilli(value).UTC(), nil
	}
	return time.Unix(value, 0).UTC(), nil
}

func (s *Subscriber) ack(message *nats.Msg) {
	if message == nil {
		return
	}
	if err := message.Ack(); err != nil {
		s.logger.Printf("readings nats: ack failed: %v", err)
	}
}

func (s *Subscriber) nack(message *nats.Msg) {
	if message == nil {
		return
	}
	if err := message.Nak(); err != nil {
		s.logger.Printf("readings nats: nack failed: %v", err)
	}
}

// Close drains the subscription and closes the connection.
func (s *Subscriber) Close() error {
	if s == nil || s.nc == nil {
		return nil
	}
	if s.sub != nil {
		if err := s.sub.Drain(); err != nil {
			s.nc.Close()
			return err
		}
	}
	s.nc.Close()
	return nil
}
