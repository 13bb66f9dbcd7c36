package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"oxywatch-cloud/internal/eventing"
	"oxywatch-cloud/internal/observability/metrics"
	readingevents "oxywatch-cloud/internal/readings/application/events"
	readings "oxywatch-cloud/internal/readings/domain"
)

// EventPublisher forwards reading events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// IngestHandler handles sensor reading ingestion from gateway webhooks.
type IngestHandler struct {
	repo      readings.ReadingRepository
	publisher EventPublisher
	tenantID  string
	logger    *log.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(repo readings.ReadingRepository, publisher EventPublisher, tenantID string, logger *log.Logger) (*IngestHandler, error) {
	if repo == nil {
		return nil, errors.New("readings ingest: nil repository")
	}
	if tenantID == "" {
		return nil, errors.New("readings ingest: empty tenant id")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{repo: repo, publisher: publisher, tenantID: tenantID, logger: logger}, nil
}

// ServeHTTP ingests sensor readings.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	result := metrics.IngestResultError
	defer func() {
		metrics.ObserveIngest(result, time.Since(start))
	}()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Printf("readings ingest: read body error: %v", err)
		metrics.IncIngestError("read")
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Printf("readings ingest: decode error: %v", err)
		metrics.IncIngestError("decode")
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	batch, err := req.toReadings()
	if err != nil {
		h.logger.Printf("readings ingest: invalid payload: %v", err)
		metrics.IncIngestError("payload")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = h.tenantID
	}

	if err := h.repo.Insert(r.Context(), tenantID, batch); err != nil {
		h.logger.Printf("readings ingest: insert error: %v", err)
		metrics.IncIngestError("insert")
		http.Error(w, "insert error", http.StatusInternalServerError)
		return
	}

	if h.publisher != nil {
		for _, reading := range batch {
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
			ctx := eventing.WithEventID(r.Context(), event.EventID)
			ctx = eventing.WithTenantID(ctx, tenantID)
			if err := h.publisher.Publish(ctx, event); err != nil {
				h.logger.Printf("readings ingest: publish error: %v", err)
				metrics.IncIngestError("publish")
				http.Error(w, "publish error", http.StatusInternalServerError)
				return
			}
		}
	}

	result = metrics.IngestResultSuccess
	resp := map[string]any{"inserted": len(batch)}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type ingestRequest struct {
	TenantID    string        `json:"tenantId"`
	TankID      string        `json:"tankId"`
	TS          int64         `json:"ts"`
	Level       *float64      `json:"level"`
	Pressure    *float64      `json:"pressure"`
	Temperature *float64      `json:"temperature"`
	Humidity    *float64      `json:"humidity"`
	Points      []ingestPoint `json:"points"`
}

type ingestPoint struct {
	TS          int64    `json:"ts"`
	Level       *float64 `json:"level"`
	Pressure    *float64 `json:"pressure"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

func (r ingestRequest) toReadings() ([]readings.Reading, error) {
	if r.TankID == "" {
		return nil, errors.New("missing tankId")
	}

	points := r.Points
	if len(points) == 0 && r.TS != 0 {
		points = []ingestPoint{{TS: r.TS, Level: r.Level, Pressure: r.Pressure, Temperature: r.Temperature, Humidity: r.Humidity}}
	}
	if len(points) == 0 {
		return nil, errors.New("no reading points")
	}

	batch := make([]readings.Reading, 0, len(points))
	for _, point := range points {
		ts, err := parseTimestamp(point.TS)
		if err != nil {
			return nil, err
		}
		if point.Level == nil || point.Pressure == nil {
			return nil, errors.New("missing level or pressure")
		}
		reading := readings.Reading{
			TankID:      r.TankID,
			Level:       *point.Level,
			Pressure:    *point.Pressure,
			Temperature: point.Temperature,
			Humidity:    point.Humidity,
			TS:          ts,
		}
		if err := reading.Validate(); err != nil {
			return nil, err
		}
		batch = append(batch, reading)
	}
	return batch, nil
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
