package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	alertapp "oxywatch-cloud/internal/alerts/application"
	alertrepo "oxywatch-cloud/internal/alerts/infrastructure/postgres"
	alertinterfaces "oxywatch-cloud/internal/alerts/interfaces"
	alerthttp "oxywatch-cloud/internal/alerts/interfaces/http"
	alertnotify "oxywatch-cloud/internal/alerts/notify"
	"oxywatch-cloud/internal/audit"
	"oxywatch-cloud/internal/auth"
	"oxywatch-cloud/internal/eventing"
	"oxywatch-cloud/internal/eventing/eventbus"
	eventingrepo "oxywatch-cloud/internal/eventing/infrastructure/postgres"
	"oxywatch-cloud/internal/observability/metrics"
	readingevents "oxywatch-cloud/internal/readings/application/events"
	readingrepo "oxywatch-cloud/internal/readings/infrastructure/postgres"
	readinghttp "oxywatch-cloud/internal/readings/interfaces/http"
	readingnats "oxywatch-cloud/internal/readings/interfaces/nats"
	tankapp "oxywatch-cloud/internal/tanks/application"
	tankrepo "oxywatch-cloud/internal/tanks/infrastructure/postgres"
	tankhttp "oxywatch-cloud/internal/tanks/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	tankChecker := auth.NewTankChecker(db)
	auditRepo := audit.NewRepository(db)

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(readingevents.ReadingReceived{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, cfg.TenantID, baseBus)

	tankRepository := tankrepo.NewTankRepository(db)
	tankService, err := tankapp.NewService(tankRepository, cfg.TenantID)
	if err != nil {
		logger.Fatalf("tank service error: %v", err)
	}
	tankHandler, err := tankhttp.NewHandler(tankService)
	if err != nil {
		logger.Fatalf("tank handler error: %v", err)
	}

	evalCfg, err := alertapp.LoadEvaluationConfig(cfg.ThresholdsConfigPath)
	if err != nil {
		logger.Fatalf("threshold config error: %v", err)
	}

	alertRepository := alertrepo.NewAlertRepository(db)
	alertBroker := alerthttp.NewSSEBroker()
	alertNotifiers := []alertapp.AlertNotifier{alertBroker}

	var webhookNotifier *alertnotify.Notifier
	if cfg.AlertWebhookURL != "" {
		channel, err := alertnotify.NewWebhookChannel(cfg.AlertWebhookURL, alertnotify.WithHTTPClient(&http.Client{Timeout: cfg.AlertNotifyTimeout}))
		if err != nil {
			logger.Fatalf("alert webhook error: %v", err)
		}
		tpl, err := alertnotify.NewTemplate(cfg.AlertNotifyTemplate)
		if err != nil {
			logger.Fatalf("alert template error: %v", err)
		}
		webhookNotifier, err = alertnotify.NewNotifier(tankRepository, channel, tpl,
			alertnotify.WithCooldown(cfg.AlertNotifyCooldown),
			alertnotify.WithDedupeWindow(cfg.AlertNotifyDedupeWindow),
		)
		if err != nil {
			logger.Fatalf("alert notifier error: %v", err)
		}
		alertNotifiers = append(alertNotifiers, webhookNotifier)
	}

	alertService, err := alertapp.NewService(alertRepository, tankRepository, cfg.TenantID,
		alertapp.WithNotifier(alertnotify.NewMultiNotifier(alertNotifiers...)),
		alertapp.WithAuditor(auditRepo),
		alertapp.WithThresholds(evalCfg.Thresholds()),
		alertapp.WithThresholdResolver(evalCfg.ThresholdsForTank),
	)
	if err != nil {
		logger.Fatalf("alert service error: %v", err)
	}
	if webhookNotifier != nil {
		webhookNotifier.SetRecorder(alertService)
	}

	alertConsumer, err := alertinterfaces.NewReadingReceivedConsumer(alertService)
	if err != nil {
		logger.Fatalf("alert consumer error: %v", err)
	}
	eventing.Subscribe(baseBus, eventbus.EventTypeOf[readingevents.ReadingReceived](), "alerts.readings", func(ctx context.Context, event any) error {
		evt, ok := event.(readingevents.ReadingReceived)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		return alertConsumer.Consume(ctx, evt)
	}, processedStore)

	scheduler, err := alertapp.NewEscalationScheduler(alertService, cfg.EscalationTarget, logger)
	if err != nil {
		logger.Fatalf("escalation scheduler error: %v", err)
	}
	go scheduler.Run(context.Background(), cfg.EscalationSweepInterval)

	readingRepository := readingrepo.NewReadingRepository(db)
	ingestHandler, err := readinghttp.NewIngestHandler(readingRepository, publisher, cfg.TenantID, logger)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}

	if cfg.NATSURL != "" {
		subscriber, err := readingnats.NewSubscriber(readingnats.Config{
			URL:          cfg.NATSURL,
			Stream:       cfg.NATSStream,
			Subject:      cfg.NATSSubject,
			DeliverGroup: cfg.NATSDeliverGroup,
			Durable:      cfg.NATSDurable,
		}, readingRepository, publisher, cfg.TenantID, logger)
		if err != nil {
			logger.Fatalf("nats subscriber error: %v", err)
		}
		defer subscriber.Close()
	}

	alertHandler, err := alerthttp.NewHandler(alertService, tankChecker)
	if err != nil {
		logger.Fatalf("alert handler error: %v", err)
	}
	exportHandler, err := alertinterfaces.NewExportHandler(alertService, auditRepo)
	if err != nil {
		logger.Fatalf("export handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.IngestSecret), time.Duration(cfg.IngestSkewSeconds)*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/ingest/readings", ingestAuth.Wrap(ingestHandler))
	mux.Handle("/api/v1/tanks", tankHandler)
	mux.Handle("/api/v1/tanks/", tankHandler)
	mux.Handle("/api/v1/alerts/stream", alerthttp.NewStreamHandler(alertBroker))
	mux.Handle("/api/v1/alerts", alertHandler)
	mux.Handle("/api/v1/alerts/", alertHandler)
	mux.Handle("/api/v1/exports/alerts.pdf", exportHandler)
	mux.Handle("/api/v1/exports/alerts.xlsx", exportHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL             string
	HTTPAddr                string
	TenantID                string
	ThresholdsConfigPath    string
	AlertWebhookURL         string
	AlertNotifyTemplate     string
	AlertNotifyCooldown     time.Duration
	AlertNotifyDedupeWindow time.Duration
	AlertNotifyTimeout      time.Duration
	EscalationTarget        string
	EscalationSweepInterval time.Duration
	NATSURL                 string
	NATSStream              string
	NATSSubject             string
	NATSDurable             string
	NATSDeliverGroup        string
	JWTSecret               string
	IngestSecret            string
	IngestSkewSeconds       int
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:             getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:                getenvDefault("HTTP_ADDR", ":8080"),
		TenantID:                getenvDefault("TENANT_ID", "tenant-demo"),
		ThresholdsConfigPath:    getenvDefault("ALERT_THRESHOLDS_CONFIG", ""),
		AlertWebhookURL:         getenvDefault("ALERT_WEBHOOK_URL", ""),
		AlertNotifyTemplate:     getenvDefault("ALERT_NOTIFY_TEMPLATE", ""),
		AlertNotifyCooldown:     getenvDuration("ALERT_NOTIFY_COOLDOWN", 0),
		AlertNotifyDedupeWindow: getenvDuration("ALERT_NOTIFY_DEDUP_WINDOW", 0),
		AlertNotifyTimeout:      getenvDuration("ALERT_NOTIFY_TIMEOUT", 5*time.Second),
		EscalationTarget:        getenvDefault("ESCALATION_TARGET", "oncall-supervisors"),
		EscalationSweepInterval: getenvDuration("ESCALATION_SWEEP_INTERVAL", time.Minute),
		NATSURL:                 getenvDefault("NATS_URL", ""),
		NATSStream:              getenvDefault("NATS_STREAM", "READINGS"),
		NATSSubject:             getenvDefault("NATS_SUBJECT", "readings.ingest"),
		NATSDurable:             getenvDefault("NATS_DURABLE", "oxywatch-readings"),
		NATSDeliverGroup:        getenvDefault("NATS_DELIVER_GROUP", "oxywatch"),
		JWTSecret:               getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestSecret:            getenvDefault("INGEST_HMAC_SECRET", ""),
		IngestSkewSeconds:       getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
