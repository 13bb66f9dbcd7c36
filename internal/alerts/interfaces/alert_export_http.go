package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	alertapp "oxywatch-cloud/internal/alerts/application"
	alerts "oxywatch-cloud/internal/alerts/domain"
	"oxywatch-cloud/internal/audit"
	"oxywatch-cloud/internal/auth"
	"oxywatch-cloud/internal/observability/metrics"
)

// ExportHandler serves alert history exports.
type ExportHandler struct {
	service     *alertapp.Service
	auditLogger audit.Logger
}

// NewExportHandler constructs an export handler.
func NewExportHandler(service *alertapp.Service, auditLogger audit.Logger) (*ExportHandler, error) {
	if service == nil {
		return nil, errors.New("alert export: nil service")
	}
	return &ExportHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP handles GET /api/v1/exports/alerts.{pdf,xlsx}.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/exports/alerts.pdf":
		h.export(w, r, "pdf")
	case "/api/v1/exports/alerts.xlsx":
		h.export(w, r, "xlsx")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ExportHandler) export(w http.ResponseWriter, r *http.Request, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExport(format, result, time.Since(start))
	}()

	req, err := parseExportRequest(r)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := h.service.ListAlerts(r.Context(), req.TankID, req.Status, req.From, req.To)
	if err != nil {
		result = metrics.ResultError
		if errors.Is(err, auth.ErrTenantMismatch) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var data []byte
	var contentType string
	switch format {
	case "pdf":
		data, err = BuildAlertPDF(req, list)
		contentType = "application/pdf"
	case "xlsx":
		data, err = BuildAlertXLSX(req, list)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, req, format, len(list))
}

func parseExportRequest(r *http.Request) (ExportRequest, error) {
	tankID := r.URL.Query().Get("tank_id")
	if tankID == "" {
		return ExportRequest{}, errors.New("tank_id is required")
	}
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		return ExportRequest{}, errors.New("from must be RFC3339")
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		return ExportRequest{}, errors.New("to must be RFC3339")
	}
	if !to.After(from) {
		return ExportRequest{}, errors.New("to must be after from")
	}
	status := r.URL.Query().Get("status")
	if status != "" && !alerts.ValidStatus(status) {
		return ExportRequest{}, errors.New("unknown status")
	}
	return ExportRequest{TankID: tankID, Status: status, From: from.UTC(), To: to.UTC()}, nil
}

func (h *ExportHandler) logAudit(r *http.Request, req ExportRequest, format string, count int) {
	if h.auditLogger == nil {
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		return
	}
	meta, _ := json.Marshal(map[string]any{"format": format, "alerts": count})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       "alert.export",
		ResourceType: "alert_export",
		ResourceID:   req.TankID,
		TankID:       req.TankID,
		Metadata:     meta,
	})
}
