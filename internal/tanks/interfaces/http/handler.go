package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"oxywatch-cloud/internal/auth"
	tankapp "oxywatch-cloud/internal/tanks/application"
	tanks "oxywatch-cloud/internal/tanks/domain"
)

// Handler provides tank registry HTTP endpoints.
type Handler struct {
	service *tankapp.Service
}

// NewHandler constructs a handler.
func NewHandler(service *tankapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("tanks handler: nil service")
	}
	return &Handler{service: service}, nil
}

// ServeHTTP handles /api/v1/tanks and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/tanks":
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleUpsert(w, r, "")
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	case strings.HasPrefix(r.URL.Path, "/api/v1/tanks/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/tanks/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, id)
		case http.MethodPut:
			h.handleUpsert(w, r, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListTanks(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if result == nil {
		result = []tanks.TankConfiguration{}
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	tank, err := h.service.GetTank(r.Context(), id)
	if err != nil {
		respondTankError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tank)
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request, id string) {
	var tank tanks.TankConfiguration
	if err := json.NewDecoder(r.Body).Decode(&tank); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if id != "" {
		tank.ID = id
	}
	created := r.Method == http.MethodPost

	if err := h.service.UpsertTank(r.Context(), &tank); err != nil {
		respondTankError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, tank)
}

func respondTankError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrNotFound):
		http.Error(w, "tank not found", http.StatusNotFound)
	case errors.Is(err, auth.ErrTenantMismatch):
		http.Error(w, "tank belongs to another tenant", http.StatusForbidden)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
