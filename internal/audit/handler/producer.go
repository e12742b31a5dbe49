// Package handler exposes the audit HTTP surfaces: the producer-side query
// and mark-processed API, and the aggregator-side canonical log API.
package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"auditflow/internal/audit"
	"auditflow/internal/platform/httpjson"
	"auditflow/internal/platform/middleware"
	derrors "auditflow/pkg/domain-errors"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// ProducerStore is the slice of the local audit store the producer API uses.
type ProducerStore interface {
	ListUnprocessed(ctx context.Context, limit int) ([]audit.Record, error)
	ListByService(ctx context.Context, service string, limit int) ([]audit.Record, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]audit.Record, error)
	MarkProcessed(ctx context.Context, id int64, processedBy string) error
}

// Recorder is the audit entry point domain code calls; the HTTP surface
// exposes it so sidecar-less services can record over the wire.
type Recorder interface {
	Record(ctx context.Context, event audit.Event)
}

// Producer serves the producing service's audit API. app and service are
// stamped onto recorded events that do not name their own origin.
type Producer struct {
	logger       *slog.Logger
	store        ProducerStore
	recorder     Recorder
	app          string
	service      string
	jwtValidator middleware.JWTValidator
}

// NewProducer creates the producer-side handler. recorder may be nil, which
// disables the record endpoint.
func NewProducer(store ProducerStore, recorder Recorder, app, service string, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Producer {
	return &Producer{
		logger:       logger,
		store:        store,
		recorder:     recorder,
		app:          app,
		service:      service,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the producer audit routes.
func (h *Producer) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.RequestID)
		router.Use(middleware.Recovery(h.logger))
		router.Use(middleware.Logger(h.logger))
		router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		router.Post("/audit/record", h.handleRecord)
		router.Get("/audit/unprocessed", h.handleUnprocessed)
		router.Get("/audit/service/{service}", h.handleByService)
		router.Get("/audit/user/{userID}", h.handleByUser)
		router.Post("/audit/{id}/processed", h.handleMarkProcessed)
	})
}

type recordRequest struct {
	Kind         audit.Kind     `json:"event_kind"`
	Payload      map[string]any `json:"payload"`
	TargetUserID *uuid.UUID     `json:"target_user_id"`
	App          string         `json:"app,omitempty"`
	Service      string         `json:"service_name,omitempty"`
}

// handleRecord accepts an event and runs the full record chain. The chain
// itself never fails; only an unusable request is rejected.
func (h *Producer) handleRecord(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		httpjson.WriteError(w, derrors.New(derrors.CodeNotFound, "recording not enabled"))
		return
	}

	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.App == "" {
		req.App = h.app
	}
	if req.Service == "" {
		req.Service = h.service
	}
	event := audit.Event{
		App:          req.App,
		Service:      req.Service,
		Kind:         req.Kind,
		Payload:      req.Payload,
		TargetUserID: req.TargetUserID,
	}
	if err := event.Validate(); err != nil {
		httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, err.Error()))
		return
	}

	h.recorder.Record(r.Context(), event)
	httpjson.Write(w, http.StatusAccepted, map[string]string{"message": "audit event recorded"})
}

func (h *Producer) handleUnprocessed(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListUnprocessed(r.Context(), limitParam(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list unprocessed audit logs failed", "error", err)
		httpjson.WriteError(w, derrors.New(derrors.CodeInternal, "failed to list audit logs"))
		return
	}
	httpjson.Write(w, http.StatusOK, listResponse(records))
}

func (h *Producer) handleByService(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	records, err := h.store.ListByService(r.Context(), service, limitParam(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit logs by service failed",
			"service", service, "error", err)
		httpjson.WriteError(w, derrors.New(derrors.CodeInternal, "failed to list audit logs"))
		return
	}
	httpjson.Write(w, http.StatusOK, listResponse(records))
}

func (h *Producer) handleByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid user id"))
		return
	}
	records, err := h.store.ListByUser(r.Context(), userID, limitParam(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit logs by user failed",
			"user_id", userID, "error", err)
		httpjson.WriteError(w, derrors.New(derrors.CodeInternal, "failed to list audit logs"))
		return
	}
	httpjson.Write(w, http.StatusOK, listResponse(records))
}

func (h *Producer) handleMarkProcessed(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid audit log id"))
		return
	}

	var req struct {
		ProcessedBy string `json:"processed_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.ProcessedBy == "" {
		req.ProcessedBy = middleware.GetUserID(r.Context())
	}

	if err := h.store.MarkProcessed(r.Context(), id, req.ProcessedBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httpjson.WriteError(w, derrors.New(derrors.CodeNotFound, "audit log not found"))
			return
		}
		h.logger.ErrorContext(r.Context(), "mark audit log processed failed", "id", id, "error", err)
		httpjson.WriteError(w, derrors.New(derrors.CodeInternal, "failed to mark audit log processed"))
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]string{"message": "audit log marked as processed"})
}

func limitParam(r *http.Request) int {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

type recordsResponse struct {
	Data  []audit.Record `json:"data"`
	Count int            `json:"count"`
}

func listResponse(records []audit.Record) recordsResponse {
	if records == nil {
		records = []audit.Record{}
	}
	return recordsResponse{Data: records, Count: len(records)}
}
