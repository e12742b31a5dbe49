package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"auditflow/internal/audit"
	"auditflow/internal/platform/httpjson"
	"auditflow/internal/platform/middleware"
	derrors "auditflow/pkg/domain-errors"
)

const defaultRetentionDays = 90

// AggregatorStore is the slice of the canonical store the aggregator API
// uses.
type AggregatorStore interface {
	List(ctx context.Context, filter audit.Filter) ([]audit.Record, error)
	GetByID(ctx context.Context, id int64) (*audit.Record, error)
	Insert(ctx context.Context, event audit.Event) (*audit.Record, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Aggregator serves the canonical audit-log API.
type Aggregator struct {
	logger       *slog.Logger
	store        AggregatorStore
	jwtValidator middleware.JWTValidator
}

// NewAggregator creates the aggregator-side handler.
func NewAggregator(store AggregatorStore, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Aggregator {
	return &Aggregator{
		logger:       logger,
		store:        store,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the aggregator audit routes.
func (h *Aggregator) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.RequestID)
		router.Use(middleware.Recovery(h.logger))
		router.Use(middleware.Logger(h.logger))
		router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		router.Get("/audit-logs", h.handleList)
		router.Delete("/audit-logs/old", h.handleDeleteOld)
		router.Get("/audit-logs/{id}", h.handleGet)
		router.Post("/audit-logs", h.handleCreate)
	})
}

func (h *Aggregator) handleList(w http.ResponseWriter, r *http.Request) {
	filter := audit.Filter{
		Service: r.URL.Query().Get("service"),
		Kind:    audit.Kind(r.URL.Query().Get("kind")),
		Limit:   limitParam(r),
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid user_id filter"))
			return
		}
		filter.TargetUserID = &userID
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid kind filter"))
		return
	}

	records, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit logs failed", "error", err)
		httpjson.WriteError(w, derrors.New(derrors.CodeInternal, "failed to list audit logs"))
		return
	}
	httpjson.Write(w, http.StatusOK, listResponse(records))
}

func (h *Aggregator) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid audit log id"))
		return
	}

	record, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httpjson.WriteError(w, derrors.New(derrors.CodeNotFound, "audit log not found"))
			return
		}
		h.logger.ErrorContext(r.Context(), "get audit log failed", "id", id, "error", err)
		httpjson.WriteError(w, derrors.New(derrors.CodeInternal, "failed to get audit log"))
		return
	}
	httpjson.Write(w, http.StatusOK, record)
}

type createRequest struct {
	App          string         `json:"app"`
	Service      string         `json:"service_name"`
	Kind         audit.Kind     `json:"event_kind"`
	Payload      map[string]any `json:"payload"`
	TargetUserID *uuid.UUID     `json:"target_user_id"`
}

// handleCreate synthesizes a canonical record directly, stamping the
// caller's address and parsed User-Agent into the payload.
func (h *Aggregator) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}
	req.Payload["ip_address"] = clientIP(r)
	req.Payload["user_agent"] = parseUserAgent(r.UserAgent())

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

	record, err := h.store.Insert(r.Context(), event)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "create audit log failed", "error", err)
		httpjson.WriteError(w, derrors.New(derrors.CodeInternal, "failed to create audit log"))
		return
	}
	httpjson.Write(w, http.StatusCreated, record)
}

func (h *Aggregator) handleDeleteOld(w http.ResponseWriter, r *http.Request) {
	days := defaultRetentionDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid days parameter"))
			return
		}
		days = parsed
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	deleted, err := h.store.DeleteOlderThan(r.Context(), cutoff)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "delete old audit logs failed", "error", err)
		httpjson.WriteError(w, derrors.New(derrors.CodeInternal, "failed to delete old audit logs"))
		return
	}
	h.logger.InfoContext(r.Context(), "old audit logs deleted", "days", days, "deleted", deleted)
	httpjson.Write(w, http.StatusOK, map[string]any{"deleted": deleted, "days": days})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseUserAgent(raw string) map[string]any {
	ua := useragent.New(raw)
	browser, version := ua.Browser()
	return map[string]any{
		"raw":             raw,
		"browser":         browser,
		"browser_version": version,
		"os":              ua.OS(),
		"platform":        ua.Platform(),
		"mobile":          ua.Mobile(),
		"bot":             ua.Bot(),
	}
}
