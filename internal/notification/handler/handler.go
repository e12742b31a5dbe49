// Package handler exposes the notification REST surface on the aggregator.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"auditflow/internal/notification"
	"auditflow/internal/platform/httpjson"
	"auditflow/internal/platform/middleware"
	derrors "auditflow/pkg/domain-errors"
)

// Service defines the notification operations the handler needs.
type Service interface {
	Create(ctx context.Context, in notification.CreateInput) (*notification.Notification, error)
	List(ctx context.Context, filter notification.Filter) ([]notification.Notification, error)
	Get(ctx context.Context, id uuid.UUID) (*notification.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) (*notification.Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Handler handles notification endpoints.
type Handler struct {
	logger       *slog.Logger
	service      Service
	jwtValidator middleware.JWTValidator
}

// New creates a notification Handler.
func New(service Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the notification routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.RequestID)
		router.Use(middleware.Recovery(h.logger))
		router.Use(middleware.Logger(h.logger))
		router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		router.Get("/notifications", h.handleList)
		router.Get("/notifications/unread-count", h.handleUnreadCount)
		router.Get("/notifications/{id}", h.handleGet)
		router.Post("/notifications", h.handleCreate)
		router.Post("/notifications/{id}/read", h.handleMarkRead)
		router.Post("/notifications/user/{userID}/read-all", h.handleMarkAllRead)
		router.Delete("/notifications/{id}", h.handleDelete)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var filter notification.Filter
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid user_id filter"))
			return
		}
		filter.UserID = &userID
	}
	if raw := r.URL.Query().Get("is_read"); raw != "" {
		isRead, err := strconv.ParseBool(raw)
		if err != nil {
			httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid is_read filter"))
			return
		}
		filter.IsRead = &isRead
	}

	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list notifications failed", "error", err)
		httpjson.WriteError(w, derrors.New(derrors.CodeInternal, "failed to list notifications"))
		return
	}
	if list == nil {
		list = []notification.Notification{}
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"data": list, "count": len(list)})
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid user_id"))
		return
	}

	count, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "unread count failed", "user_id", userID, "error", err)
		httpjson.WriteError(w, derrors.New(derrors.CodeInternal, "failed to count unread notifications"))
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"user_id": userID, "unread": count})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid notification id"))
		return
	}

	n, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "get notification failed", err)
		return
	}
	httpjson.Write(w, http.StatusOK, n)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in notification.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid request body"))
		return
	}

	n, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, "create notification failed", err)
		return
	}
	httpjson.Write(w, http.StatusCreated, n)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid notification id"))
		return
	}

	n, err := h.service.MarkRead(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "mark notification read failed", err)
		return
	}
	httpjson.Write(w, http.StatusOK, n)
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid user id"))
		return
	}

	touched, err := h.service.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, "mark all notifications read failed", err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{
		"message": "all notifications marked as read",
		"updated": touched,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpjson.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid notification id"))
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, "delete notification failed", err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]string{"message": "notification deleted"})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if derrors.CodeOf(err) == derrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), msg, "error", err)
		httpjson.WriteError(w, derrors.New(derrors.CodeInternal, msg))
		return
	}
	httpjson.WriteError(w, err)
}
