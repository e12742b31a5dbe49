package notification

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"auditflow/internal/platform/metrics"
	derrors "auditflow/pkg/domain-errors"
)

// Store persists notifications.
type Store interface {
	Insert(ctx context.Context, in CreateInput) (*Notification, error)
	List(ctx context.Context, filter Filter) ([]Notification, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) (*Notification, bool, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) (*Notification, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Gateway pushes notification events to connected sessions.
type Gateway interface {
	EmitNewNotification(userID uuid.UUID, notification any)
	EmitNotificationRead(userID uuid.UUID, notification any)
}

// Counter caches per-user unread counts. Implementations are best effort;
// the store's count wins whenever they disagree.
type Counter interface {
	Get(ctx context.Context, userID uuid.UUID) (int64, bool)
	Set(ctx context.Context, userID uuid.UUID, count int64)
	Incr(ctx context.Context, userID uuid.UUID)
	Decr(ctx context.Context, userID uuid.UUID)
	Reset(ctx context.Context, userID uuid.UUID)
}

// Service wires the notification store, the live gateway and the unread
// counter. It keeps orchestration out of handlers and the projector.
type Service struct {
	store   Store
	gateway Gateway
	counter Counter
	logger  *slog.Logger
}

// NewService creates a service. gateway and counter may be nil.
func NewService(store Store, gateway Gateway, counter Counter, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		gateway: gateway,
		counter: counter,
		logger:  logger,
	}
}

// Create inserts a notification and announces it to live sessions.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Notification, error) {
	if err := in.Validate(); err != nil {
		return nil, derrors.New(derrors.CodeBadRequest, err.Error())
	}

	n, err := s.store.Insert(ctx, in)
	if err != nil {
		return nil, err
	}
	metrics.NotificationsCreated.WithLabelValues(n.Type).Inc()

	if s.counter != nil {
		s.counter.Incr(ctx, n.UserID)
	}
	if s.gateway != nil {
		s.gateway.EmitNewNotification(n.UserID, n)
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, filter Filter) ([]Notification, error) {
	return s.store.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Notification, error) {
	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, derrors.Wrap(derrors.CodeNotFound, "notification not found", err)
		}
		return nil, err
	}
	return n, nil
}

// MarkRead is idempotent: marking an already-read notification succeeds and
// refreshes read_at. The unread counter only moves on the first transition.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) (*Notification, error) {
	n, wasUnread, err := s.store.MarkRead(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, derrors.Wrap(derrors.CodeNotFound, "notification not found", err)
		}
		return nil, err
	}
	if wasUnread && s.counter != nil {
		s.counter.Decr(ctx, n.UserID)
	}
	if s.gateway != nil {
		s.gateway.EmitNotificationRead(n.UserID, n)
	}
	return n, nil
}

// MarkAllRead marks every unread notification for a user.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	touched, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.counter != nil {
		s.counter.Reset(ctx, userID)
	}
	return touched, nil
}

// Delete removes a notification. The counter moves based on the row the
// store actually deleted, so a concurrent mark-read cannot drift it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := s.store.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return derrors.Wrap(derrors.CodeNotFound, "notification not found", err)
		}
		return err
	}
	if !n.IsRead && s.counter != nil {
		s.counter.Decr(ctx, n.UserID)
	}
	return nil
}

// UnreadCount serves from the cache when possible and repopulates it from
// the store on a miss.
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if s.counter != nil {
		if count, ok := s.counter.Get(ctx, userID); ok {
			return count, nil
		}
	}
	count, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.counter != nil {
		s.counter.Set(ctx, userID, count)
	}
	return count, nil
}
