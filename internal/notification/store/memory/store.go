// Package memory provides an in-memory notification store for tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"auditflow/internal/notification"
)

type Store struct {
	mu            sync.RWMutex
	notifications []notification.Notification

	// FailInserts makes every Insert return an error.
	FailInserts bool
}

func New() *Store {
	return &Store{}
}

func (s *Store) Insert(_ context.Context, in notification.CreateInput) (*notification.Notification, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailInserts {
		return nil, fmt.Errorf("insert failed")
	}

	n := notification.Notification{
		ID:        uuid.New(),
		UserID:    in.UserID,
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		Metadata:  in.Metadata,
		CreatedAt: time.Now(),
	}
	s.notifications = append(s.notifications, n)
	out := n
	return &out, nil
}

func (s *Store) List(_ context.Context, filter notification.Filter) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []notification.Notification
	for _, n := range s.notifications {
		if filter.UserID != nil && n.UserID != *filter.UserID {
			continue
		}
		if filter.IsRead != nil && n.IsRead != *filter.IsRead {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.notifications {
		if n.ID == id {
			out := n
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *Store) MarkRead(_ context.Context, id uuid.UUID) (*notification.Notification, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		if s.notifications[i].ID == id {
			wasUnread := !s.notifications[i].IsRead
			now := time.Now()
			s.notifications[i].IsRead = true
			s.notifications[i].ReadAt = &now
			out := s.notifications[i]
			return &out, wasUnread, nil
		}
	}
	return nil, false, pgx.ErrNoRows
}

func (s *Store) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var touched int64
	now := time.Now()
	for i := range s.notifications {
		if s.notifications[i].UserID == userID && !s.notifications[i].IsRead {
			s.notifications[i].IsRead = true
			s.notifications[i].ReadAt = &now
			touched++
		}
	}
	return touched, nil
}

func (s *Store) Delete(_ context.Context, id uuid.UUID) (*notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		if s.notifications[i].ID == id {
			out := s.notifications[i]
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *Store) UnreadCount(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}
