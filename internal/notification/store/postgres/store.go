// Package postgres persists notifications in the aggregator database via a
// pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"auditflow/internal/notification"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const columns = `id, user_id, notification_type, title, message, metadata, is_read, read_at, created_at`

func (s *Store) Insert(ctx context.Context, in notification.CreateInput) (*notification.Notification, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(in.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal notification metadata: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, notification_type, title, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+columns,
		in.UserID, in.Type, in.Title, in.Message, metadata)

	n, err := scanNotification(row)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

func (s *Store) List(ctx context.Context, filter notification.Filter) ([]notification.Notification, error) {
	query := `SELECT ` + columns + ` FROM notifications`
	var conds []string
	var args []any
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.IsRead != nil {
		args = append(args, *filter.IsRead)
		conds = append(conds, fmt.Sprintf("is_read = $%d", len(args)))
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+columns+` FROM notifications WHERE id = $1`, id)
	n, err := scanNotification(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// MarkRead sets is_read and refreshes read_at even when the row was already
// read. The returned flag reports whether the row was unread before, so the
// caller can keep the unread counter honest.
func (s *Store) MarkRead(ctx context.Context, id uuid.UUID) (*notification.Notification, bool, error) {
	row := s.pool.QueryRow(ctx, `
		WITH prev AS (
			SELECT is_read FROM notifications WHERE id = $1
		)
		UPDATE notifications n
		SET is_read = TRUE, read_at = NOW()
		FROM prev
		WHERE n.id = $1
		RETURNING n.id, n.user_id, n.notification_type, n.title, n.message,
		          n.metadata, n.is_read, n.read_at, n.created_at, NOT prev.is_read`,
		id)

	var n notification.Notification
	var metadata []byte
	var wasUnread bool
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
		&metadata, &n.IsRead, &n.ReadAt, &n.CreatedAt, &wasUnread)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, pgx.ErrNoRows
		}
		return nil, false, fmt.Errorf("mark notification read: %w", err)
	}
	if err := unmarshalMetadata(metadata, &n); err != nil {
		return nil, false, err
	}
	return &n, wasUnread, nil
}

// MarkAllRead touches only rows still unread; already-read rows keep their
// original read_at.
func (s *Store) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = NOW()
		WHERE user_id = $1 AND is_read = FALSE`,
		userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes a notification and returns the deleted row, so the caller
// can settle the unread counter from the same statement a concurrent
// mark-read would serialize against.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	row := s.pool.QueryRow(ctx, `DELETE FROM notifications WHERE id = $1 RETURNING `+columns, id)
	n, err := scanNotification(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("delete notification: %w", err)
	}
	return n, nil
}

func (s *Store) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND is_read = FALSE`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var n notification.Notification
	var metadata []byte
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
		&metadata, &n.IsRead, &n.ReadAt, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalMetadata(metadata, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func unmarshalMetadata(metadata []byte, n *notification.Notification) error {
	if len(metadata) == 0 {
		return nil
	}
	if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
		return fmt.Errorf("unmarshal notification metadata: %w", err)
	}
	return nil
}
