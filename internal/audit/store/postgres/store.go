// Package postgres persists audit records in the audit_logs table. The same
// store backs both the producer-local and the canonical copy: the two
// databases share one schema and differ only in which service writes them.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"auditflow/internal/audit"
)

// Store implements audit record persistence over database/sql.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const recordColumns = `id, app, service_name, event_kind, payload, target_user_id,
	is_read, created_at, processed_at, processed_by`

// Insert writes one record for an event and returns the stored form with its
// generated id and creation timestamp.
func (s *Store) Insert(ctx context.Context, event audit.Event) (*audit.Record, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO audit_logs (app, service_name, event_kind, payload, target_user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	rec := audit.Record{
		App:          event.App,
		Service:      event.Service,
		Kind:         event.Kind,
		Payload:      event.Payload,
		TargetUserID: event.TargetUserID,
	}
	err = s.db.QueryRowContext(ctx, query,
		event.App,
		event.Service,
		string(event.Kind),
		payload,
		event.TargetUserID,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert audit record: %w", err)
	}
	return &rec, nil
}

// ListUnprocessed returns records with is_read=false, oldest first.
func (s *Store) ListUnprocessed(ctx context.Context, limit int) ([]audit.Record, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM audit_logs
		WHERE is_read = FALSE
		ORDER BY created_at ASC
		LIMIT $1
	`, recordColumns)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListByService returns a service's records, newest first.
func (s *Store) ListByService(ctx context.Context, service string, limit int) ([]audit.Record, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM audit_logs
		WHERE service_name = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, recordColumns)

	rows, err := s.db.QueryContext(ctx, query, service, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records by service: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListByUser returns records targeting a user, newest first.
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]audit.Record, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM audit_logs
		WHERE target_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, recordColumns)

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records by user: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// List returns records matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Record, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Service != "" {
		args = append(args, filter.Service)
		conds = append(conds, "service_name = $"+strconv.Itoa(len(args)))
	}
	if filter.TargetUserID != nil {
		args = append(args, *filter.TargetUserID)
		conds = append(conds, "target_user_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conds = append(conds, "event_kind = $"+strconv.Itoa(len(args)))
	}

	query := "SELECT " + recordColumns + " FROM audit_logs"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit)
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetByID returns one record or sql.ErrNoRows.
func (s *Store) GetByID(ctx context.Context, id int64) (*audit.Record, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM audit_logs
		WHERE id = $1
	`, recordColumns)

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get audit record: %w", err)
	}
	return rec, nil
}

// MarkProcessed flags one record as reviewed. processed_at and processed_by
// are set together with is_read; the operation is never batched.
func (s *Store) MarkProcessed(ctx context.Context, id int64, processedBy string) error {
	query := `
		UPDATE audit_logs
		SET is_read = TRUE, processed_at = $2, processed_by = $3
		WHERE id = $1
	`

	res, err := s.db.ExecContext(ctx, query, id, time.Now(), processedBy)
	if err != nil {
		return fmt.Errorf("mark audit record processed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteOlderThan removes records created before the cutoff and reports how
// many were deleted. Used by the aggregator's retention sweep.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old audit records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old audit records: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*audit.Record, error) {
	var (
		rec         audit.Record
		kind        string
		payload     []byte
		userID      *uuid.UUID
		processedAt *time.Time
		processedBy *string
	)
	err := row.Scan(
		&rec.ID,
		&rec.App,
		&rec.Service,
		&kind,
		&payload,
		&userID,
		&rec.IsRead,
		&rec.CreatedAt,
		&processedAt,
		&processedBy,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = audit.Kind(kind)
	rec.TargetUserID = userID
	rec.ProcessedAt = processedAt
	if processedBy != nil {
		rec.ProcessedBy = *processedBy
	}
	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	var records []audit.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}
