// Package memory provides an in-memory audit store for tests.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"auditflow/internal/audit"
)

// Store keeps audit records in memory with the same semantics as the
// PostgreSQL store.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	records []audit.Record

	// FailInserts makes every Insert return an error, for simulating a
	// local-store or canonical-store outage.
	FailInserts bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{nextID: 1}
}

var errInsertFailed = &storeError{"insert failed"}

type storeError struct{ msg string }

func (e *storeError) Error() string { return e.msg }

func (s *Store) Insert(_ context.Context, event audit.Event) (*audit.Record, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailInserts {
		return nil, errInsertFailed
	}

	rec := audit.Record{
		ID:           s.nextID,
		App:          event.App,
		Service:      event.Service,
		Kind:         event.Kind,
		Payload:      event.Payload,
		TargetUserID: event.TargetUserID,
		CreatedAt:    time.Now(),
	}
	s.nextID++
	s.records = append(s.records, rec)
	out := rec
	return &out, nil
}

func (s *Store) ListUnprocessed(_ context.Context, limit int) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Record
	for _, rec := range s.records {
		if !rec.IsRead {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return capLimit(out, limit), nil
}

func (s *Store) ListByService(_ context.Context, service string, limit int) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Record
	for _, rec := range s.records {
		if rec.Service == service {
			out = append(out, rec)
		}
	}
	sortNewestFirst(out)
	return capLimit(out, limit), nil
}

func (s *Store) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Record
	for _, rec := range s.records {
		if rec.TargetUserID != nil && *rec.TargetUserID == userID {
			out = append(out, rec)
		}
	}
	sortNewestFirst(out)
	return capLimit(out, limit), nil
}

func (s *Store) List(_ context.Context, filter audit.Filter) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Record
	for _, rec := range s.records {
		if filter.Service != "" && rec.Service != filter.Service {
			continue
		}
		if filter.TargetUserID != nil &&
			(rec.TargetUserID == nil || *rec.TargetUserID != *filter.TargetUserID) {
			continue
		}
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		out = append(out, rec)
	}
	sortNewestFirst(out)
	return capLimit(out, filter.Limit), nil
}

func (s *Store) GetByID(_ context.Context, id int64) (*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.ID == id {
			out := rec
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *Store) MarkProcessed(_ context.Context, id int64, processedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID == id {
			now := time.Now()
			s.records[i].IsRead = true
			s.records[i].ProcessedAt = &now
			s.records[i].ProcessedBy = processedBy
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *Store) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []audit.Record
	var deleted int64
	for _, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return deleted, nil
}

// All returns a copy of every record, for assertions.
func (s *Store) All() []audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Record{}, s.records...)
}

func sortNewestFirst(records []audit.Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

func capLimit(records []audit.Record, limit int) []audit.Record {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}
