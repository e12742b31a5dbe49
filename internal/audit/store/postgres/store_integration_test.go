//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"auditflow/internal/audit"
	auditstore "auditflow/internal/audit/store/postgres"
	"auditflow/internal/platform/postgres"
	"auditflow/pkg/testutil/containers"
)

type StoreSuite struct {
	suite.Suite
	container *containers.PostgresContainer
	store     *auditstore.Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.container = containers.NewPostgresContainer(s.T(), postgres.MigrationsAudit)
	s.store = auditstore.New(s.container.DB)
}

func (s *StoreSuite) SetupTest() {
	err := s.container.TruncateTables(context.Background(), "audit_logs")
	s.Require().NoError(err)
}

func (s *StoreSuite) insert(service string, target *uuid.UUID) *audit.Record {
	s.T().Helper()
	rec, err := s.store.Insert(context.Background(), audit.Event{
		App:          "hrm",
		Service:      service,
		Kind:         audit.KindCreate,
		Payload:      map[string]any{"action": "login", "email": "sam@example.com"},
		TargetUserID: target,
	})
	s.Require().NoError(err)
	return rec
}

func (s *StoreSuite) TestInsertAndGet() {
	userID := uuid.New()
	rec := s.insert("auth-service", &userID)

	s.NotZero(rec.ID)
	s.False(rec.CreatedAt.IsZero())

	got, err := s.store.GetByID(context.Background(), rec.ID)
	s.Require().NoError(err)
	s.Equal("auth-service", got.Service)
	s.Equal(audit.KindCreate, got.Kind)
	s.Equal("login", got.Payload["action"])
	s.Require().NotNil(got.TargetUserID)
	s.Equal(userID, *got.TargetUserID)
	s.False(got.IsRead)
	s.Nil(got.ProcessedAt)
}

func (s *StoreSuite) TestGetMissing() {
	_, err := s.store.GetByID(context.Background(), 12345)
	s.ErrorIs(err, sql.ErrNoRows)
}

func (s *StoreSuite) TestListUnprocessedOrderAndMark() {
	first := s.insert("auth-service", nil)
	second := s.insert("auth-service", nil)

	list, err := s.store.ListUnprocessed(context.Background(), 10)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	// Oldest first, so compliance workers drain in arrival order.
	s.Equal(first.ID, list[0].ID)
	s.Equal(second.ID, list[1].ID)

	err = s.store.MarkProcessed(context.Background(), first.ID, "compliance-worker")
	s.Require().NoError(err)

	list, err = s.store.ListUnprocessed(context.Background(), 10)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(second.ID, list[0].ID)

	got, err := s.store.GetByID(context.Background(), first.ID)
	s.Require().NoError(err)
	s.True(got.IsRead)
	s.Equal("compliance-worker", got.ProcessedBy)
	s.NotNil(got.ProcessedAt)
}

func (s *StoreSuite) TestMarkProcessedMissing() {
	err := s.store.MarkProcessed(context.Background(), 999, "nobody")
	s.ErrorIs(err, sql.ErrNoRows)
}

func (s *StoreSuite) TestListFilters() {
	userID := uuid.New()
	s.insert("auth-service", &userID)
	s.insert("employee-service", nil)

	byService, err := s.store.List(context.Background(), audit.Filter{Service: "auth-service", Limit: 10})
	s.Require().NoError(err)
	s.Require().Len(byService, 1)
	s.Equal("auth-service", byService[0].Service)

	byUser, err := s.store.ListByUser(context.Background(), userID, 10)
	s.Require().NoError(err)
	s.Require().Len(byUser, 1)

	byKind, err := s.store.List(context.Background(), audit.Filter{Kind: audit.KindUpdate, Limit: 10})
	s.Require().NoError(err)
	s.Empty(byKind)
}

func (s *StoreSuite) TestDeleteOlderThan() {
	s.insert("auth-service", nil)

	deleted, err := s.store.DeleteOlderThan(context.Background(), time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.Zero(deleted)

	deleted, err = s.store.DeleteOlderThan(context.Background(), time.Now().Add(time.Hour))
	s.Require().NoError(err)
	s.EqualValues(1, deleted)

	list, err := s.store.List(context.Background(), audit.Filter{Limit: 10})
	s.Require().NoError(err)
	s.Empty(list)
}
