//go:build integration

package unread_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"auditflow/internal/notification/unread"
	"auditflow/internal/platform/redis"
	"auditflow/pkg/testutil/containers"
)

type CacheSuite struct {
	suite.Suite
	container *containers.RedisContainer
	cache     *unread.Cache
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupSuite() {
	s.container = containers.NewRedisContainer(s.T())
	client, err := redis.New(s.container.URL)
	s.Require().NoError(err)
	s.cache = unread.New(client, slog.New(slog.DiscardHandler))
}

func (s *CacheSuite) SetupTest() {
	s.Require().NoError(s.container.FlushAll(context.Background()))
}

func (s *CacheSuite) TestMissOnColdKey() {
	_, ok := s.cache.Get(context.Background(), uuid.New())
	s.False(ok)
}

func (s *CacheSuite) TestSetThenGet() {
	ctx := context.Background()
	userID := uuid.New()

	s.cache.Set(ctx, userID, 7)

	count, ok := s.cache.Get(ctx, userID)
	s.True(ok)
	s.EqualValues(7, count)
}

func (s *CacheSuite) TestIncrDecrOnSeededKey() {
	ctx := context.Background()
	userID := uuid.New()

	s.cache.Set(ctx, userID, 2)
	s.cache.Incr(ctx, userID)
	s.cache.Incr(ctx, userID)
	s.cache.Decr(ctx, userID)

	count, ok := s.cache.Get(ctx, userID)
	s.True(ok)
	s.EqualValues(3, count)
}

func (s *CacheSuite) TestAdjustNeverSeedsMissingKey() {
	ctx := context.Background()
	userID := uuid.New()

	// Without a seeded value an increment must stay a miss, otherwise the
	// cache would diverge from the SQL count.
	s.cache.Incr(ctx, userID)

	_, ok := s.cache.Get(ctx, userID)
	s.False(ok)
}

func (s *CacheSuite) TestResetDropsKey() {
	ctx := context.Background()
	userID := uuid.New()

	s.cache.Set(ctx, userID, 5)
	s.cache.Reset(ctx, userID)

	_, ok := s.cache.Get(ctx, userID)
	s.False(ok)
}
