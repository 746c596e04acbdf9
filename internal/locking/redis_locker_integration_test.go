package locking

import (
	"context"
	"testing"
	"time"

	"storytrain/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

type RedisLockerSuite struct {
	suite.Suite
	ctx         context.Context
	rdContainer *tcredis.RedisContainer
	client      *redis.Client
}

func (s *RedisLockerSuite) SetupSuite() {
	s.ctx = context.Background()

	var err error
	s.rdContainer, err = tcredis.Run(s.ctx,
		"docker.io/redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("* Ready to accept connections").
				WithOccurrence(1).
				WithStartupTimeout(1*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start redis container")

	uri, err := s.rdContainer.ConnectionString(s.ctx)
	require.NoError(s.T(), err)
	opts, err := redis.ParseURL(uri)
	require.NoError(s.T(), err)

	s.client = redis.NewClient(opts)
	require.NoError(s.T(), s.client.Ping(s.ctx).Err())
}

func (s *RedisLockerSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.rdContainer != nil {
		_ = s.rdContainer.Terminate(s.ctx)
	}
}

func (s *RedisLockerSuite) newLocker(wait time.Duration) *RedisLocker {
	return NewRedisLocker(s.client, RedisLockerConfig{
		TTL:           time.Minute,
		RetryInterval: 10 * time.Millisecond,
		Wait:          wait,
	}, zap.NewNop())
}

func (s *RedisLockerSuite) TestExclusiveAcrossLockers() {
	sessionID := uuid.New()
	first := s.newLocker(100 * time.Millisecond)
	second := s.newLocker(100 * time.Millisecond)

	unlock, err := first.Lock(s.ctx, sessionID)
	s.Require().NoError(err)

	_, err = second.Lock(s.ctx, sessionID)
	s.ErrorIs(err, models.ErrSessionBusy)

	unlock()

	unlockSecond, err := second.Lock(s.ctx, sessionID)
	s.Require().NoError(err)
	unlockSecond()

	exists, err := s.client.Exists(s.ctx, redisLockKeyPrefix+sessionID.String()).Result()
	s.Require().NoError(err)
	s.Zero(exists)
}

func (s *RedisLockerSuite) TestWaiterAcquiresAfterRelease() {
	sessionID := uuid.New()
	locker := s.newLocker(5 * time.Second)

	unlock, err := locker.Lock(s.ctx, sessionID)
	s.Require().NoError(err)

	acquired := make(chan error, 1)
	go func() {
		unlockWaiter, err := locker.Lock(s.ctx, sessionID)
		if err == nil {
			unlockWaiter()
		}
		acquired <- err
	}()

	time.Sleep(50 * time.Millisecond)
	unlock()

	select {
	case err := <-acquired:
		s.NoError(err)
	case <-time.After(3 * time.Second):
		s.Fail("waiter did not acquire the lock")
	}
}

func (s *RedisLockerSuite) TestReleaseDoesNotDeleteForeignLock() {
	sessionID := uuid.New()
	key := redisLockKeyPrefix + sessionID.String()
	locker := s.newLocker(time.Second)

	unlock, err := locker.Lock(s.ctx, sessionID)
	s.Require().NoError(err)

	// Ключ истек и его занял другой экземпляр
	s.Require().NoError(s.client.Set(s.ctx, key, "someone-else", time.Minute).Err())
	unlock()

	value, err := s.client.Get(s.ctx, key).Result()
	s.Require().NoError(err)
	s.Equal("someone-else", value)
	s.Require().NoError(s.client.Del(s.ctx, key).Err())
}

func TestRedisLockerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration tests in short mode")
	}
	suite.Run(t, new(RedisLockerSuite))
}
