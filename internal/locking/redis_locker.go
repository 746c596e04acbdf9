package locking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ SessionLocker = (*RedisLocker)(nil)

const redisLockKeyPrefix = "storytrain:session_lock:"

// Удаляем ключ, только если он все еще наш
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLockerConfig configures a RedisLocker.
type RedisLockerConfig struct {
	TTL           time.Duration // срок жизни ключа на случай падения держателя
	RetryInterval time.Duration
	Wait          time.Duration
}

// RedisLocker serializes turns across service instances sharing one Redis.
type RedisLocker struct {
	client redis.UniversalClient
	cfg    RedisLockerConfig
	logger *zap.Logger
}

// NewRedisLocker creates a RedisLocker.
func NewRedisLocker(client redis.UniversalClient, cfg RedisLockerConfig, logger *zap.Logger) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 100 * time.Millisecond
	}
	return &RedisLocker{
		client: client,
		cfg:    cfg,
		logger: logger.Named("RedisLocker"),
	}
}

func (l *RedisLocker) Lock(ctx context.Context, sessionID uuid.UUID) (func(), error) {
	key := redisLockKeyPrefix + sessionID.String()
	token := uuid.NewString()

	waitCtx, cancel := withWait(ctx, l.cfg.Wait)
	defer cancel()

	ticker := time.NewTicker(l.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.cfg.TTL).Result()
		if err != nil {
			if waitCtx.Err() != nil {
				return nil, busyError(sessionID, waitCtx.Err())
			}
			l.logger.Error("Failed to acquire session lock", zap.String("sessionID", sessionID.String()), zap.Error(err))
			return nil, fmt.Errorf("redis lock for session %s: %w", sessionID, err)
		}
		if ok {
			return l.unlockFunc(sessionID, key, token), nil
		}

		select {
		case <-waitCtx.Done():
			return nil, busyError(sessionID, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlockFunc(sessionID uuid.UUID, key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// Контекст запроса может быть уже отменен
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			deleted, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int64()
			if err != nil {
				l.logger.Error("Failed to release session lock", zap.String("sessionID", sessionID.String()), zap.Error(err))
				return
			}
			if deleted == 0 {
				l.logger.Warn("Session lock expired before release", zap.String("sessionID", sessionID.String()))
			}
		})
	}
}
