package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RunLock guards a monitor run against overlapping invocations.
// TryAcquire returns ok=false when another holder has the lock.
type RunLock interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// LocalRunLock serializes runs within one process.
type LocalRunLock struct {
	mu sync.Mutex
}

func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{}
}

func (l *LocalRunLock) TryAcquire(_ context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

// Deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Extends the key only if it still holds our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisRunLock serializes runs across every monitor instance sharing a Redis.
// While held, the TTL is refreshed every ttl/3; it only lapses when the
// holder dies.
type RedisRunLock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
	log *zap.Logger
}

func NewRedisRunLock(rdb *redis.Client, key string, ttl time.Duration, log *zap.Logger) *RedisRunLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisRunLock{rdb: rdb, key: key, ttl: ttl, log: log}
}

func (l *RedisRunLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(token, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done

			// The run context may already be cancelled.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.rdb, []string{l.key}, token).Err(); err != nil {
				l.log.Warn("failed to release run lock", zap.String("key", l.key), zap.Error(err))
			}
		})
	}
	return release, true, nil
}

func (l *RedisRunLock) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	every := l.ttl / 3
	if every < 10*time.Millisecond {
		every = 10 * time.Millisecond
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(context.Background(), every)
			n, err := refreshScript.Run(refreshCtx, l.rdb, []string{l.key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.log.Warn("failed to refresh run lock", zap.String("key", l.key), zap.Error(err))
				continue
			}
			if n == 0 {
				l.log.Error("run lock lost, another instance may start an overlapping run", zap.String("key", l.key))
				return
			}
		}
	}
}
