package dispatch

import (
	"context"
	"sync"
	"time"

	"postpilot/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLockTTL bounds how long a crashed sweep can keep a post claimed.
const DefaultLockTTL = 2 * time.Minute

// Locker claims a post for the duration of one attempt so that two sweeps
// never attempt the same post concurrently.
type Locker interface {
	// TryLock returns ok=false without error when someone else holds key.
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

// LockKey is the claim key for a post.
func LockKey(postID string) string {
	return "dispatch:post:" + postID + ":lock"
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker claims posts with SET NX PX so claims hold across processes.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisLocker returns a Redis-backed locker.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	ctx, span := observability.GetTraceLayer().TraceRedisOperation(ctx, "lock")
	defer span.End()

	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func() {
		// The sweep context may already be cancelled; release on a short detached context.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{key}, token).Err(); err != nil {
			observability.RedisErrorRate.WithLabelValues("unlock").Inc()
		}
	}
	return unlock, true, nil
}

// MemoryLocker claims posts within one process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryLocker returns an in-process locker whose claims expire after ttl.
func NewMemoryLocker(ttl time.Duration) *MemoryLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &MemoryLocker{held: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, false, nil
	}
	expires := now.Add(l.ttl)
	l.held[key] = expires

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(expires) {
			delete(l.held, key)
		}
	}, true, nil
}

// FallbackLocker prefers Redis and falls back to in-process claims when Redis is unreachable.
type FallbackLocker struct {
	primary  Locker
	fallback *MemoryLocker
}

// NewLocker returns a Redis locker with an in-memory fallback, or only the
// in-memory locker when rdb is nil.
func NewLocker(rdb *redis.Client, ttl time.Duration) Locker {
	mem := NewMemoryLocker(ttl)
	if rdb == nil {
		return mem
	}
	return &FallbackLocker{primary: NewRedisLocker(rdb, ttl), fallback: mem}
}

func (l *FallbackLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	unlock, ok, err := l.primary.TryLock(ctx, key)
	if err == nil {
		return unlock, ok, nil
	}
	observability.RedisErrorRate.WithLabelValues("lock").Inc()
	return l.fallback.TryLock(ctx, key)
}
