// Package redislock provides the sweep lease: Redis-backed across replicas, or in-process.
package redislock

import (
	"context"
	"sync"
	"time"

	"auditorium-reservation/internal/pkg/clock"
	"auditorium-reservation/internal/pkg/errs"
	"auditorium-reservation/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLeaseNotOwned = errs.New("lease is no longer owned")

const keyPrefix = "lease:"

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

type Locker struct {
	client redis.UniversalClient
}

func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{client: client}
}

var _ shared.SweepLocker = (*Locker)(nil)

func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (shared.Lease, error) {
	lockKey := keyPrefix + key
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, errs.Wrap(err, "failed to acquire lease")
	}
	if !ok {
		return nil, shared.ErrLeaseHeld
	}
	return &redisLease{client: l.client, key: lockKey, token: token}, nil
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (r *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, r.client, []string{r.key}, r.token).Int()
	if err != nil {
		return errs.Wrap(err, "failed to release lease")
	}
	if n == 0 {
		// expired and possibly taken over by another worker
		return ErrLeaseNotOwned
	}
	return nil
}

// LocalLocker is the single-process fallback when no Redis address is configured.
type LocalLocker struct {
	mu     sync.Mutex
	clock  clock.Clock
	leases map[string]localEntry
}

type localEntry struct {
	token     uuid.UUID
	expiresAt time.Time
}

func NewLocalLocker(clk clock.Clock) *LocalLocker {
	return &LocalLocker{clock: clk, leases: make(map[string]localEntry)}
}

var _ shared.SweepLocker = (*LocalLocker)(nil)

func (l *LocalLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (shared.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if e, ok := l.leases[key]; ok && now.Before(e.expiresAt) {
		return nil, shared.ErrLeaseHeld
	}

	token := uuid.New()
	l.leases[key] = localEntry{token: token, expiresAt: now.Add(ttl)}
	return &localLease{locker: l, key: key, token: token}, nil
}

type localLease struct {
	locker *LocalLocker
	key    string
	token  uuid.UUID
}

func (r *localLease) Release(context.Context) error {
	r.locker.mu.Lock()
	defer r.locker.mu.Unlock()

	if e, ok := r.locker.leases[r.key]; !ok || e.token != r.token {
		return ErrLeaseNotOwned
	}
	delete(r.locker.leases, r.key)
	return nil
}
