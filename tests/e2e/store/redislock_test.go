//go:build e2e

package store_test

import (
	"context"
	"testing"
	"time"

	"auditorium-reservation/internal/infra/redislock"
	"auditorium-reservation/internal/usecase/shared"

	"github.com/docker/go-connections/nat"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort(nat.Port("6379/tcp")).WithStartupTimeout(30 * time.Second),
			Labels:       map[string]string{"purpose": "e2e-tests"},
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLocker(t *testing.T) {
	t.Parallel()
	client := startRedis(t)
	ctx := context.Background()

	a := redislock.NewLocker(client)
	b := redislock.NewLocker(client)

	t.Run("second holder is refused until release", func(t *testing.T) {
		lease, err := a.TryAcquire(ctx, "sweep-1", time.Minute)
		require.NoError(t, err)

		_, err = b.TryAcquire(ctx, "sweep-1", time.Minute)
		assert.ErrorIs(t, err, shared.ErrLeaseHeld)

		require.NoError(t, lease.Release(ctx))

		again, err := b.TryAcquire(ctx, "sweep-1", time.Minute)
		require.NoError(t, err)
		require.NoError(t, again.Release(ctx))
	})

	t.Run("expired lease cannot delete the next holder's key", func(t *testing.T) {
		stale, err := a.TryAcquire(ctx, "sweep-2", 100*time.Millisecond)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return client.Exists(ctx, "lease:sweep-2").Val() == 0
		}, 5*time.Second, 50*time.Millisecond)

		fresh, err := b.TryAcquire(ctx, "sweep-2", time.Minute)
		require.NoError(t, err)

		assert.ErrorIs(t, stale.Release(ctx), redislock.ErrLeaseNotOwned)
		assert.Equal(t, int64(1), client.Exists(ctx, "lease:sweep-2").Val())
		require.NoError(t, fresh.Release(ctx))
	})
}
