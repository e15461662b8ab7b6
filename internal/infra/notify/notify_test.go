//go:build unit

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"auditorium-reservation/internal/usecase/shared"
	"auditorium-reservation/tests/common/builder"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu       sync.Mutex
	got      []published
	err      error
	failOnce error
	closed   bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failOnce != nil {
		err := c.failOnce
		c.failOnce = nil
		return err
	}
	if c.err != nil {
		return c.err
	}
	c.got = append(c.got, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// fakeBroker hands out the queued channels in order, one per dial.
type fakeBroker struct {
	channels []*fakeChannel
	signals  []chan *amqp.Error
	dialErr  error
	dials    int
}

func (b *fakeBroker) dial() (*session, error) {
	b.dials++
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	if len(b.channels) == 0 {
		return nil, errors.New("no channel queued")
	}
	ch := b.channels[0]
	b.channels = b.channels[1:]
	sig := make(chan *amqp.Error, 1)
	b.signals = append(b.signals, sig)
	return &session{ch: ch, closed: []<-chan *amqp.Error{sig}}, nil
}

func newTestNotifier(channels ...*fakeChannel) (*AMQPNotifier, *fakeBroker) {
	b := &fakeBroker{channels: channels}
	return newAMQPNotifier(b.dial, "reservations"), b
}

func sampleNotification(kind shared.EventKind) shared.Notification {
	res := builder.NewReservationBuilder().BuildDomain()
	return shared.NewNotification(kind, res, uuid.New(), builder.BaseTime)
}

func TestAMQPNotifier_Notify(t *testing.T) {
	ch := &fakeChannel{}
	n, _ := newTestNotifier(ch)
	notification := sampleNotification(shared.EventApproved)

	require.NoError(t, n.Notify(context.Background(), notification))
	require.Len(t, ch.got, 1)

	p := ch.got[0]
	assert.Equal(t, "reservations", p.exchange)
	assert.Equal(t, "reservation.approved", p.key)
	assert.Equal(t, ContentTypeJSON, p.msg.ContentType)
	assert.Equal(t, amqp.Persistent, p.msg.DeliveryMode)
	assert.Equal(t, "owner", p.msg.Headers[HeaderRecipient])
	assert.True(t, p.msg.Timestamp.Equal(builder.BaseTime))

	var decoded shared.Notification
	require.NoError(t, json.Unmarshal(p.msg.Body, &decoded))
	assert.Equal(t, notification.Reservation.ID, decoded.Reservation.ID)
	assert.Equal(t, notification.Recipient, decoded.Recipient)
}

func TestAMQPNotifier_PublishError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("PRECONDITION_FAILED - inequivalent arg")}
	n, b := newTestNotifier(ch)

	err := n.Notify(context.Background(), sampleNotification(shared.EventRequested))
	assert.ErrorContains(t, err, "failed to publish notification")
	assert.Equal(t, 1, b.dials, "only a closed session is redialed")

	require.NoError(t, n.Close())
	assert.True(t, ch.closed)
}

func TestAMQPNotifier_Reconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("publish on a closed channel redials and retries once", func(t *testing.T) {
		stale := &fakeChannel{failOnce: amqp.ErrClosed}
		fresh := &fakeChannel{}
		n, b := newTestNotifier(stale, fresh)

		require.NoError(t, n.Notify(ctx, sampleNotification(shared.EventReminder)))
		assert.Equal(t, 2, b.dials)
		assert.True(t, stale.closed)
		assert.Empty(t, stale.got)
		require.Len(t, fresh.got, 1)
		assert.Equal(t, "reservation.reminder", fresh.got[0].key)
	})

	t.Run("close notification triggers a redial before publishing", func(t *testing.T) {
		first := &fakeChannel{}
		second := &fakeChannel{}
		n, b := newTestNotifier(first, second)

		require.NoError(t, n.Notify(ctx, sampleNotification(shared.EventRequested)))
		b.signals[0] <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "broker shutdown"}

		require.NoError(t, n.Notify(ctx, sampleNotification(shared.EventRequested)))
		assert.Len(t, first.got, 1)
		assert.Len(t, second.got, 1)
		assert.True(t, first.closed)
		assert.Equal(t, 2, b.dials)
	})

	t.Run("failed redial is retried on the next publish", func(t *testing.T) {
		n, b := newTestNotifier()
		b.dialErr = errors.New("connection refused")

		err := n.Notify(ctx, sampleNotification(shared.EventRequested))
		assert.ErrorContains(t, err, "failed to reconnect to broker")

		b.dialErr = nil
		recovered := &fakeChannel{}
		b.channels = append(b.channels, recovered)
		require.NoError(t, n.Notify(ctx, sampleNotification(shared.EventRequested)))
		assert.Len(t, recovered.got, 1)
	})
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	notification := sampleNotification(shared.EventRescheduled)
	notification.PreviousWindow = &shared.WindowSnapshot{Start: builder.BaseTime, End: builder.BaseTime.Add(time.Hour)}

	require.NoError(t, n.Notify(context.Background(), notification))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "reservation.rescheduled", entry["event"])
	assert.Equal(t, "approvers", entry["recipient"])
	assert.Equal(t, notification.Reservation.ID.String(), entry["reservation_id"])
	assert.Contains(t, entry, "previous_start")
	assert.NotContains(t, entry, "owner_id")
}
