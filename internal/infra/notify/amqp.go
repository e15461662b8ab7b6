// Package notify delivers lifecycle events to the outside world.
package notify

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"auditorium-reservation/internal/pkg/errs"
	"auditorium-reservation/internal/usecase/shared"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ContentTypeJSON = "application/json"
	HeaderRecipient = "x-recipient"
)

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// session is one broker connection with its publishing channel.
// closed receives (or is closed) once either side goes away.
type session struct {
	conn   io.Closer
	ch     channel
	closed []<-chan *amqp.Error
}

func (s *session) alive() bool {
	for _, c := range s.closed {
		select {
		case <-c:
			return false
		default:
		}
	}
	return true
}

func (s *session) close() error {
	chErr := s.ch.Close()
	if s.conn == nil {
		return chErr
	}
	if err := s.conn.Close(); err != nil && !errs.Is(err, amqp.ErrClosed) {
		return errs.Wrap(err, "failed to close broker connection")
	}
	if errs.Is(chErr, amqp.ErrClosed) {
		return nil
	}
	return chErr
}

type dialFunc func() (*session, error)

// AMQPNotifier publishes each notification to a durable topic exchange,
// routed by event kind (e.g. "reservation.approved"). Mail relays consume from there.
// A session lost to a broker restart or channel exception is redialed on the next publish.
type AMQPNotifier struct {
	exchange string
	dial     dialFunc

	// amqp channels are not safe for concurrent publishing
	mu   sync.Mutex
	sess *session
}

// DialAMQP connects eagerly so a bad URL fails at startup.
func DialAMQP(url, exchange string) (*AMQPNotifier, error) {
	n := newAMQPNotifier(dialSession(url, exchange), exchange)
	sess, err := n.dial()
	if err != nil {
		return nil, err
	}
	n.sess = sess
	return n, nil
}

func dialSession(url, exchange string) dialFunc {
	return func() (*session, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, errs.Wrap(err, "failed to dial broker")
		}

		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, errs.Wrap(err, "failed to open channel")
		}

		if err := ch.ExchangeDeclare(
			exchange,
			amqp.ExchangeTopic,
			true,  // durable
			false, // autoDelete
			false, // internal
			false, // noWait
			nil,
		); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, errs.Wrap(err, "failed to declare exchange")
		}

		return &session{
			conn: conn,
			ch:   ch,
			closed: []<-chan *amqp.Error{
				conn.NotifyClose(make(chan *amqp.Error, 1)),
				ch.NotifyClose(make(chan *amqp.Error, 1)),
			},
		}, nil
	}
}

func newAMQPNotifier(dial dialFunc, exchange string) *AMQPNotifier {
	return &AMQPNotifier{exchange: exchange, dial: dial}
}

var _ shared.Notifier = (*AMQPNotifier)(nil)

func (n *AMQPNotifier) Notify(ctx context.Context, notification shared.Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return errs.Wrap(err, "failed to marshal notification")
	}

	msg := amqp.Publishing{
		ContentType:  ContentTypeJSON,
		DeliveryMode: amqp.Persistent,
		Timestamp:    notification.OccurredAt.UTC(),
		MessageId:    notification.Reservation.ID.String() + ":" + string(notification.Kind),
		Headers:      amqp.Table{HeaderRecipient: string(notification.Recipient.Kind)},
		Body:         body,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	err = n.publishLocked(ctx, string(notification.Kind), msg)
	if errs.Is(err, amqp.ErrClosed) {
		// the close notification can race the publish; one redial per call
		n.dropLocked()
		err = n.publishLocked(ctx, string(notification.Kind), msg)
	}
	if err != nil {
		return errs.Wrap(err, "failed to publish notification")
	}
	return nil
}

func (n *AMQPNotifier) publishLocked(ctx context.Context, key string, msg amqp.Publishing) error {
	if n.sess != nil && !n.sess.alive() {
		n.dropLocked()
	}
	if n.sess == nil {
		sess, err := n.dial()
		if err != nil {
			return errs.Wrap(err, "failed to reconnect to broker")
		}
		n.sess = sess
	}
	return n.sess.ch.PublishWithContext(ctx, n.exchange, key, false, false, msg)
}

func (n *AMQPNotifier) dropLocked() {
	if n.sess == nil {
		return
	}
	_ = n.sess.close()
	n.sess = nil
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sess == nil {
		return nil
	}
	err := n.sess.close()
	n.sess = nil
	return err
}
