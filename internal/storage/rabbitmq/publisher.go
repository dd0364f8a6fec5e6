// Package rabbitmq publishes notifications to a RabbitMQ topic exchange.
package rabbitmq

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xenking/cafe-orders/internal/domain/notify"
)

// DefaultExchange is the exchange notifications are published to.
const DefaultExchange = "cafe.notifications"

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

var _ notify.Sink = (*Publisher)(nil)

// Publisher implements notify.Sink on an AMQP channel. Routing keys have the
// form notification.<category>.<user id|broadcast>.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
}

// Dial connects to url and declares the durable topic exchange.
func Dial(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %q", exchange)
	}

	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Notify publishes n as a persistent JSON message.
func (p *Publisher) Notify(ctx context.Context, n notify.Notification) error {
	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.CreatedAt,
		ContentType:  "application/json",
		Type:         n.Category,
		Body:         encodeNotification(n),
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey(n), false, false, msg); err != nil {
		return errors.Wrap(err, "publish notification")
	}
	return nil
}

// Check reports whether the connection is still open.
func (p *Publisher) Check(context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			firstErr = errors.Wrap(err, "close channel")
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) && firstErr == nil {
			firstErr = errors.Wrap(err, "close connection")
		}
	}
	return firstErr
}

func routingKey(n notify.Notification) string {
	category := n.Category
	if category == "" {
		category = "general"
	}
	target := n.UserID
	if n.Broadcast() {
		target = "broadcast"
	}
	return "notification." + category + "." + target
}

func encodeNotification(n notify.Notification) []byte {
	var e jx.Encoder
	e.ObjStart()
	if !n.Broadcast() {
		e.FieldStart("user_id")
		e.Str(n.UserID)
	}
	e.FieldStart("title")
	e.Str(n.Title)
	e.FieldStart("message")
	e.Str(n.Message)
	e.FieldStart("category")
	e.Str(n.Category)
	e.FieldStart("created_at")
	e.Str(n.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
	return e.Bytes()
}
