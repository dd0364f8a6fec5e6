package rabbitmq

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cafe-orders/internal/domain/notify"
)

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange = exchange
	f.key = key
	f.msg = msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_Notify(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, exchange: DefaultExchange}

	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	err := p.Notify(context.Background(), notify.Notification{
		UserID:    "u1",
		Title:     "Payment received",
		Message:   `Order "abc" is paid.`,
		Category:  notify.CategoryOrder,
		CreatedAt: at,
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultExchange, ch.exchange)
	assert.Equal(t, "notification.order.u1", ch.key)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, at, ch.msg.Timestamp)

	fields := map[string]string{}
	d := jx.DecodeBytes(ch.msg.Body)
	require.NoError(t, d.Obj(func(d *jx.Decoder, key string) error {
		v, err := d.Str()
		fields[key] = v
		return err
	}))
	assert.Equal(t, "u1", fields["user_id"])
	assert.Equal(t, `Order "abc" is paid.`, fields["message"])
	assert.Equal(t, "2026-03-14T09:30:00Z", fields["created_at"])
}

func TestPublisher_BroadcastRoutingKey(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, exchange: DefaultExchange}

	require.NoError(t, p.Notify(context.Background(), notify.Notification{Title: "New item"}))
	assert.Equal(t, "notification.general.broadcast", ch.key)
	assert.NotContains(t, string(ch.msg.Body), "user_id")
	assert.False(t, ch.msg.Timestamp.IsZero())
}

func TestPublisher_PublishError(t *testing.T) {
	p := &Publisher{ch: &fakeChannel{err: errors.New("channel closed")}, exchange: DefaultExchange}

	err := p.Notify(context.Background(), notify.Notification{UserID: "u1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish notification")
}

func TestPublisher_CheckWithoutConnection(t *testing.T) {
	p := &Publisher{ch: &fakeChannel{}}
	require.Error(t, p.Check(context.Background()))
}

func TestPublisher_Close(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch}
	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
