// Package notify delivers fire-and-forget notifications to users.
package notify

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Categories used by the core.
const (
	CategoryOrder = "order"
	CategoryMenu  = "menu"
	CategoryOffer = "offer"
)

// Notification is a message addressed to one user or, when UserID is empty,
// to everyone.
type Notification struct {
	ID        int64
	UserID    string
	Title     string
	Message   string
	Category  string
	Read      bool
	CreatedAt time.Time
}

// Broadcast reports whether the notification targets all users.
func (n Notification) Broadcast() bool {
	return n.UserID == ""
}

// Sink accepts notifications for delivery.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Repository stores notifications so users can list them later.
type Repository interface {
	Sink
	// ListForUser returns the user's notifications plus broadcasts, newest first.
	ListForUser(ctx context.Context, userID string, limit int) ([]Notification, error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// DefaultTimeout bounds a single dispatch across all sinks.
const DefaultTimeout = 5 * time.Second

// Dispatcher fans a notification out to every sink. Failures are logged and
// never returned, so a broken sink cannot fail the operation that produced
// the notification.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
}

// NewDispatcher creates a Dispatcher over sinks. Nil sinks are skipped.
func NewDispatcher(sinks ...Sink) *Dispatcher {
	d := &Dispatcher{timeout: DefaultTimeout}
	for _, s := range sinks {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}
	return d
}

// WithTimeout overrides the dispatch timeout.
func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	d.timeout = timeout
	return d
}

// Notify delivers n to every sink and always returns nil.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	// Delivery outlives a cancelled request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	lg := zctx.From(ctx)
	for _, s := range d.sinks {
		if err := s.Notify(ctx, n); err != nil {
			lg.Warn("Notification delivery failed",
				zap.String("title", n.Title),
				zap.String("user_id", n.UserID),
				zap.Error(err),
			)
		}
	}
	return nil
}
