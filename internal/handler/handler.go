// Package handler exposes the ordering core over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-orders/internal/domain/ledger"
	"github.com/xenking/cafe-orders/internal/domain/menu"
	"github.com/xenking/cafe-orders/internal/domain/notify"
	"github.com/xenking/cafe-orders/internal/domain/offer"
	"github.com/xenking/cafe-orders/internal/domain/order"
	"github.com/xenking/cafe-orders/internal/domain/user"
)

// OrderService is the order lifecycle used by the handlers.
type OrderService interface {
	CreateOrder(ctx context.Context, actor user.Actor, req order.CreateOrderRequest) (*order.Order, error)
	ConfirmPayment(ctx context.Context, actor user.Actor, number string, method order.PaymentMethod) (*order.PaymentResult, error)
	CancelOrder(ctx context.Context, actor user.Actor, number string) (*order.Order, error)
	UpdateStatus(ctx context.Context, actor user.Actor, number string, status order.Status) (*order.Order, error)
	GetOrder(ctx context.Context, actor user.Actor, number string) (*order.Order, error)
	ListOrders(ctx context.Context, actor user.Actor) ([]order.Order, error)
	AvailablePoints(ctx context.Context, actor user.Actor) (ledger.Balance, error)
	PaymentLink(ctx context.Context, actor user.Actor, number string) (string, error)
}

// OfferService lists and redeems offers.
type OfferService interface {
	ListOffers(ctx context.Context) ([]offer.Offer, error)
	RedeemOffer(ctx context.Context, actor user.Actor, offerID string, pointsToUse decimal.Decimal) (*offer.Redemption, error)
}

var (
	_ OrderService = (*order.Service)(nil)
	_ OfferService = (*offer.Service)(nil)
)

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// NotificationLimit caps the notifications returned per request.
	NotificationLimit int
}

// Handler serves the /api routes.
type Handler struct {
	menu          menu.Repository
	orders        OrderService
	offers        OfferService
	notifications notify.Repository
	notifyLimit   int
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	items menu.Repository,
	orders OrderService,
	offers OfferService,
	notifications notify.Repository,
) *Handler {
	if cfg.NotificationLimit <= 0 {
		cfg.NotificationLimit = 50
	}
	return &Handler{
		menu:          items,
		orders:        orders,
		offers:        offers,
		notifications: notifications,
		notifyLimit:   cfg.NotificationLimit,
	}
}

// Routes returns the API router. Everything except the menu and the offer
// list requires authentication.
func (h *Handler) Routes(auth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/menu", h.ListMenu)
	r.Get("/menu/{id}", h.GetMenuItem)
	r.Get("/offers", h.ListOffers)

	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Post("/offers/{id}/redeem", h.RedeemOffer)
		r.Get("/notifications", h.ListNotifications)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Get("/", h.ListOrders)
			r.Get("/points", h.AvailablePoints)

			r.Route("/{number}", func(r chi.Router) {
				r.Get("/", h.GetOrder)
				r.Post("/cancel", h.CancelOrder)
				r.Post("/confirm-payment", h.ConfirmPayment)
				r.Put("/status", h.UpdateStatus)
				r.Get("/payment-link", h.PaymentLink)
			})
		})
	})

	return r
}

// actor returns the authenticated caller. Routes behind the authenticator
// always have one.
func actor(r *http.Request) user.Actor {
	a, _ := ActorFrom(r.Context())
	return a
}
