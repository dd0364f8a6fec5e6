package order

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/cafe-orders/internal/domain/ledger"
	"github.com/xenking/cafe-orders/internal/domain/menu"
	"github.com/xenking/cafe-orders/internal/domain/notify"
	"github.com/xenking/cafe-orders/internal/domain/user"
)

// DefaultPaymentURL is the GCash endpoint used for payment links.
const DefaultPaymentURL = "https://pay.gcash.com/pay"

// createAttempts bounds order number allocation when the store reports a
// collision.
const createAttempts = 5

// LineItem is one requested order line.
type LineItem struct {
	MenuItemID string
	Quantity   int
	Size       string
	Customize  string
}

// CreateOrderRequest holds the input for creating an order.
type CreateOrderRequest struct {
	Items []LineItem
	// RequestedPoints is the loyalty discount the customer wants to apply.
	RequestedPoints decimal.Decimal
	// TotalAmount is the total the client computed. Zero means "not sent";
	// otherwise it must match the menu prices.
	TotalAmount  decimal.Decimal
	CustomerName string
	PromisedTime *time.Time
	OrderType    Type
}

// PaymentResult is the outcome of ConfirmPayment.
type PaymentResult struct {
	Order *Order
	// PointsEarned is what this order adds to the ledger.
	PointsEarned decimal.Decimal
	Balance      ledger.Balance
	// AlreadyPaid is true when the order was paid before this call.
	AlreadyPaid bool
}

// RedemptionRequest creates an order for an offer bundle paid with points.
type RedemptionRequest struct {
	OfferID   string
	OfferName string
	Items     []menu.Item
	Points    decimal.Decimal
}

// RedemptionResult is the outcome of CreateRedemption.
type RedemptionResult struct {
	Order        *Order
	PointsBefore decimal.Decimal
	PointsAfter  decimal.Decimal
}

// Config holds optional Service settings.
type Config struct {
	// PaymentURL is the base URL of payment links. Defaults to DefaultPaymentURL.
	PaymentURL    string
	MeterProvider metric.MeterProvider
}

// Service implements the order lifecycle and the loyalty checks around it.
type Service struct {
	tx       Transactor
	orders   Repository
	menu     menu.Repository
	users    user.Repository
	notifier notify.Sink
	numbers  *Numbers

	paymentURL string
	now        func() time.Time

	ordersCreated  metric.Int64Counter
	ordersPaid     metric.Int64Counter
	pointsRedeemed metric.Float64Counter
}

// NewService creates an order Service.
func NewService(
	cfg Config,
	tx Transactor,
	orders Repository,
	items menu.Repository,
	users user.Repository,
	notifier notify.Sink,
	numbers *Numbers,
) (*Service, error) {
	if cfg.PaymentURL == "" {
		cfg.PaymentURL = DefaultPaymentURL
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = noop.NewMeterProvider()
	}
	if numbers == nil {
		numbers = NewNumbers(0)
	}

	s := &Service{
		tx:         tx,
		orders:     orders,
		menu:       items,
		users:      users,
		notifier:   notifier,
		numbers:    numbers,
		paymentURL: cfg.PaymentURL,
		now:        func() time.Time { return time.Now().UTC() },
	}

	meter := cfg.MeterProvider.Meter("github.com/xenking/cafe-orders/internal/domain/order")
	var err error
	if s.ordersCreated, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders created"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	if s.ordersPaid, err = meter.Int64Counter("orders.paid",
		metric.WithDescription("Orders with confirmed payment"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.paid counter")
	}
	if s.pointsRedeemed, err = meter.Float64Counter("points.redeemed",
		metric.WithDescription("Loyalty points applied to orders"),
	); err != nil {
		return nil, errors.Wrap(err, "points.redeemed counter")
	}

	return s, nil
}

// CreateOrder validates the request, checks the requested points against the
// user's spendable balance and stores a pending order. Requesting more points
// than are spendable fails with InsufficientPointsError and writes nothing;
// points above the order total are not spent.
func (s *Service) CreateOrder(ctx context.Context, actor user.Actor, req CreateOrderRequest) (*Order, error) {
	if actor.UserID == "" {
		return nil, ErrForbidden
	}
	if err := validateCreate(&req); err != nil {
		return nil, err
	}

	var created *Order
	err := s.tx.InUserTx(ctx, actor.UserID, func(ctx context.Context) error {
		items, subtotal, err := s.snapshot(ctx, req.Items)
		if err != nil {
			return err
		}
		if !req.TotalAmount.IsZero() && !req.TotalAmount.Equal(subtotal) {
			return invalidInput("total_amount",
				fmt.Sprintf("%s does not match menu prices (%s)", req.TotalAmount.StringFixed(2), subtotal.StringFixed(2)))
		}

		balance, err := s.balance(ctx, actor.UserID)
		if err != nil {
			return err
		}
		requested := ledger.Truncate(req.RequestedPoints)
		if spendable := balance.Spendable(); requested.GreaterThan(spendable) {
			return &InsufficientPointsError{Requested: requested, Available: spendable}
		}

		now := s.now()
		o := &Order{
			UserID:           actor.UserID,
			Status:           StatusPending,
			Subtotal:         subtotal,
			Discount:         decimal.Zero,
			TotalAmount:      subtotal,
			CreditPointsUsed: decimal.Min(requested, subtotal),
			CustomerName:     req.CustomerName,
			PromisedTime:     req.PromisedTime,
			OrderType:        req.OrderType,
			CreatedAt:        now,
			UpdatedAt:        now,
			Items:            items,
		}
		if err := s.insert(ctx, o); err != nil {
			return err
		}
		if _, err := s.refreshHint(ctx, actor.UserID); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.numbers.Add(created.Number)
	s.ordersCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(created.OrderType))))
	if created.CreditPointsUsed.IsPositive() {
		s.pointsRedeemed.Add(ctx, created.CreditPointsUsed.InexactFloat64())
	}
	zctx.From(ctx).Info("Order created",
		zap.String("number", created.Number),
		zap.String("user_id", created.UserID),
		zap.String("total", created.TotalAmount.StringFixed(2)),
		zap.String("points", created.CreditPointsUsed.StringFixed(2)),
	)
	s.notify(ctx, notify.Notification{
		UserID:   created.UserID,
		Title:    "Order placed",
		Message:  fmt.Sprintf("Order %s was received.", created.Number),
		Category: notify.CategoryOrder,
	})

	return created, nil
}

// ConfirmPayment records payment for an order and returns the points it
// earned. Confirming a paid order again changes nothing.
func (s *Service) ConfirmPayment(ctx context.Context, actor user.Actor, number string, method PaymentMethod) (*PaymentResult, error) {
	if method == "" {
		return nil, invalidInput("payment_method", "required")
	}
	if !method.Valid() {
		return nil, invalidInput("payment_method", fmt.Sprintf("unknown method %q", method))
	}

	o, err := s.visibleOrder(ctx, actor, number)
	if err != nil {
		return nil, err
	}

	var res PaymentResult
	err = s.tx.InUserTx(ctx, o.UserID, func(ctx context.Context) error {
		res = PaymentResult{}

		o, err := s.getOrder(ctx, number)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return &InvalidTransitionError{From: o.Status, To: StatusPaid}
		}
		if o.PaidAt != nil {
			balance, err := s.balance(ctx, o.UserID)
			if err != nil {
				return err
			}
			res = PaymentResult{
				Order:        o,
				PointsEarned: ledger.EarnedOn(o.TotalAmount),
				Balance:      balance,
				AlreadyPaid:  true,
			}
			return nil
		}
		if method == PaymentPoints && o.AmountDue().IsPositive() {
			return invalidInput("payment_method",
				fmt.Sprintf("points do not cover the amount due (%s)", o.AmountDue().StringFixed(2)))
		}

		// Another order may have been refunded since this one was placed.
		before, err := s.balance(ctx, o.UserID)
		if err != nil {
			return err
		}
		if o.CreditPointsUsed.GreaterThan(before.Available) {
			return &InsufficientPointsError{Requested: o.CreditPointsUsed, Available: before.Available}
		}

		now := s.now()
		o.PaymentMethod = method
		o.PaidAt = &now
		o.Status = StatusPaid
		o.UpdatedAt = now
		if err := s.orders.Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}

		balance, err := s.refreshHint(ctx, o.UserID)
		if err != nil {
			return err
		}
		res = PaymentResult{
			Order:        o,
			PointsEarned: ledger.EarnedOn(o.TotalAmount),
			Balance:      balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.AlreadyPaid {
		return &res, nil
	}

	s.ordersPaid.Add(ctx, 1, metric.WithAttributes(attribute.String("method", string(method))))
	zctx.From(ctx).Info("Payment confirmed",
		zap.String("number", res.Order.Number),
		zap.String("method", string(method)),
		zap.String("earned", res.PointsEarned.StringFixed(2)),
	)
	s.notify(ctx, notify.Notification{
		UserID: res.Order.UserID,
		Title:  "Payment received",
		Message: fmt.Sprintf("Order %s is paid. You earned %s points.",
			res.Order.Number, res.PointsEarned.StringFixed(2)),
		Category: notify.CategoryOrder,
	})

	return &res, nil
}

// CancelOrder cancels an order owned by the actor. Admins may cancel any
// order. Cancelling a cancelled order is a no-op.
func (s *Service) CancelOrder(ctx context.Context, actor user.Actor, number string) (*Order, error) {
	o, err := s.visibleOrder(ctx, actor, number)
	if err != nil {
		return nil, err
	}

	var (
		cancelled *Order
		changed   bool
	)
	err = s.tx.InUserTx(ctx, o.UserID, func(ctx context.Context) error {
		changed = false

		o, err := s.getOrder(ctx, number)
		if err != nil {
			return err
		}
		cancelled = o
		switch {
		case o.Status == StatusCancelled:
			return nil
		case o.Status.Terminal():
			return &InvalidTransitionError{From: o.Status, To: StatusCancelled}
		}

		o.Status = StatusCancelled
		o.UpdatedAt = s.now()
		if err := s.orders.Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		if _, err := s.refreshHint(ctx, o.UserID); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		zctx.From(ctx).Info("Order cancelled",
			zap.String("number", cancelled.Number),
			zap.String("by", actor.UserID),
		)
		s.notify(ctx, notify.Notification{
			UserID:   cancelled.UserID,
			Title:    "Order cancelled",
			Message:  fmt.Sprintf("Order %s was cancelled.", cancelled.Number),
			Category: notify.CategoryOrder,
		})
	}
	return cancelled, nil
}

// UpdateStatus moves an order through the kitchen workflow. Only admins may
// call it, and payment is recorded through ConfirmPayment instead.
func (s *Service) UpdateStatus(ctx context.Context, actor user.Actor, number string, status Status) (*Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if !status.Known() {
		return nil, invalidInput("status", fmt.Sprintf("unknown status %q", status))
	}

	o, err := s.getOrder(ctx, number)
	if err != nil {
		return nil, err
	}

	var changed bool
	err = s.tx.InUserTx(ctx, o.UserID, func(ctx context.Context) error {
		changed = false

		cur, err := s.getOrder(ctx, number)
		if err != nil {
			return err
		}
		o = cur
		if o.Status == status {
			return nil
		}
		if status == StatusPaid || o.Status.Terminal() || (status == StatusRefunded && o.PaidAt == nil) {
			return &InvalidTransitionError{From: o.Status, To: status}
		}

		o.Status = status
		o.UpdatedAt = s.now()
		if err := s.orders.Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		if status.Terminal() {
			if _, err := s.refreshHint(ctx, o.UserID); err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		zctx.From(ctx).Info("Order status updated",
			zap.String("number", o.Number),
			zap.String("status", string(o.Status)),
		)
		s.notify(ctx, notify.Notification{
			UserID:   o.UserID,
			Title:    "Order update",
			Message:  fmt.Sprintf("Order %s is now %s.", o.Number, strings.ReplaceAll(string(o.ExternalStatus()), "_", " ")),
			Category: notify.CategoryOrder,
		})
	}
	return o, nil
}

// GetOrder returns an order visible to the actor.
func (s *Service) GetOrder(ctx context.Context, actor user.Actor, number string) (*Order, error) {
	return s.visibleOrder(ctx, actor, number)
}

// ListOrders returns the actor's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, actor user.Actor) ([]Order, error) {
	if actor.UserID == "" {
		return nil, ErrForbidden
	}
	orders, err := s.orders.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// AvailablePoints recomputes the actor's loyalty balance from their orders.
func (s *Service) AvailablePoints(ctx context.Context, actor user.Actor) (ledger.Balance, error) {
	if actor.UserID == "" {
		return ledger.Balance{}, ErrForbidden
	}
	return s.balance(ctx, actor.UserID)
}

// PaymentLink returns a GCash link for the amount still due on an order.
func (s *Service) PaymentLink(ctx context.Context, actor user.Actor, number string) (string, error) {
	o, err := s.visibleOrder(ctx, actor, number)
	if err != nil {
		return "", err
	}
	if o.PaidAt != nil || o.Status.Terminal() {
		return "", &InvalidTransitionError{From: o.Status, To: StatusPaid}
	}

	q := url.Values{}
	q.Set("amount", o.AmountDue().StringFixed(2))
	q.Set("note", "Order"+o.Number)
	return s.paymentURL + "?" + q.Encode(), nil
}

// CreateRedemption stores a pending order for an offer bundle, discounted by
// the points spent on it.
func (s *Service) CreateRedemption(ctx context.Context, actor user.Actor, req RedemptionRequest) (*RedemptionResult, error) {
	if actor.UserID == "" {
		return nil, ErrForbidden
	}
	points, err := NormalizeAmount("points_to_use", req.Points)
	if err != nil {
		return nil, err
	}
	if points.IsNegative() {
		return nil, invalidInput("points_to_use", "must not be negative")
	}
	if len(req.Items) == 0 {
		return nil, invalidInput("offer", "has no items")
	}
	lines := make([]LineItem, len(req.Items))
	for i, mi := range req.Items {
		lines[i] = LineItem{MenuItemID: mi.ID, Quantity: 1}
	}

	var res RedemptionResult
	err = s.tx.InUserTx(ctx, actor.UserID, func(ctx context.Context) error {
		// The bundle is re-read under the lock: an item archived or sold
		// out since the offer was loaded fails the whole redemption.
		items, subtotal, err := s.snapshot(ctx, lines)
		if err != nil {
			return err
		}

		balance, err := s.balance(ctx, actor.UserID)
		if err != nil {
			return err
		}
		before := balance.Spendable()
		if points.GreaterThan(before) {
			return &InsufficientPointsError{Requested: points, Available: before}
		}

		customer := actor.UserID
		if u, err := s.users.GetByID(ctx, actor.UserID); err == nil {
			customer = u.Name
		} else if !errors.Is(err, user.ErrNotFound) {
			return errors.Wrap(err, "get user")
		}

		total := subtotal.Sub(points)
		if total.IsNegative() {
			total = decimal.Zero
		}

		now := s.now()
		o := &Order{
			UserID:           actor.UserID,
			Status:           StatusPending,
			Subtotal:         subtotal,
			Discount:         points,
			TotalAmount:      total,
			CreditPointsUsed: points,
			CustomerName:     customer,
			OrderType:        TypePickup,
			OfferID:          req.OfferID,
			CreatedAt:        now,
			UpdatedAt:        now,
			Items:            items,
		}
		if err := s.insert(ctx, o); err != nil {
			return err
		}
		if _, err := s.refreshHint(ctx, actor.UserID); err != nil {
			return err
		}

		res = RedemptionResult{
			Order:        o,
			PointsBefore: before,
			PointsAfter:  before.Sub(points),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.numbers.Add(res.Order.Number)
	s.ordersCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("type", "redemption")))
	s.pointsRedeemed.Add(ctx, points.InexactFloat64())
	zctx.From(ctx).Info("Offer redeemed",
		zap.String("number", res.Order.Number),
		zap.String("offer_id", req.OfferID),
		zap.String("points", points.StringFixed(2)),
	)
	s.notify(ctx, notify.Notification{
		UserID:   actor.UserID,
		Title:    "Offer redeemed",
		Message:  fmt.Sprintf("You redeemed %s for %s points (order %s).", req.OfferName, points.StringFixed(2), res.Order.Number),
		Category: notify.CategoryOffer,
	})

	return &res, nil
}

func validateCreate(req *CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return invalidInput("items", "at least one item is required")
	}
	for i, it := range req.Items {
		if it.MenuItemID == "" {
			return invalidInput(fmt.Sprintf("items[%d].menu_item_id", i), "required")
		}
		if it.Quantity <= 0 {
			return invalidInput(fmt.Sprintf("items[%d].quantity", i), "must be greater than 0")
		}
		if it.Quantity > MaxQuantity {
			return invalidInput(fmt.Sprintf("items[%d].quantity", i), fmt.Sprintf("must be at most %d", MaxQuantity))
		}
	}
	var err error
	if req.RequestedPoints, err = NormalizeAmount("credit_points_used", req.RequestedPoints); err != nil {
		return err
	}
	if req.RequestedPoints.IsNegative() {
		return invalidInput("credit_points_used", "must not be negative")
	}
	if req.TotalAmount, err = NormalizeAmount("total_amount", req.TotalAmount); err != nil {
		return err
	}
	if req.TotalAmount.IsNegative() {
		return invalidInput("total_amount", "must not be negative")
	}
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerName == "" {
		return invalidInput("customer_name", "required")
	}
	if req.OrderType == "" {
		req.OrderType = TypePickup
	}
	if !req.OrderType.Valid() {
		return invalidInput("order_type", fmt.Sprintf("unknown type %q", req.OrderType))
	}
	return nil
}

// snapshot resolves every line against the menu in one batch and copies
// names and prices into order items.
func (s *Service) snapshot(ctx context.Context, lines []LineItem) ([]Item, decimal.Decimal, error) {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.MenuItemID]; ok {
			continue
		}
		seen[l.MenuItemID] = struct{}{}
		ids = append(ids, l.MenuItemID)
	}

	fetched, err := s.menu.GetByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "get menu items")
	}
	byID := make(map[string]menu.Item, len(fetched))
	for _, mi := range fetched {
		byID[mi.ID] = mi
	}

	items := make([]Item, len(lines))
	subtotal := decimal.Zero
	for i, l := range lines {
		mi, ok := byID[l.MenuItemID]
		if !ok || mi.Archived {
			return nil, decimal.Zero, &MenuItemNotFoundError{MenuItemID: l.MenuItemID}
		}
		if !mi.Available {
			return nil, decimal.Zero, invalidInput(fmt.Sprintf("items[%d].menu_item_id", i),
				fmt.Sprintf("%s is not available", mi.Name))
		}
		items[i] = Item{
			MenuItemID: mi.ID,
			Name:       mi.Name,
			UnitPrice:  mi.Price,
			Quantity:   l.Quantity,
			Size:       l.Size,
			Customize:  l.Customize,
		}
		subtotal = subtotal.Add(items[i].LineTotal())
	}
	return items, subtotal, nil
}

// insert stores o under a fresh number, drawing a new one on collision.
func (s *Service) insert(ctx context.Context, o *Order) error {
	for range createAttempts {
		o.Number = s.numbers.Next()
		err := s.orders.Create(ctx, o)
		if errors.Is(err, ErrConflict) {
			s.numbers.Add(o.Number)
			continue
		}
		if err != nil {
			return errors.Wrap(err, "create order")
		}
		return nil
	}
	return errors.Wrap(ErrConflict, "allocate order number")
}

func (s *Service) balance(ctx context.Context, userID string) (ledger.Balance, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return ledger.Balance{}, errors.Wrap(err, "load order history")
	}
	return ledger.Compute(Entries(orders)), nil
}

// refreshHint recomputes the balance and stores it as the user's points hint.
func (s *Service) refreshHint(ctx context.Context, userID string) (ledger.Balance, error) {
	balance, err := s.balance(ctx, userID)
	if err != nil {
		return ledger.Balance{}, err
	}
	if err := s.users.SetPointsHint(ctx, userID, balance.Spendable()); err != nil && !errors.Is(err, user.ErrNotFound) {
		return ledger.Balance{}, errors.Wrap(err, "set points hint")
	}
	return balance, nil
}

func (s *Service) getOrder(ctx context.Context, number string) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// visibleOrder loads an order the actor may see. Orders of other users are
// reported as not found so their numbers do not leak.
func (s *Service) visibleOrder(ctx context.Context, actor user.Actor, number string) (*Order, error) {
	o, err := s.getOrder(ctx, number)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(o.UserID) {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *Service) notify(ctx context.Context, n notify.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		zctx.From(ctx).Warn("Notify", zap.Error(err))
	}
}
