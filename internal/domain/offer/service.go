package offer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-orders/internal/domain/order"
	"github.com/xenking/cafe-orders/internal/domain/user"
)

// Redeemer creates the order backing a redemption.
type Redeemer interface {
	CreateRedemption(ctx context.Context, actor user.Actor, req order.RedemptionRequest) (*order.RedemptionResult, error)
}

// Redemption is the outcome of RedeemOffer.
type Redemption struct {
	Offer        *Offer
	Order        *order.Order
	PointsBefore decimal.Decimal
	PointsAfter  decimal.Decimal
}

// Service lists and redeems offers.
type Service struct {
	repo   Repository
	orders Redeemer
	now    func() time.Time
}

// NewService creates an offer Service.
func NewService(repo Repository, orders Redeemer) *Service {
	return &Service{repo: repo, orders: orders, now: time.Now}
}

// ListOffers returns the offers that can be redeemed now.
func (s *Service) ListOffers(ctx context.Context) ([]Offer, error) {
	offers, err := s.repo.ListAvailable(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list offers")
	}

	now := s.now()
	active := offers[:0]
	for i := range offers {
		if offers[i].ActiveAt(now) {
			active = append(active, offers[i])
		}
	}
	return active, nil
}

// RedeemOffer spends pointsToUse on the offer bundle. The points must cover
// the offer's requirement and the user's spendable balance.
func (s *Service) RedeemOffer(ctx context.Context, actor user.Actor, offerID string, pointsToUse decimal.Decimal) (*Redemption, error) {
	pointsToUse, err := order.NormalizeAmount("points_to_use", pointsToUse)
	if err != nil {
		return nil, err
	}
	if pointsToUse.IsNegative() {
		return nil, &order.InvalidInputError{Field: "points_to_use", Reason: "must not be negative"}
	}

	o, err := s.repo.GetByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "get offer")
	}
	if !o.ActiveAt(s.now()) {
		return nil, ErrNotFound
	}
	if pointsToUse.LessThan(o.RequiredPoints) {
		return nil, &order.InvalidInputError{
			Field:  "points_to_use",
			Reason: fmt.Sprintf("offer requires %s points", o.RequiredPoints.StringFixed(2)),
		}
	}

	res, err := s.orders.CreateRedemption(ctx, actor, order.RedemptionRequest{
		OfferID:   o.ID,
		OfferName: o.Name,
		Items:     o.Items,
		Points:    pointsToUse,
	})
	if err != nil {
		return nil, err
	}

	return &Redemption{
		Offer:        o,
		Order:        res.Order,
		PointsBefore: res.PointsBefore,
		PointsAfter:  res.PointsAfter,
	}, nil
}
