package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/cafe-orders/internal/domain/menu"
	"github.com/xenking/cafe-orders/internal/domain/offer"
)

const (
	offerColumns = `id, name, description, required_points, available, valid_from, valid_until`

	getOfferSQL = `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`

	listAvailableOffersSQL = `SELECT ` + offerColumns + ` FROM offers
		WHERE available ORDER BY required_points, name`

	listOfferItemsSQL = `SELECT oi.offer_id, m.id, m.name, m.description, m.price, m.category, m.available, m.archived
		FROM offer_items oi
		JOIN menu_items m ON m.id = oi.menu_item_id
		WHERE oi.offer_id = ANY($1)
		ORDER BY oi.offer_id, oi.position`

	upsertOfferSQL = `INSERT INTO offers (` + offerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			required_points = EXCLUDED.required_points,
			available = EXCLUDED.available,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until`

	deleteOfferItemsSQL = `DELETE FROM offer_items WHERE offer_id = $1`

	insertOfferItemSQL = `INSERT INTO offer_items (offer_id, menu_item_id, position) VALUES ($1, $2, $3)`
)

var _ offer.Repository = (*OfferRepository)(nil)

// OfferRepository implements offer.Repository backed by PostgreSQL.
type OfferRepository struct {
	pool *pgxpool.Pool
}

// NewOfferRepository returns an OfferRepository that uses the given pool.
func NewOfferRepository(pool *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{pool: pool}
}

// GetByID returns the offer with its bundled menu items.
func (r *OfferRepository) GetByID(ctx context.Context, id string) (*offer.Offer, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, getOfferSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting offer %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOffer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, offer.ErrNotFound
		}
		return nil, fmt.Errorf("getting offer %q: %w", id, err)
	}

	offers := []offer.Offer{o}
	if err := loadOfferItems(ctx, q, offers); err != nil {
		return nil, err
	}
	return &offers[0], nil
}

// ListAvailable returns offers flagged available, cheapest first.
func (r *OfferRepository) ListAvailable(ctx context.Context) ([]offer.Offer, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, listAvailableOffersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing offers: %w", err)
	}
	offers, err := pgx.CollectRows(rows, scanOffer)
	if err != nil {
		return nil, fmt.Errorf("listing offers: %w", err)
	}
	if err := loadOfferItems(ctx, q, offers); err != nil {
		return nil, err
	}
	return offers, nil
}

// Upsert inserts or replaces an offer and its item list.
func (r *OfferRepository) Upsert(ctx context.Context, o offer.Offer) error {
	return inTx(ctx, r.pool, func(q querier) error {
		if _, err := q.Exec(ctx, upsertOfferSQL,
			o.ID, o.Name, o.Description, o.RequiredPoints, o.Available, o.ValidFrom, o.ValidUntil,
		); err != nil {
			return fmt.Errorf("upserting offer %q: %w", o.ID, err)
		}

		b := &pgx.Batch{}
		b.Queue(deleteOfferItemsSQL, o.ID)
		for i, it := range o.Items {
			b.Queue(insertOfferItemSQL, o.ID, it.ID, i)
		}
		if err := q.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("replacing items of offer %q: %w", o.ID, err)
		}
		return nil
	})
}

func loadOfferItems(ctx context.Context, q querier, offers []offer.Offer) error {
	if len(offers) == 0 {
		return nil
	}
	ids := make([]string, len(offers))
	index := make(map[string]int, len(offers))
	for i := range offers {
		ids[i] = offers[i].ID
		index[offers[i].ID] = i
	}

	rows, err := q.Query(ctx, listOfferItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing offer items: %w", err)
	}

	var (
		offerID string
		it      menu.Item
	)
	_, err = pgx.ForEachRow(rows,
		[]any{&offerID, &it.ID, &it.Name, &it.Description, &it.Price, &it.Category, &it.Available, &it.Archived},
		func() error {
			i := index[offerID]
			offers[i].Items = append(offers[i].Items, it)
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("listing offer items: %w", err)
	}
	return nil
}

func scanOffer(row pgx.CollectableRow) (offer.Offer, error) {
	var o offer.Offer
	err := row.Scan(&o.ID, &o.Name, &o.Description, &o.RequiredPoints, &o.Available, &o.ValidFrom, &o.ValidUntil)
	return o, err
}
