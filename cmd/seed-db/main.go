// Command seed-db loads development users, menu items and offers, and
// prints bearer tokens for the seeded users.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-orders/internal/domain/menu"
	"github.com/xenking/cafe-orders/internal/domain/offer"
	"github.com/xenking/cafe-orders/internal/domain/user"
	"github.com/xenking/cafe-orders/internal/handler"
	"github.com/xenking/cafe-orders/internal/storage/postgres"
)

type seedFile struct {
	Users []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"users"`
	Menu []struct {
		ID          string          `json:"id"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Price       decimal.Decimal `json:"price"`
		Category    string          `json:"category"`
		Available   bool            `json:"available"`
	} `json:"menu"`
	Offers []struct {
		ID             string          `json:"id"`
		Name           string          `json:"name"`
		Description    string          `json:"description"`
		RequiredPoints decimal.Decimal `json:"required_points"`
		Available      bool            `json:"available"`
		Items          []string        `json:"items"`
	} `json:"offers"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
		jwtSecret   string
		tokenTTL    time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/cafe.json", "path to the seed JSON file")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "HS256 secret used to print dev tokens (or CAFE_JWT_SECRET env)")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of printed dev tokens")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("CAFE_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath, jwtSecret, tokenTTL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath, jwtSecret string, ttl time.Duration) error {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed file")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	users := postgres.NewUserRepository(pool)
	for _, u := range seed.Users {
		role := user.Role(u.Role)
		if !role.Valid() {
			return errors.Errorf("user %s: unknown role %q", u.ID, u.Role)
		}
		if err := users.Upsert(ctx, user.User{ID: u.ID, Name: u.Name, Email: u.Email, Role: role}); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.ID)
		}
		slog.Info("upserted user", slog.String("id", u.ID), slog.String("role", u.Role))
	}

	items := postgres.NewMenuRepository(pool)
	byID := make(map[string]menu.Item, len(seed.Menu))
	for _, m := range seed.Menu {
		it := menu.Item{
			ID:          m.ID,
			Name:        m.Name,
			Description: m.Description,
			Price:       m.Price,
			Category:    m.Category,
			Available:   m.Available,
		}
		if _, err := items.Upsert(ctx, it); err != nil {
			return errors.Wrapf(err, "upsert menu item %s", m.ID)
		}
		byID[it.ID] = it
	}
	slog.Info("upserted menu", slog.Int("count", len(seed.Menu)))

	offers := postgres.NewOfferRepository(pool)
	for _, o := range seed.Offers {
		off := offer.Offer{
			ID:             o.ID,
			Name:           o.Name,
			Description:    o.Description,
			RequiredPoints: o.RequiredPoints,
			Available:      o.Available,
		}
		for _, id := range o.Items {
			it, ok := byID[id]
			if !ok {
				return errors.Errorf("offer %s: unknown menu item %q", o.ID, id)
			}
			off.Items = append(off.Items, it)
		}
		if err := offers.Upsert(ctx, off); err != nil {
			return errors.Wrapf(err, "upsert offer %s", o.ID)
		}
		slog.Info("upserted offer", slog.String("id", o.ID), slog.String("required_points", o.RequiredPoints.StringFixed(2)))
	}

	if jwtSecret == "" {
		slog.Info("no JWT secret given, skipping dev tokens")
		return nil
	}
	now := time.Now()
	for _, u := range seed.Users {
		token, err := handler.IssueToken([]byte(jwtSecret), u.ID, now, ttl)
		if err != nil {
			return errors.Wrapf(err, "issue token for %s", u.ID)
		}
		fmt.Printf("%s\t%s\n", u.ID, token)
	}
	return nil
}
