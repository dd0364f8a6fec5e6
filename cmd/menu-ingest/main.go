// Command menu-ingest loads menu items from gzip-compressed JSON Lines
// catalog files. Files are parsed concurrently; when an item appears in
// several files the last file on the command line wins. New items and items
// that became unavailable are announced as broadcast notifications.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/cafe-orders/internal/domain/menu"
	"github.com/xenking/cafe-orders/internal/domain/notify"
	"github.com/xenking/cafe-orders/internal/storage/postgres"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	maxLineSize   = 1 << 20
)

// catalog is the parsed content of one file.
type catalog struct {
	items  []menu.Item
	filter *bloom.BloomFilter
}

func main() {
	var (
		databaseURL string
		announce    bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&announce, "announce", true, "broadcast notifications for new and sold out items")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		slog.Error("usage: menu-ingest [flags] catalog.jsonl.gz...")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, flag.Args(), announce); err != nil {
		slog.Error("menu ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("menu ingest completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, announce bool) error {
	catalogs, err := readCatalogs(ctx, files)
	if err != nil {
		return errors.Wrap(err, "read catalogs")
	}
	items := merge(catalogs)
	slog.Info("catalogs merged", slog.Int("files", len(files)), slog.Int("items", len(items)))

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	var sink notify.Sink = notify.SinkFunc(func(context.Context, notify.Notification) error { return nil })
	if announce {
		sink = postgres.NewNotificationRepository(pool)
	}
	return write(ctx, postgres.NewMenuRepository(pool), sink, items)
}

// readCatalogs parses every file concurrently, preserving argument order.
func readCatalogs(ctx context.Context, files []string) ([]catalog, error) {
	out := make([]catalog, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			c := catalog{filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR)}
			if err := streamGzFile(ctx, path, func(it menu.Item) {
				c.items = append(c.items, it)
				c.filter.AddString(it.ID)
			}); err != nil {
				return errors.Wrapf(err, "parse %s", path)
			}
			slog.Info("catalog parsed", slog.String("file", path), slog.Int("items", len(c.items)))
			out[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// merge flattens catalogs so that later entries override earlier ones while
// keeping first-seen order. Earlier files' bloom filters tell cross-file
// overrides apart from duplicates inside one file.
func merge(catalogs []catalog) []menu.Item {
	var (
		ids       []string
		byID      = make(map[string]menu.Item)
		overrides int
	)
	for i, c := range catalogs {
		for _, it := range c.items {
			if _, exists := byID[it.ID]; !exists {
				ids = append(ids, it.ID)
			} else if seenBefore(catalogs[:i], it.ID) {
				overrides++
			}
			byID[it.ID] = it
		}
	}
	if overrides > 0 {
		slog.Info("items overridden by later files", slog.Int("count", overrides))
	}

	items := make([]menu.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, byID[id])
	}
	return items
}

func seenBefore(earlier []catalog, id string) bool {
	for _, c := range earlier {
		if c.filter.TestString(id) {
			return true
		}
	}
	return false
}

// write upserts items and announces changes customers care about.
func write(ctx context.Context, repo *postgres.MenuRepository, sink notify.Sink, items []menu.Item) error {
	var inserted int
	for i, it := range items {
		created, err := repo.Upsert(ctx, it)
		if err != nil {
			return errors.Wrapf(err, "upsert menu item %s", it.ID)
		}
		if created {
			inserted++
		}

		if n, ok := announcement(it, created); ok {
			if err := sink.Notify(ctx, n); err != nil {
				return errors.Wrapf(err, "announce menu item %s", it.ID)
			}
		}

		if (i+1)%1000 == 0 || i+1 == len(items) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(items)))
		}
	}
	slog.Info("menu written", slog.Int("inserted", inserted), slog.Int("updated", len(items)-inserted))
	return nil
}

// announcement builds the broadcast for a new or sold out item.
func announcement(it menu.Item, created bool) (notify.Notification, bool) {
	switch {
	case it.Archived:
		return notify.Notification{}, false
	case created && it.Available:
		return notify.Notification{
			Title:    "New Menu Item",
			Message:  it.Name + " was added.",
			Category: notify.CategoryMenu,
		}, true
	case !created && !it.Available:
		return notify.Notification{
			Title:    "Menu Updated",
			Message:  it.Name + " was sold out.",
			Category: notify.CategoryMenu,
		}, true
	}
	return notify.Notification{}, false
}

// streamGzFile decodes one menu item per line of a gzip-compressed file.
// Blank lines are skipped.
func streamGzFile(ctx context.Context, path string, fn func(menu.Item)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		it, err := decodeItem(scanner.Bytes())
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		fn(it)
	}
	return errors.Wrapf(scanner.Err(), "scan %s", path)
}

func decodeItem(data []byte) (menu.Item, error) {
	it := menu.Item{Available: true}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			it.ID, err = d.Str()
		case "name":
			it.Name, err = d.Str()
		case "description":
			it.Description, err = d.Str()
		case "category":
			it.Category, err = d.Str()
		case "price":
			it.Price, err = decodePrice(d)
		case "available":
			it.Available, err = d.Bool()
		case "archived":
			it.Archived, err = d.Bool()
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return menu.Item{}, err
	}
	if it.ID == "" || it.Name == "" {
		return menu.Item{}, errors.New("id and name are required")
	}
	if it.Price.IsNegative() {
		return menu.Item{}, errors.Errorf("item %s: negative price", it.ID)
	}
	return it, nil
}

// decodePrice accepts a JSON number or a numeric string.
func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(n.String())
}
