package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-orders/internal/domain/menu"
	"github.com/xenking/cafe-orders/internal/domain/notify"
	"github.com/xenking/cafe-orders/internal/domain/user"
)

// --- Mock implementations ---

type mockTx struct {
	calls int
	err   error
}

func (m *mockTx) InUserTx(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	return fn(ctx)
}

type mockOrderRepo struct {
	mu       sync.Mutex
	byNumber map[string]*Order
	writes   int
	// conflicts makes the next n Create calls report a number collision.
	conflicts int
	createErr error
	listErr   error
}

func newOrderRepo(orders ...Order) *mockOrderRepo {
	m := &mockOrderRepo{byNumber: make(map[string]*Order)}
	for i := range orders {
		o := orders[i]
		m.byNumber[o.Number] = &o
	}
	return m
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if m.conflicts > 0 {
		m.conflicts--
		return ErrConflict
	}
	if _, ok := m.byNumber[o.Number]; ok {
		return ErrConflict
	}
	cp := *o
	m.byNumber[o.Number] = &cp
	m.writes++
	return nil
}

func (m *mockOrderRepo) GetByNumber(_ context.Context, number string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byNumber[number]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []Order
	for _, o := range m.byNumber {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byNumber[o.Number]; !ok {
		return ErrNotFound
	}
	cp := *o
	m.byNumber[o.Number] = &cp
	m.writes++
	return nil
}

func (m *mockOrderRepo) ListNumbers(_ context.Context, fn func(string) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for n := range m.byNumber {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

type mockMenuRepo struct {
	byID   map[string]menu.Item
	getErr error
}

func newMenuRepo(items ...menu.Item) *mockMenuRepo {
	m := &mockMenuRepo{byID: make(map[string]menu.Item, len(items))}
	for _, it := range items {
		m.byID[it.ID] = it
	}
	return m
}

func (m *mockMenuRepo) List(_ context.Context) ([]menu.Item, error) {
	out := make([]menu.Item, 0, len(m.byID))
	for _, it := range m.byID {
		out = append(out, it)
	}
	return out, nil
}

func (m *mockMenuRepo) GetByID(_ context.Context, id string) (*menu.Item, error) {
	it, ok := m.byID[id]
	if !ok {
		return nil, menu.ErrNotFound
	}
	return &it, nil
}

func (m *mockMenuRepo) GetByIDs(_ context.Context, ids []string) ([]menu.Item, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []menu.Item
	for _, id := range ids {
		if it, ok := m.byID[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

type mockUserRepo struct {
	users map[string]*user.User
	hints map[string]decimal.Decimal
}

func newUserRepo(users ...user.User) *mockUserRepo {
	m := &mockUserRepo{
		users: make(map[string]*user.User),
		hints: make(map[string]decimal.Decimal),
	}
	for i := range users {
		u := users[i]
		m.users[u.ID] = &u
	}
	return m
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (m *mockUserRepo) SetPointsHint(_ context.Context, id string, points decimal.Decimal) error {
	m.hints[id] = points
	return nil
}

type mockSink struct {
	got []notify.Notification
}

func (m *mockSink) Notify(_ context.Context, n notify.Notification) error {
	m.got = append(m.got, n)
	return nil
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	customer = user.Actor{UserID: "u1", Role: user.RoleCustomer}
	stranger = user.Actor{UserID: "u2", Role: user.RoleCustomer}
	admin    = user.Actor{UserID: "staff", Role: user.RoleAdmin}

	fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
)

func paidOrder(number, userID, total, points string) Order {
	paidAt := fixedNow.Add(-time.Hour)
	return Order{
		Number:           number,
		UserID:           userID,
		Status:           StatusPaid,
		Subtotal:         dec(total),
		TotalAmount:      dec(total),
		CreditPointsUsed: dec(points),
		PaidAt:           &paidAt,
		CreatedAt:        fixedNow.Add(-2 * time.Hour),
	}
}

func pendingOrder(number, userID, total, points string) Order {
	return Order{
		Number:           number,
		UserID:           userID,
		Status:           StatusPending,
		Subtotal:         dec(total),
		TotalAmount:      dec(total),
		CreditPointsUsed: dec(points),
		CreatedAt:        fixedNow.Add(-time.Hour),
	}
}

func testMenu() *mockMenuRepo {
	return newMenuRepo(
		menu.Item{ID: "latte", Name: "Latte", Price: dec("120.00"), Available: true},
		menu.Item{ID: "bagel", Name: "Bagel", Price: dec("85.50"), Available: true},
		menu.Item{ID: "soup", Name: "Soup", Price: dec("150.00"), Available: false},
		menu.Item{ID: "old", Name: "Old Pie", Price: dec("99.00"), Available: true, Archived: true},
	)
}

type fixture struct {
	svc    *Service
	tx     *mockTx
	orders *mockOrderRepo
	users  *mockUserRepo
	sink   *mockSink
}

func newFixture(orders *mockOrderRepo) *fixture {
	f := &fixture{
		tx:     &mockTx{},
		orders: orders,
		users:  newUserRepo(user.User{ID: "u1", Name: "Ana", Role: user.RoleCustomer}),
		sink:   &mockSink{},
	}
	svc, err := NewService(Config{}, f.tx, orders, testMenu(), f.users, f.sink, NewNumbers(1000))
	if err != nil {
		panic(err)
	}
	svc.now = func() time.Time { return fixedNow }
	f.svc = svc
	return f
}
