package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kantin-app/api/internal/database"
)

// fakeStore is an in-memory OrderStore used by the service tests. A single
// mutex stands in for Postgres row locks: fakeDB.Begin takes it, Commit and
// Rollback release it, and Rollback restores the snapshot taken at Begin.
// That gives transactions the same all-or-nothing behavior the service
// relies on, with writes serialized the way FOR UPDATE serializes them.
type fakeStore struct {
	mu sync.Mutex

	tenants      map[uuid.UUID]database.Tenant
	tables       map[string]database.Table
	customers    map[string]database.Customer
	menuItems    map[uuid.UUID]database.MenuItem
	options      map[uuid.UUID]database.VariantOption
	itemOptions  map[uuid.UUID]map[uuid.UUID]bool
	orders       map[string]database.Order
	orderItems   []database.OrderItem
	itemVariants []database.OrderItemVariant
	events       []database.OrderEvent
	nextOrderID  int64

	// adjustLog records the menu item ids passed to AdjustMenuItemStock, in
	// call order. Not part of the snapshot; it observes attempts, not state.
	adjustLog []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants:     make(map[uuid.UUID]database.Tenant),
		tables:      make(map[string]database.Table),
		customers:   make(map[string]database.Customer),
		menuItems:   make(map[uuid.UUID]database.MenuItem),
		options:     make(map[uuid.UUID]database.VariantOption),
		itemOptions: make(map[uuid.UUID]map[uuid.UUID]bool),
		orders:      make(map[string]database.Order),
	}
}

type storeSnapshot struct {
	menuItems    map[uuid.UUID]database.MenuItem
	orders       map[string]database.Order
	orderItems   []database.OrderItem
	itemVariants []database.OrderItemVariant
	events       []database.OrderEvent
	nextOrderID  int64
}

func (f *fakeStore) snapshot() storeSnapshot {
	snap := storeSnapshot{
		menuItems:    make(map[uuid.UUID]database.MenuItem, len(f.menuItems)),
		orders:       make(map[string]database.Order, len(f.orders)),
		orderItems:   append([]database.OrderItem(nil), f.orderItems...),
		itemVariants: append([]database.OrderItemVariant(nil), f.itemVariants...),
		events:       append([]database.OrderEvent(nil), f.events...),
		nextOrderID:  f.nextOrderID,
	}
	for k, v := range f.menuItems {
		snap.menuItems[k] = v
	}
	for k, v := range f.orders {
		snap.orders[k] = v
	}
	return snap
}

func (f *fakeStore) restore(snap storeSnapshot) {
	f.menuItems = snap.menuItems
	f.orders = snap.orders
	f.orderItems = snap.orderItems
	f.itemVariants = snap.itemVariants
	f.events = snap.events
	f.nextOrderID = snap.nextOrderID
}

// fakeDB satisfies the service's DB interface over a fakeStore.
type fakeDB struct {
	database.DBTX
	store *fakeStore
}

func (d *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	d.store.mu.Lock()
	return &fakeTx{store: d.store, snap: d.store.snapshot()}, nil
}

type fakeTx struct {
	pgx.Tx
	store *fakeStore
	snap  storeSnapshot
	done  bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.restore(t.snap)
	t.store.mu.Unlock()
	return nil
}

// --- OrderStore implementation ---

func (f *fakeStore) GetTenant(ctx context.Context, id uuid.UUID) (database.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return database.Tenant{}, pgx.ErrNoRows
	}
	return t, nil
}

func (f *fakeStore) UpsertTableByCode(ctx context.Context, code string) (database.Table, error) {
	if t, ok := f.tables[code]; ok {
		return t, nil
	}
	t := database.Table{ID: uuid.New(), Code: code}
	f.tables[code] = t
	return t, nil
}

func (f *fakeStore) UpsertCustomerByPhone(ctx context.Context, phone string) (database.Customer, error) {
	if c, ok := f.customers[phone]; ok {
		return c, nil
	}
	c := database.Customer{ID: uuid.New(), Phone: phone}
	f.customers[phone] = c
	return c, nil
}

func (f *fakeStore) GetMenuItemsForUpdate(ctx context.Context, arg database.GetMenuItemsForUpdateParams) ([]database.MenuItem, error) {
	var result []database.MenuItem
	seen := make(map[uuid.UUID]bool)
	for _, id := range arg.IDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if m, ok := f.menuItems[id]; ok && m.TenantID == arg.TenantID {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (f *fakeStore) GetVariantOptionsForMenuItem(ctx context.Context, arg database.GetVariantOptionsForMenuItemParams) ([]database.VariantOption, error) {
	var result []database.VariantOption
	for _, id := range arg.OptionIDs {
		if !f.itemOptions[arg.MenuItemID][id] {
			continue
		}
		if opt, ok := f.options[id]; ok {
			result = append(result, opt)
		}
	}
	return result, nil
}

func (f *fakeStore) AdjustMenuItemStock(ctx context.Context, arg database.AdjustMenuItemStockParams) error {
	f.adjustLog = append(f.adjustLog, arg.ID)
	m, ok := f.menuItems[arg.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if m.Stock+arg.Delta < 0 {
		return &pgconn.PgError{Code: "23514", ConstraintName: "menu_items_stock_check"}
	}
	m.Stock += arg.Delta
	f.menuItems[arg.ID] = m
	return nil
}

func (f *fakeStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	if _, ok := f.orders[arg.RefCode]; ok {
		return database.Order{}, &pgconn.PgError{Code: "23505", ConstraintName: "orders_ref_code_key"}
	}
	f.nextOrderID++
	o := database.Order{
		ID:            f.nextOrderID,
		UUID:          arg.UUID,
		RefCode:       arg.RefCode,
		TenantID:      arg.TenantID,
		TableID:       arg.TableID,
		CustomerID:    arg.CustomerID,
		Status:        arg.Status,
		PaymentMethod: arg.PaymentMethod,
		Total:         arg.Total,
		CreatedAt:     time.Now(),
		ExpiredAt:     arg.ExpiredAt,
	}
	f.orders[arg.RefCode] = o
	return o, nil
}

func (f *fakeStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	it := database.OrderItem{
		ID:         uuid.New(),
		OrderID:    arg.OrderID,
		MenuItemID: arg.MenuItemID,
		Qty:        arg.Qty,
		Price:      arg.Price,
		Note:       arg.Note,
	}
	f.orderItems = append(f.orderItems, it)
	return it, nil
}

func (f *fakeStore) CreateOrderItemVariant(ctx context.Context, arg database.CreateOrderItemVariantParams) (database.OrderItemVariant, error) {
	v := database.OrderItemVariant{
		OrderItemID:     arg.OrderItemID,
		VariantOptionID: arg.VariantOptionID,
		Name:            arg.Name,
		PriceDelta:      arg.PriceDelta,
	}
	f.itemVariants = append(f.itemVariants, v)
	return v, nil
}

func (f *fakeStore) GetOrderByRef(ctx context.Context, refCode string) (database.Order, error) {
	o, ok := f.orders[refCode]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (f *fakeStore) GetOrderByRefForUpdate(ctx context.Context, refCode string) (database.Order, error) {
	return f.GetOrderByRef(ctx, refCode)
}

func (f *fakeStore) ListOrderItemsByOrder(ctx context.Context, orderID int64) ([]database.OrderItem, error) {
	var result []database.OrderItem
	for _, it := range f.orderItems {
		if it.OrderID == orderID {
			result = append(result, it)
		}
	}
	return result, nil
}

func (f *fakeStore) ListOrderItemVariantsByItem(ctx context.Context, orderItemID uuid.UUID) ([]database.OrderItemVariant, error) {
	var result []database.OrderItemVariant
	for _, v := range f.itemVariants {
		if v.OrderItemID == orderItemID {
			result = append(result, v)
		}
	}
	return result, nil
}

func (f *fakeStore) setOrder(refCode string, fn func(*database.Order)) (database.Order, error) {
	o, ok := f.orders[refCode]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	fn(&o)
	f.orders[refCode] = o
	return o, nil
}

func (f *fakeStore) SetOrderStatus(ctx context.Context, arg database.SetOrderStatusParams) (database.Order, error) {
	return f.setOrderByID(arg.ID, func(o *database.Order) { o.Status = arg.Status })
}

func (f *fakeStore) MarkOrderPaid(ctx context.Context, arg database.MarkOrderPaidParams) (database.Order, error) {
	return f.setOrderByID(arg.ID, func(o *database.Order) {
		o.Status = "PAID"
		o.PaidAt = pgtype.Timestamptz{Time: arg.PaidAt, Valid: true}
	})
}

func (f *fakeStore) setOrderByID(id int64, fn func(*database.Order)) (database.Order, error) {
	for ref, o := range f.orders {
		if o.ID == id {
			return f.setOrder(ref, fn)
		}
	}
	return database.Order{}, pgx.ErrNoRows
}

func (f *fakeStore) InsertOrderEvent(ctx context.Context, arg database.InsertOrderEventParams) (database.OrderEvent, error) {
	e := database.OrderEvent{
		ID:        int64(len(f.events) + 1),
		OrderID:   arg.OrderID,
		EventType: arg.EventType,
		Payload:   arg.Payload,
		CreatedAt: time.Now(),
	}
	f.events = append(f.events, e)
	return e, nil
}

func (f *fakeStore) ListOrderEventsByOrder(ctx context.Context, orderID int64) ([]database.OrderEvent, error) {
	var result []database.OrderEvent
	for _, e := range f.events {
		if e.OrderID == orderID {
			result = append(result, e)
		}
	}
	return result, nil
}

// --- test fixture helpers ---

func newTestService(store *fakeStore) *OrderService {
	svc := NewOrderService(
		&fakeDB{store: store},
		func(db database.DBTX) OrderStore { return store },
		nil,
	)
	return svc
}

func mustNumeric(s string) pgtype.Numeric {
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		panic(fmt.Sprintf("bad numeric %q: %v", s, err))
	}
	return n
}

func numericString(n pgtype.Numeric) string {
	v, err := n.Value()
	if err != nil || v == nil {
		return ""
	}
	return v.(string)
}
