package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kantin-app/api/internal/database"
	"github.com/kantin-app/api/internal/enum"
	"github.com/shopspring/decimal"
)

// paymentWindow is how long an order may stay AWAITING_PAYMENT before it is
// considered expired.
const paymentWindow = 10 * time.Minute

const maxRefCodeRetries = 3

// Errors returned by the order service. All of these are expected business
// rejections; handlers map them to 4xx responses.
var (
	ErrTenantNotFound       = errors.New("tenant not found")
	ErrTenantInactive       = errors.New("tenant is not active")
	ErrEmptyItems           = errors.New("items are required")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidMenuItemID    = errors.New("invalid menu_item_id")
	ErrInvalidVariantID     = errors.New("invalid variant_option_id")
	ErrInvalidPaymentMethod = errors.New("invalid payment_method")
	ErrMenuItemNotFound     = errors.New("menu item not found in tenant")
	ErrItemUnavailable      = errors.New("menu item is not available")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrVariantMismatch      = errors.New("variant option does not belong to menu item")

	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderExpired         = errors.New("order already expired")
	ErrAlreadyPaid          = errors.New("order already paid")
	ErrNotCashOrder         = errors.New("payment method is not CASH")
	ErrNotCancellable       = errors.New("order is not in a cancellable status")
	ErrTransitionNotAllowed = errors.New("status transition not permitted")
)

// DB is the connection pool surface the service needs: plain query
// execution for reads and transaction creation for state changes.
// Satisfied by *pgxpool.Pool.
type DB interface {
	database.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed by the order lifecycle engine.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetTenant(ctx context.Context, id uuid.UUID) (database.Tenant, error)
	UpsertTableByCode(ctx context.Context, code string) (database.Table, error)
	UpsertCustomerByPhone(ctx context.Context, phone string) (database.Customer, error)

	GetMenuItemsForUpdate(ctx context.Context, arg database.GetMenuItemsForUpdateParams) ([]database.MenuItem, error)
	GetVariantOptionsForMenuItem(ctx context.Context, arg database.GetVariantOptionsForMenuItemParams) ([]database.VariantOption, error)
	AdjustMenuItemStock(ctx context.Context, arg database.AdjustMenuItemStockParams) error

	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	CreateOrderItemVariant(ctx context.Context, arg database.CreateOrderItemVariantParams) (database.OrderItemVariant, error)

	GetOrderByRef(ctx context.Context, refCode string) (database.Order, error)
	GetOrderByRefForUpdate(ctx context.Context, refCode string) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID int64) ([]database.OrderItem, error)
	ListOrderItemVariantsByItem(ctx context.Context, orderItemID uuid.UUID) ([]database.OrderItemVariant, error)
	SetOrderStatus(ctx context.Context, arg database.SetOrderStatusParams) (database.Order, error)
	MarkOrderPaid(ctx context.Context, arg database.MarkOrderPaidParams) (database.Order, error)
	InsertOrderEvent(ctx context.Context, arg database.InsertOrderEventParams) (database.OrderEvent, error)
	ListOrderEventsByOrder(ctx context.Context, orderID int64) ([]database.OrderEvent, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// Notifier delivers best-effort notifications after a state transition has
// committed. Implementations must not block.
type Notifier interface {
	OrderUpdated(tenantID uuid.UUID, event string, order database.Order)
}

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	TenantID      uuid.UUID
	TableCode     string
	Phone         string
	PaymentMethod string
	Items         []CreateOrderLineRequest
}

// CreateOrderLineRequest is a single line in the order.
type CreateOrderLineRequest struct {
	MenuItemID       string
	Qty              int32
	Note             string
	VariantOptionIDs []string
}

// OrderLineResult is an order item with its selected variant snapshots.
type OrderLineResult struct {
	Item     database.OrderItem
	Variants []database.OrderItemVariant
}

// CreateOrderResult is the full created order with items and, for TRANSFER
// orders, the virtual-account payment instructions.
type CreateOrderResult struct {
	Order       database.Order
	Items       []OrderLineResult
	PaymentInfo map[string]string
}

// OrderService owns the order lifecycle: reservation-backed creation,
// payment confirmation, cancellation, fulfillment transitions and expiry.
type OrderService struct {
	pool     DB
	newStore NewOrderStore
	notifier Notifier
	now      func() time.Time
}

// NewOrderService creates a new OrderService. notifier may be nil.
func NewOrderService(pool DB, newStore NewOrderStore, notifier Notifier) *OrderService {
	return &OrderService{
		pool:     pool,
		newStore: newStore,
		notifier: notifier,
		now:      time.Now,
	}
}

// reservedLine holds a prepared order item while the menu item rows are
// still locked.
type reservedLine struct {
	params   database.CreateOrderItemParams
	variants []database.VariantOption
}

// CreateOrder validates the request, reserves stock under row locks and
// creates the order with snapshot pricing, all in one transaction. Retries
// on ref_code unique collisions (two orders generated in the same second
// can draw the same random suffix).
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if req.PaymentMethod != enum.PaymentMethodCash && req.PaymentMethod != enum.PaymentMethodTransfer {
		return nil, ErrInvalidPaymentMethod
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for i, line := range req.Items {
		if line.Qty <= 0 {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		if _, err := uuid.Parse(line.MenuItemID); err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidMenuItemID)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxRefCodeRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req)
		if err == nil {
			s.notify("order.created", result.Order)
			return result, nil
		}
		if isRefCodeConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// isRefCodeConflict checks for a unique constraint violation on the order
// reference code (pgconn error code 23505).
func isRefCodeConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_ref_code_key"
	}
	return false
}

// createOrderTx executes reservation plus order creation in a single
// transaction. Stock deduction and order insertion are not separable steps:
// if any line fails, nothing is deducted.
func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	tenant, err := store.GetTenant(ctx, req.TenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if !tenant.Active {
		return nil, ErrTenantInactive
	}

	tableID := pgtype.UUID{}
	if req.TableCode != "" {
		table, err := store.UpsertTableByCode(ctx, req.TableCode)
		if err != nil {
			return nil, fmt.Errorf("upsert table: %w", err)
		}
		tableID = pgtype.UUID{Bytes: table.ID, Valid: true}
	}

	customerID := pgtype.UUID{}
	if req.Phone != "" {
		customer, err := store.UpsertCustomerByPhone(ctx, req.Phone)
		if err != nil {
			return nil, fmt.Errorf("upsert customer: %w", err)
		}
		customerID = pgtype.UUID{Bytes: customer.ID, Valid: true}
	}

	// Lock every referenced menu item row. The query orders by ascending id
	// so overlapping multi-item orders always acquire locks in the same
	// sequence.
	itemIDs := make([]uuid.UUID, len(req.Items))
	for i, line := range req.Items {
		itemIDs[i] = uuid.MustParse(line.MenuItemID)
	}
	locked, err := store.GetMenuItemsForUpdate(ctx, database.GetMenuItemsForUpdateParams{
		IDs:      itemIDs,
		TenantID: req.TenantID,
	})
	if err != nil {
		return nil, fmt.Errorf("lock menu items: %w", err)
	}
	lockedByID := make(map[uuid.UUID]database.MenuItem, len(locked))
	for _, m := range locked {
		lockedByID[m.ID] = m
	}

	// Validate every line against the locked state and compute snapshots.
	// Any failure aborts the whole transaction with no partial deduction.
	total := decimal.Zero
	lines := make([]reservedLine, 0, len(req.Items))
	reserved := make(map[uuid.UUID]int32)
	for i, line := range req.Items {
		item, ok := lockedByID[itemIDs[i]]
		if !ok {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrMenuItemNotFound)
		}
		if !item.Available {
			return nil, fmt.Errorf("items[%d]: %w: %q", i, ErrItemUnavailable, item.Name)
		}
		if item.Stock-reserved[item.ID] < line.Qty {
			return nil, fmt.Errorf("items[%d]: %w for %q", i, ErrInsufficientStock, item.Name)
		}
		reserved[item.ID] += line.Qty

		variants, err := s.resolveVariants(ctx, store, item.ID, line.VariantOptionIDs)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}

		// Snapshot price = menu price + sum of variant deltas, fixed forever.
		price := numericToDecimal(item.Price)
		for _, v := range variants {
			price = price.Add(numericToDecimal(v.PriceDelta))
		}
		total = total.Add(price.Mul(decimal.NewFromInt32(line.Qty)))

		note := pgtype.Text{}
		if line.Note != "" {
			note = pgtype.Text{String: line.Note, Valid: true}
		}
		lines = append(lines, reservedLine{
			params: database.CreateOrderItemParams{
				MenuItemID: item.ID,
				Qty:        line.Qty,
				Price:      decimalToNumeric(price),
				Note:       note,
			},
			variants: variants,
		})
	}

	// Deduct stock per distinct item while the locks are held.
	for id, qty := range reserved {
		if err := store.AdjustMenuItemStock(ctx, database.AdjustMenuItemStockParams{
			ID:    id,
			Delta: -qty,
		}); err != nil {
			return nil, fmt.Errorf("deduct stock: %w", err)
		}
	}

	now := s.now()
	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		UUID:          uuid.New(),
		RefCode:       generateRefCode(now),
		TenantID:      req.TenantID,
		TableID:       tableID,
		CustomerID:    customerID,
		Status:        enum.OrderStatusAwaitingPayment,
		PaymentMethod: req.PaymentMethod,
		Total:         decimalToNumeric(total),
		ExpiredAt:     pgtype.Timestamptz{Time: now.Add(paymentWindow), Valid: true},
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	var itemResults []OrderLineResult
	for _, line := range lines {
		line.params.OrderID = order.ID
		item, err := store.CreateOrderItem(ctx, line.params)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		var variantResults []database.OrderItemVariant
		for _, v := range line.variants {
			oiv, err := store.CreateOrderItemVariant(ctx, database.CreateOrderItemVariantParams{
				OrderItemID:     item.ID,
				VariantOptionID: v.ID,
				Name:            v.Name,
				PriceDelta:      v.PriceDelta,
			})
			if err != nil {
				return nil, fmt.Errorf("create order item variant: %w", err)
			}
			variantResults = append(variantResults, oiv)
		}
		itemResults = append(itemResults, OrderLineResult{Item: item, Variants: variantResults})
	}

	// TRANSFER orders get virtual-account instructions; the gateway
	// initiation is recorded on the audit log.
	var paymentInfo map[string]string
	if req.PaymentMethod == enum.PaymentMethodTransfer {
		paymentInfo = virtualAccountInfo(order)
		payload, _ := json.Marshal(map[string]interface{}{
			"event":   "initiated",
			"payment": paymentInfo,
		})
		if _, err := store.InsertOrderEvent(ctx, database.InsertOrderEventParams{
			OrderID:   order.ID,
			EventType: enum.EventTypeGateway,
			Payload:   payload,
		}); err != nil {
			return nil, fmt.Errorf("record payment initiation: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CreateOrderResult{
		Order:       order,
		Items:       itemResults,
		PaymentInfo: paymentInfo,
	}, nil
}

// resolveVariants loads the requested options and verifies each belongs to
// a group linked to the menu item. A single foreign option rejects the line.
func (s *OrderService) resolveVariants(ctx context.Context, store OrderStore, menuItemID uuid.UUID, optionIDs []string) ([]database.VariantOption, error) {
	if len(optionIDs) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(optionIDs))
	for i, raw := range optionIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, ErrInvalidVariantID
		}
		ids[i] = id
	}
	options, err := store.GetVariantOptionsForMenuItem(ctx, database.GetVariantOptionsForMenuItemParams{
		MenuItemID: menuItemID,
		OptionIDs:  ids,
	})
	if err != nil {
		return nil, fmt.Errorf("get variant options: %w", err)
	}
	if len(options) != len(ids) {
		return nil, ErrVariantMismatch
	}
	return options, nil
}

const refCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateRefCode builds the human-facing order reference:
// KNT-<yyyymmddhhmmss>-<4 random chars>. Uniqueness is enforced by the DB
// constraint with a retry in CreateOrder.
func generateRefCode(now time.Time) string {
	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = refCodeCharset[rand.IntN(len(refCodeCharset))]
	}
	return "KNT-" + now.Format("20060102150405") + "-" + string(suffix)
}

// virtualAccountInfo mimics the gateway's payment instructions for a
// TRANSFER order. The real gateway is an external collaborator; only the
// shape of its response matters here.
func virtualAccountInfo(order database.Order) map[string]string {
	ref := order.RefCode
	if len(ref) > 6 {
		ref = ref[len(ref)-6:]
	}
	return map[string]string{
		"method":    "VA",
		"va_number": "VA" + ref,
		"bank":      "EXAMPLEBANK",
	}
}

// --- Helpers ---

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
