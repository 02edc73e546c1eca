package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, uuid, ref_code, tenant_id, table_id, customer_id, status, payment_method, total, created_at, expired_at, paid_at`

const createOrder = `
INSERT INTO orders (uuid, ref_code, tenant_id, table_id, customer_id, status, payment_method, total, expired_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	UUID          uuid.UUID
	RefCode       string
	TenantID      uuid.UUID
	TableID       pgtype.UUID
	CustomerID    pgtype.UUID
	Status        string
	PaymentMethod string
	Total         pgtype.Numeric
	ExpiredAt     pgtype.Timestamptz
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.UUID, arg.RefCode, arg.TenantID, arg.TableID, arg.CustomerID,
		arg.Status, arg.PaymentMethod, arg.Total, arg.ExpiredAt)
	return scanOrder(row)
}

const createOrderItem = `
INSERT INTO order_items (order_id, menu_item_id, qty, price, note)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, order_id, menu_item_id, qty, price, note
`

type CreateOrderItemParams struct {
	OrderID    int64
	MenuItemID uuid.UUID
	Qty        int32
	Price      pgtype.Numeric
	Note       pgtype.Text
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID, arg.MenuItemID, arg.Qty, arg.Price, arg.Note)
	var it OrderItem
	err := row.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Qty, &it.Price, &it.Note)
	return it, err
}

const createOrderItemVariant = `
INSERT INTO order_item_variants (order_item_id, variant_option_id, name, price_delta)
VALUES ($1, $2, $3, $4)
RETURNING order_item_id, variant_option_id, name, price_delta
`

type CreateOrderItemVariantParams struct {
	OrderItemID     uuid.UUID
	VariantOptionID uuid.UUID
	Name            string
	PriceDelta      pgtype.Numeric
}

func (q *Queries) CreateOrderItemVariant(ctx context.Context, arg CreateOrderItemVariantParams) (OrderItemVariant, error) {
	row := q.db.QueryRow(ctx, createOrderItemVariant,
		arg.OrderItemID, arg.VariantOptionID, arg.Name, arg.PriceDelta)
	var v OrderItemVariant
	err := row.Scan(&v.OrderItemID, &v.VariantOptionID, &v.Name, &v.PriceDelta)
	return v, err
}

const getOrderByRef = `
SELECT ` + orderColumns + ` FROM orders WHERE ref_code = $1
`

func (q *Queries) GetOrderByRef(ctx context.Context, refCode string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByRef, refCode))
}

const getOrderByRefForUpdate = `
SELECT ` + orderColumns + ` FROM orders WHERE ref_code = $1 FOR UPDATE
`

// GetOrderByRefForUpdate locks the order row until the transaction ends,
// serializing payment confirmation, cancellation and status updates on the
// same order. Orders are locked one row at a time; operations on different
// orders never contend.
func (q *Queries) GetOrderByRefForUpdate(ctx context.Context, refCode string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByRefForUpdate, refCode))
}

const listOrderItemsByOrder = `
SELECT id, order_id, menu_item_id, qty, price, note
FROM order_items WHERE order_id = $1
ORDER BY id
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Qty, &it.Price, &it.Note); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

const listOrderItemVariantsByItem = `
SELECT order_item_id, variant_option_id, name, price_delta
FROM order_item_variants WHERE order_item_id = $1
ORDER BY variant_option_id
`

func (q *Queries) ListOrderItemVariantsByItem(ctx context.Context, orderItemID uuid.UUID) ([]OrderItemVariant, error) {
	rows, err := q.db.Query(ctx, listOrderItemVariantsByItem, orderItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []OrderItemVariant
	for rows.Next() {
		var v OrderItemVariant
		if err := rows.Scan(&v.OrderItemID, &v.VariantOptionID, &v.Name, &v.PriceDelta); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

const setOrderStatus = `
UPDATE orders SET status = $2 WHERE id = $1
RETURNING ` + orderColumns

type SetOrderStatusParams struct {
	ID     int64
	Status string
}

// SetOrderStatus writes the status unconditionally. Callers must hold the
// order's row lock and have validated the transition.
func (q *Queries) SetOrderStatus(ctx context.Context, arg SetOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, setOrderStatus, arg.ID, arg.Status))
}

const markOrderPaid = `
UPDATE orders SET status = 'PAID', paid_at = $2 WHERE id = $1
RETURNING ` + orderColumns

type MarkOrderPaidParams struct {
	ID     int64
	PaidAt time.Time
}

func (q *Queries) MarkOrderPaid(ctx context.Context, arg MarkOrderPaidParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, markOrderPaid, arg.ID, arg.PaidAt))
}

const listOrders = `
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::text = '' OR status = $1)
  AND ($2::text = '' OR payment_method = $2)
  AND (NOT $3::bool OR tenant_id = ANY($4))
ORDER BY created_at DESC
LIMIT $5 OFFSET $6
`

type ListOrdersParams struct {
	Status         string
	PaymentMethod  string
	FilterTenants  bool
	TenantIDs      []uuid.UUID
	Limit          int32
	Offset         int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders,
		arg.Status, arg.PaymentMethod, arg.FilterTenants, arg.TenantIDs, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UUID, &o.RefCode, &o.TenantID, &o.TableID, &o.CustomerID,
			&o.Status, &o.PaymentMethod, &o.Total, &o.CreatedAt, &o.ExpiredAt, &o.PaidAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrder(row interface{ Scan(...interface{}) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UUID, &o.RefCode, &o.TenantID, &o.TableID, &o.CustomerID,
		&o.Status, &o.PaymentMethod, &o.Total, &o.CreatedAt, &o.ExpiredAt, &o.PaidAt)
	return o, err
}
