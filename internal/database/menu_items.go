package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createMenuItem = `
INSERT INTO menu_items (tenant_id, name, price, available, stock, description)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, tenant_id, name, price, available, stock, description, created_at
`

type CreateMenuItemParams struct {
	TenantID    uuid.UUID
	Name        string
	Price       pgtype.Numeric
	Available   bool
	Stock       int32
	Description pgtype.Text
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, createMenuItem,
		arg.TenantID, arg.Name, arg.Price, arg.Available, arg.Stock, arg.Description)
	return scanMenuItem(row)
}

const getMenuItem = `
SELECT id, tenant_id, name, price, available, stock, description, created_at
FROM menu_items WHERE id = $1
`

func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, getMenuItem, id))
}

const listMenuItemsByTenant = `
SELECT id, tenant_id, name, price, available, stock, description, created_at
FROM menu_items WHERE tenant_id = $1
ORDER BY name
`

func (q *Queries) ListMenuItemsByTenant(ctx context.Context, tenantID uuid.UUID) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listMenuItemsByTenant, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMenuItems(rows)
}

const updateMenuItem = `
UPDATE menu_items
SET name = $2, price = $3, available = $4, stock = $5, description = $6
WHERE id = $1
RETURNING id, tenant_id, name, price, available, stock, description, created_at
`

type UpdateMenuItemParams struct {
	ID          uuid.UUID
	Name        string
	Price       pgtype.Numeric
	Available   bool
	Stock       int32
	Description pgtype.Text
}

func (q *Queries) UpdateMenuItem(ctx context.Context, arg UpdateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, updateMenuItem,
		arg.ID, arg.Name, arg.Price, arg.Available, arg.Stock, arg.Description)
	return scanMenuItem(row)
}

const getMenuItemsForUpdate = `
SELECT id, tenant_id, name, price, available, stock, description, created_at
FROM menu_items
WHERE id = ANY($1) AND tenant_id = $2
ORDER BY id
FOR UPDATE
`

type GetMenuItemsForUpdateParams struct {
	IDs      []uuid.UUID
	TenantID uuid.UUID
}

// GetMenuItemsForUpdate acquires exclusive row locks on exactly the
// referenced items. Rows are locked in ascending id order so two
// transactions touching overlapping item sets never deadlock.
func (q *Queries) GetMenuItemsForUpdate(ctx context.Context, arg GetMenuItemsForUpdateParams) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, getMenuItemsForUpdate, arg.IDs, arg.TenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMenuItems(rows)
}

const adjustMenuItemStock = `
UPDATE menu_items SET stock = stock + $2 WHERE id = $1
`

type AdjustMenuItemStockParams struct {
	ID    uuid.UUID
	Delta int32
}

// AdjustMenuItemStock adds delta (negative to reserve, positive to restock)
// to an item's stock. Callers must hold the row lock; the stock >= 0 CHECK
// is the last line of defense, not the concurrency mechanism.
func (q *Queries) AdjustMenuItemStock(ctx context.Context, arg AdjustMenuItemStockParams) error {
	_, err := q.db.Exec(ctx, adjustMenuItemStock, arg.ID, arg.Delta)
	return err
}

const listPopularMenuItems = `
SELECT mi.id, mi.tenant_id, mi.name, mi.price, mi.available, mi.stock, mi.description, mi.created_at
FROM menu_items mi
JOIN (
    SELECT menu_item_id, sum(qty) AS total_sold
    FROM order_items
    GROUP BY menu_item_id
    ORDER BY total_sold DESC
    LIMIT $1
) top ON top.menu_item_id = mi.id
JOIN tenants t ON t.id = mi.tenant_id
WHERE mi.available AND t.active
ORDER BY top.total_sold DESC
`

func (q *Queries) ListPopularMenuItems(ctx context.Context, limit int32) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listPopularMenuItems, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMenuItems(rows)
}

func scanMenuItem(row interface{ Scan(...interface{}) error }) (MenuItem, error) {
	var m MenuItem
	err := row.Scan(&m.ID, &m.TenantID, &m.Name, &m.Price, &m.Available, &m.Stock, &m.Description, &m.CreatedAt)
	return m, err
}

func scanMenuItems(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]MenuItem, error) {
	var items []MenuItem
	for rows.Next() {
		var m MenuItem
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Name, &m.Price, &m.Available, &m.Stock, &m.Description, &m.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
