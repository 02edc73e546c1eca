package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createVariantGroup = `
INSERT INTO variant_groups (tenant_id, name)
VALUES ($1, $2)
RETURNING id, tenant_id, name
`

type CreateVariantGroupParams struct {
	TenantID uuid.UUID
	Name     string
}

func (q *Queries) CreateVariantGroup(ctx context.Context, arg CreateVariantGroupParams) (VariantGroup, error) {
	row := q.db.QueryRow(ctx, createVariantGroup, arg.TenantID, arg.Name)
	var g VariantGroup
	err := row.Scan(&g.ID, &g.TenantID, &g.Name)
	return g, err
}

const getVariantGroup = `
SELECT id, tenant_id, name FROM variant_groups WHERE id = $1
`

func (q *Queries) GetVariantGroup(ctx context.Context, id uuid.UUID) (VariantGroup, error) {
	var g VariantGroup
	err := q.db.QueryRow(ctx, getVariantGroup, id).Scan(&g.ID, &g.TenantID, &g.Name)
	return g, err
}

const listVariantGroupsByTenant = `
SELECT id, tenant_id, name FROM variant_groups WHERE tenant_id = $1 ORDER BY name
`

func (q *Queries) ListVariantGroupsByTenant(ctx context.Context, tenantID uuid.UUID) ([]VariantGroup, error) {
	rows, err := q.db.Query(ctx, listVariantGroupsByTenant, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []VariantGroup
	for rows.Next() {
		var g VariantGroup
		if err := rows.Scan(&g.ID, &g.TenantID, &g.Name); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

const createVariantOption = `
INSERT INTO variant_options (group_id, name, price_delta)
VALUES ($1, $2, $3)
RETURNING id, group_id, name, price_delta
`

type CreateVariantOptionParams struct {
	GroupID    uuid.UUID
	Name       string
	PriceDelta pgtype.Numeric
}

func (q *Queries) CreateVariantOption(ctx context.Context, arg CreateVariantOptionParams) (VariantOption, error) {
	row := q.db.QueryRow(ctx, createVariantOption, arg.GroupID, arg.Name, arg.PriceDelta)
	var o VariantOption
	err := row.Scan(&o.ID, &o.GroupID, &o.Name, &o.PriceDelta)
	return o, err
}

const listVariantOptionsByGroup = `
SELECT id, group_id, name, price_delta FROM variant_options WHERE group_id = $1 ORDER BY name
`

func (q *Queries) ListVariantOptionsByGroup(ctx context.Context, groupID uuid.UUID) ([]VariantOption, error) {
	rows, err := q.db.Query(ctx, listVariantOptionsByGroup, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVariantOptions(rows)
}

const linkMenuItemVariantGroup = `
INSERT INTO menu_item_variant_groups (menu_item_id, group_id)
VALUES ($1, $2)
ON CONFLICT (menu_item_id, group_id) DO NOTHING
`

type LinkMenuItemVariantGroupParams struct {
	MenuItemID uuid.UUID
	GroupID    uuid.UUID
}

func (q *Queries) LinkMenuItemVariantGroup(ctx context.Context, arg LinkMenuItemVariantGroupParams) error {
	_, err := q.db.Exec(ctx, linkMenuItemVariantGroup, arg.MenuItemID, arg.GroupID)
	return err
}

const listVariantGroupIDsByMenuItem = `
SELECT group_id FROM menu_item_variant_groups WHERE menu_item_id = $1 ORDER BY group_id
`

func (q *Queries) ListVariantGroupIDsByMenuItem(ctx context.Context, menuItemID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, listVariantGroupIDsByMenuItem, menuItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const getVariantOptionsForMenuItem = `
SELECT vo.id, vo.group_id, vo.name, vo.price_delta
FROM variant_options vo
JOIN menu_item_variant_groups mg ON mg.group_id = vo.group_id
WHERE mg.menu_item_id = $1 AND vo.id = ANY($2)
ORDER BY vo.id
`

type GetVariantOptionsForMenuItemParams struct {
	MenuItemID uuid.UUID
	OptionIDs  []uuid.UUID
}

// GetVariantOptionsForMenuItem returns only those requested options whose
// group is linked to the menu item. A shorter result than the request means
// at least one option is foreign to the item.
func (q *Queries) GetVariantOptionsForMenuItem(ctx context.Context, arg GetVariantOptionsForMenuItemParams) ([]VariantOption, error) {
	rows, err := q.db.Query(ctx, getVariantOptionsForMenuItem, arg.MenuItemID, arg.OptionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVariantOptions(rows)
}

func scanVariantOptions(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]VariantOption, error) {
	var options []VariantOption
	for rows.Next() {
		var o VariantOption
		if err := rows.Scan(&o.ID, &o.GroupID, &o.Name, &o.PriceDelta); err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, rows.Err()
}
