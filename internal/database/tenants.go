package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createTenant = `
INSERT INTO tenants (name, description, active)
VALUES ($1, $2, $3)
RETURNING id, name, description, active, created_at
`

type CreateTenantParams struct {
	Name        string
	Description pgtype.Text
	Active      bool
}

func (q *Queries) CreateTenant(ctx context.Context, arg CreateTenantParams) (Tenant, error) {
	row := q.db.QueryRow(ctx, createTenant, arg.Name, arg.Description, arg.Active)
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Active, &t.CreatedAt)
	return t, err
}

const getTenant = `
SELECT id, name, description, active, created_at FROM tenants WHERE id = $1
`

func (q *Queries) GetTenant(ctx context.Context, id uuid.UUID) (Tenant, error) {
	row := q.db.QueryRow(ctx, getTenant, id)
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Active, &t.CreatedAt)
	return t, err
}

const listTenants = `
SELECT id, name, description, active, created_at
FROM tenants
WHERE active OR NOT $1::bool
ORDER BY name
`

// ListTenants returns active tenants when activeOnly is true, all otherwise.
func (q *Queries) ListTenants(ctx context.Context, activeOnly bool) ([]Tenant, error) {
	rows, err := q.db.Query(ctx, listTenants, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Active, &t.CreatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

const updateTenant = `
UPDATE tenants
SET name = $2, description = $3, active = $4
WHERE id = $1
RETURNING id, name, description, active, created_at
`

type UpdateTenantParams struct {
	ID          uuid.UUID
	Name        string
	Description pgtype.Text
	Active      bool
}

func (q *Queries) UpdateTenant(ctx context.Context, arg UpdateTenantParams) (Tenant, error) {
	row := q.db.QueryRow(ctx, updateTenant, arg.ID, arg.Name, arg.Description, arg.Active)
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Active, &t.CreatedAt)
	return t, err
}
