package database

import (
	"context"
)

const upsertCustomerByPhone = `
INSERT INTO customers (phone)
VALUES ($1)
ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
RETURNING id, phone, name, created_at
`

// UpsertCustomerByPhone returns the customer for a phone number, creating a
// record on first order.
func (q *Queries) UpsertCustomerByPhone(ctx context.Context, phone string) (Customer, error) {
	row := q.db.QueryRow(ctx, upsertCustomerByPhone, phone)
	var c Customer
	err := row.Scan(&c.ID, &c.Phone, &c.Name, &c.CreatedAt)
	return c, err
}
