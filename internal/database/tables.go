package database

import (
	"context"
)

const upsertTableByCode = `
INSERT INTO tables (code)
VALUES ($1)
ON CONFLICT (code) DO UPDATE SET code = EXCLUDED.code
RETURNING id, code, label
`

// UpsertTableByCode returns the table for a QR code, creating it on first
// use (tables are provisioned lazily from printed codes).
func (q *Queries) UpsertTableByCode(ctx context.Context, code string) (Table, error) {
	row := q.db.QueryRow(ctx, upsertTableByCode, code)
	var t Table
	err := row.Scan(&t.ID, &t.Code, &t.Label)
	return t, err
}
