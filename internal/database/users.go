package database

import (
	"context"

	"github.com/google/uuid"
)

const createUser = `
INSERT INTO users (email, password_hash, full_name, role)
VALUES ($1, $2, $3, $4)
RETURNING id, email, password_hash, full_name, role, created_at
`

type CreateUserParams struct {
	Email        string
	PasswordHash string
	FullName     string
	Role         string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser, arg.Email, arg.PasswordHash, arg.FullName, arg.Role)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.CreatedAt)
	return u, err
}

const getUserByEmail = `
SELECT id, email, password_hash, full_name, role, created_at
FROM users WHERE email = $1
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByEmail, email)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.CreatedAt)
	return u, err
}

const getUserByID = `
SELECT id, email, password_hash, full_name, role, created_at
FROM users WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, getUserByID, id)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.CreatedAt)
	return u, err
}

const listStaffTenantIDs = `
SELECT tenant_id FROM tenant_staff WHERE user_id = $1 ORDER BY tenant_id
`

// ListStaffTenantIDs returns the tenants the user staffs, for embedding in
// the JWT claims at login.
func (q *Queries) ListStaffTenantIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, listStaffTenantIDs, userID)
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

const addTenantStaff = `
INSERT INTO tenant_staff (tenant_id, user_id)
VALUES ($1, $2)
ON CONFLICT (tenant_id, user_id) DO NOTHING
`

type TenantStaffParams struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

func (q *Queries) AddTenantStaff(ctx context.Context, arg TenantStaffParams) error {
	_, err := q.db.Exec(ctx, addTenantStaff, arg.TenantID, arg.UserID)
	return err
}

const removeTenantStaff = `
DELETE FROM tenant_staff WHERE tenant_id = $1 AND user_id = $2
`

func (q *Queries) RemoveTenantStaff(ctx context.Context, arg TenantStaffParams) error {
	_, err := q.db.Exec(ctx, removeTenantStaff, arg.TenantID, arg.UserID)
	return err
}

const countUsersByRole = `
SELECT count(*) FROM users WHERE role = $1
`

func (q *Queries) CountUsersByRole(ctx context.Context, role string) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countUsersByRole, role).Scan(&n)
	return n, err
}
