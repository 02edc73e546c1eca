package database

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	FullName     string
	Role         string
	CreatedAt    time.Time
}

type Tenant struct {
	ID          uuid.UUID
	Name        string
	Description pgtype.Text
	Active      bool
	CreatedAt   time.Time
}

type Table struct {
	ID    uuid.UUID
	Code  string
	Label pgtype.Text
}

type Customer struct {
	ID        uuid.UUID
	Phone     string
	Name      pgtype.Text
	CreatedAt time.Time
}

type MenuItem struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Name        string
	Price       pgtype.Numeric
	Available   bool
	Stock       int32
	Description pgtype.Text
	CreatedAt   time.Time
}

type VariantGroup struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
}

type VariantOption struct {
	ID         uuid.UUID
	GroupID    uuid.UUID
	Name       string
	PriceDelta pgtype.Numeric
}

// Order's bigserial ID never leaves this package's callers; the UUID and
// reference code are the external identities.
type Order struct {
	ID            int64
	UUID          uuid.UUID
	RefCode       string
	TenantID      uuid.UUID
	TableID       pgtype.UUID
	CustomerID    pgtype.UUID
	Status        string
	PaymentMethod string
	Total         pgtype.Numeric
	CreatedAt     time.Time
	ExpiredAt     pgtype.Timestamptz
	PaidAt        pgtype.Timestamptz
}

type OrderItem struct {
	ID         uuid.UUID
	OrderID    int64
	MenuItemID uuid.UUID
	Qty        int32
	Price      pgtype.Numeric
	Note       pgtype.Text
}

type OrderItemVariant struct {
	OrderItemID     uuid.UUID
	VariantOptionID uuid.UUID
	Name            string
	PriceDelta      pgtype.Numeric
}

// OrderEvent is one row of the append-only audit log. Rows are only ever
// inserted, never updated or deleted.
type OrderEvent struct {
	ID        int64
	OrderID   int64
	EventType string
	Payload   json.RawMessage
	CreatedAt time.Time
}
