package enum

// ── Order lifecycle (CHECK constrained in DB) ──

const (
	OrderStatusAwaitingPayment = "AWAITING_PAYMENT"
	OrderStatusPaid            = "PAID"
	OrderStatusProcessing      = "PROCESSING"
	OrderStatusReady           = "READY"
	OrderStatusCompleted       = "COMPLETED"
	OrderStatusCancelled       = "CANCELLED"
	OrderStatusExpired         = "EXPIRED"
)

const (
	PaymentMethodCash     = "CASH"
	PaymentMethodTransfer = "TRANSFER"
)

// ── Audit log event types (CHECK constrained in DB) ──

const (
	EventTypePayment = "PAYMENT"
	EventTypeGateway = "GATEWAY"
)

// ── Roles (CHECK constrained in DB) ──

const (
	UserRoleAdmin   = "ADMIN"
	UserRoleCashier = "CASHIER"
	UserRoleSeller  = "SELLER"
)
