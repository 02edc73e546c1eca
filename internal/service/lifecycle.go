package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/kantin-app/api/internal/auth"
	"github.com/kantin-app/api/internal/database"
	"github.com/kantin-app/api/internal/enum"
)

// ErrForbidden is returned when the actor is not allowed to operate on the
// order's tenant.
var ErrForbidden = errors.New("not allowed for this tenant")

// allowedTransitions is the fulfillment chain for staff status updates.
// Payment, cancellation and expiry have their own entry points and are not
// reachable through here.
var allowedTransitions = map[string]string{
	enum.OrderStatusPaid:       enum.OrderStatusProcessing,
	enum.OrderStatusProcessing: enum.OrderStatusReady,
	enum.OrderStatusReady:      enum.OrderStatusCompleted,
}

// OrderDetail is an order with its lines and audit trail.
type OrderDetail struct {
	Order  database.Order
	Items  []OrderLineResult
	Events []database.OrderEvent
}

// GetOrder loads an order by reference code. If the payment window has
// lapsed while the order still awaits payment, it is flipped to EXPIRED
// before being returned; reads are the expiry trigger, there is no
// background sweeper.
func (s *OrderService) GetOrder(ctx context.Context, refCode string) (*OrderDetail, error) {
	store := s.newStore(s.pool)
	order, err := store.GetOrderByRef(ctx, refCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if s.isLapsed(order) {
		order, err = s.expireOrder(ctx, refCode)
		if err != nil {
			return nil, err
		}
	}

	items, err := s.loadLines(ctx, store, order.ID)
	if err != nil {
		return nil, err
	}
	events, err := store.ListOrderEventsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order events: %w", err)
	}
	return &OrderDetail{Order: order, Items: items, Events: events}, nil
}

// ConfirmCashPayment marks a CASH order as paid on behalf of a cashier.
// The status is checked twice: once optimistically, then again under the
// order's row lock, so two cashiers confirming the same order cannot both
// succeed.
func (s *OrderService) ConfirmCashPayment(ctx context.Context, refCode string, cashier auth.Claims) (database.Order, error) {
	store := s.newStore(s.pool)
	order, err := store.GetOrderByRef(ctx, refCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	if err := s.checkCashConfirmable(order); err != nil {
		if errors.Is(err, ErrOrderExpired) {
			if _, expErr := s.expireOrder(ctx, refCode); expErr != nil {
				return database.Order{}, expErr
			}
		}
		return database.Order{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	txStore := s.newStore(tx)
	order, err = txStore.GetOrderByRefForUpdate(ctx, refCode)
	if err != nil {
		return database.Order{}, fmt.Errorf("lock order: %w", err)
	}
	// Re-check under the lock: another request may have won the race
	// between the optimistic read and lock acquisition. A lapse discovered
	// only now still flips the order to EXPIRED before rejecting.
	if err := s.checkCashConfirmable(order); err != nil {
		if errors.Is(err, ErrOrderExpired) && order.Status == enum.OrderStatusAwaitingPayment {
			expired, setErr := txStore.SetOrderStatus(ctx, database.SetOrderStatusParams{
				ID:     order.ID,
				Status: enum.OrderStatusExpired,
			})
			if setErr != nil {
				return database.Order{}, fmt.Errorf("set status: %w", setErr)
			}
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return database.Order{}, fmt.Errorf("commit tx: %w", commitErr)
			}
			s.notify("order.expired", expired)
		}
		return database.Order{}, err
	}

	now := s.now()
	order, err = txStore.MarkOrderPaid(ctx, database.MarkOrderPaidParams{ID: order.ID, PaidAt: now})
	if err != nil {
		return database.Order{}, fmt.Errorf("mark paid: %w", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"method":       enum.PaymentMethodCash,
		"confirmed_by": cashier.UserID,
		"paid_at":      now,
	})
	if _, err := txStore.InsertOrderEvent(ctx, database.InsertOrderEventParams{
		OrderID:   order.ID,
		EventType: enum.EventTypePayment,
		Payload:   payload,
	}); err != nil {
		return database.Order{}, fmt.Errorf("record payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}
	s.notify("order.paid", order)
	return order, nil
}

// checkCashConfirmable validates that an order can accept a cash payment
// right now. The status is checked before the payment method: an already
// settled order is "already paid" no matter how it was paid.
func (s *OrderService) checkCashConfirmable(order database.Order) error {
	switch order.Status {
	case enum.OrderStatusPaid, enum.OrderStatusProcessing, enum.OrderStatusReady, enum.OrderStatusCompleted:
		return ErrAlreadyPaid
	case enum.OrderStatusExpired:
		return ErrOrderExpired
	case enum.OrderStatusAwaitingPayment:
		if order.PaymentMethod != enum.PaymentMethodCash {
			return ErrNotCashOrder
		}
		if s.isLapsed(order) {
			return ErrOrderExpired
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrTransitionNotAllowed, order.Status)
	}
}

// GatewayOutcome describes what a gateway notification did to the order.
type GatewayOutcome string

const (
	OutcomePaid      GatewayOutcome = "paid"
	OutcomeCancelled GatewayOutcome = "cancelled"
	OutcomeRecorded  GatewayOutcome = "recorded"
)

// ApplyGatewayNotification processes a payment gateway webhook for a
// TRANSFER order. Recognized settlement statuses mark the order paid,
// recognized failure statuses cancel it with restock, and anything else
// (including notifications for orders in a non-payable state) is recorded
// on the audit log without touching the order.
func (s *OrderService) ApplyGatewayNotification(ctx context.Context, refCode, transactionStatus string, payload json.RawMessage) (database.Order, GatewayOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	order, err := store.GetOrderByRefForUpdate(ctx, refCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, "", ErrOrderNotFound
		}
		return database.Order{}, "", fmt.Errorf("lock order: %w", err)
	}

	outcome := OutcomeRecorded
	switch transactionStatus {
	case "settlement", "paid", "success":
		if order.PaymentMethod == enum.PaymentMethodTransfer &&
			order.Status == enum.OrderStatusAwaitingPayment && !s.isLapsed(order) {
			order, err = store.MarkOrderPaid(ctx, database.MarkOrderPaidParams{ID: order.ID, PaidAt: s.now()})
			if err != nil {
				return database.Order{}, "", fmt.Errorf("mark paid: %w", err)
			}
			outcome = OutcomePaid
		}
	case "expire", "expired", "cancel":
		if order.Status == enum.OrderStatusAwaitingPayment || order.Status == enum.OrderStatusExpired {
			order, err = s.cancelLocked(ctx, store, order)
			if err != nil {
				return database.Order{}, "", err
			}
			outcome = OutcomeCancelled
		}
	}

	if _, err := store.InsertOrderEvent(ctx, database.InsertOrderEventParams{
		OrderID:   order.ID,
		EventType: enum.EventTypeGateway,
		Payload:   payload,
	}); err != nil {
		return database.Order{}, "", fmt.Errorf("record notification: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, "", fmt.Errorf("commit tx: %w", err)
	}

	switch outcome {
	case OutcomePaid:
		s.notify("order.paid", order)
	case OutcomeCancelled:
		s.notify("order.cancelled", order)
	}
	return order, outcome, nil
}

// CancelOrder cancels an unpaid (or already expired) order and returns its
// reserved stock to the menu items. Paid and in-progress orders cannot be
// cancelled through this path.
func (s *OrderService) CancelOrder(ctx context.Context, refCode string) (database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	order, err := store.GetOrderByRefForUpdate(ctx, refCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("lock order: %w", err)
	}
	if order.Status != enum.OrderStatusAwaitingPayment && order.Status != enum.OrderStatusExpired {
		return database.Order{}, ErrNotCancellable
	}

	order, err = s.cancelLocked(ctx, store, order)
	if err != nil {
		return database.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}
	s.notify("order.cancelled", order)
	return order, nil
}

// cancelLocked restocks every line and marks the order CANCELLED. The
// caller holds the order's row lock. The order row itself is kept: the
// reference code stays resolvable and the audit trail stays attached.
func (s *OrderService) cancelLocked(ctx context.Context, store OrderStore, order database.Order) (database.Order, error) {
	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return database.Order{}, fmt.Errorf("list order items: %w", err)
	}
	// Restock in ascending menu item id order, the same sequence the
	// reservation path locks rows in, so overlapping cancels and creates
	// cannot deadlock.
	sort.Slice(items, func(i, j int) bool {
		return bytes.Compare(items[i].MenuItemID[:], items[j].MenuItemID[:]) < 0
	})
	for _, it := range items {
		if err := store.AdjustMenuItemStock(ctx, database.AdjustMenuItemStockParams{
			ID:    it.MenuItemID,
			Delta: it.Qty,
		}); err != nil {
			return database.Order{}, fmt.Errorf("restock: %w", err)
		}
	}
	order, err = store.SetOrderStatus(ctx, database.SetOrderStatusParams{
		ID:     order.ID,
		Status: enum.OrderStatusCancelled,
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("set status: %w", err)
	}
	return order, nil
}

// UpdateStatus advances an order along the fulfillment chain
// (PAID -> PROCESSING -> READY -> COMPLETED). Admins may update any order;
// other staff only orders of tenants they belong to.
func (s *OrderService) UpdateStatus(ctx context.Context, refCode, status string, actor auth.Claims) (database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	order, err := store.GetOrderByRefForUpdate(ctx, refCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("lock order: %w", err)
	}
	if !actor.IsAdmin() && !actor.StaffOf(order.TenantID) {
		return database.Order{}, ErrForbidden
	}
	if allowedTransitions[order.Status] != status {
		return database.Order{}, fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, order.Status, status)
	}

	order, err = store.SetOrderStatus(ctx, database.SetOrderStatusParams{ID: order.ID, Status: status})
	if err != nil {
		return database.Order{}, fmt.Errorf("set status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}
	s.notify("order.status_updated", order)
	return order, nil
}

// expireOrder flips an overdue order to EXPIRED under its row lock. The
// lapse is re-checked once locked; a payment that landed in between wins.
func (s *OrderService) expireOrder(ctx context.Context, refCode string) (database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	order, err := store.GetOrderByRefForUpdate(ctx, refCode)
	if err != nil {
		return database.Order{}, fmt.Errorf("lock order: %w", err)
	}
	if !s.isLapsed(order) {
		if err := tx.Commit(ctx); err != nil {
			return database.Order{}, fmt.Errorf("commit tx: %w", err)
		}
		return order, nil
	}
	order, err = store.SetOrderStatus(ctx, database.SetOrderStatusParams{
		ID:     order.ID,
		Status: enum.OrderStatusExpired,
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("set status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}
	s.notify("order.expired", order)
	return order, nil
}

// isLapsed reports whether an AWAITING_PAYMENT order's payment window has
// passed.
func (s *OrderService) isLapsed(order database.Order) bool {
	return order.Status == enum.OrderStatusAwaitingPayment &&
		order.ExpiredAt.Valid && s.now().After(order.ExpiredAt.Time)
}

// loadLines loads an order's items with their variant snapshots.
func (s *OrderService) loadLines(ctx context.Context, store OrderStore, orderID int64) ([]OrderLineResult, error) {
	items, err := store.ListOrderItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	result := make([]OrderLineResult, 0, len(items))
	for _, it := range items {
		variants, err := store.ListOrderItemVariantsByItem(ctx, it.ID)
		if err != nil {
			return nil, fmt.Errorf("list item variants: %w", err)
		}
		result = append(result, OrderLineResult{Item: it, Variants: variants})
	}
	return result, nil
}

func (s *OrderService) notify(event string, order database.Order) {
	if s.notifier != nil {
		s.notifier.OrderUpdated(order.TenantID, event, order)
	}
}
