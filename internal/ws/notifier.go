package ws

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/kantin-app/api/internal/database"
)

// OrderNotifier adapts the hub to the order service's notification hook.
// Broadcasts fire after the transaction has committed; a slow or absent
// display never blocks an order.
type OrderNotifier struct {
	hub *Hub
}

// NewOrderNotifier creates an OrderNotifier on the given hub.
func NewOrderNotifier(hub *Hub) *OrderNotifier {
	return &OrderNotifier{hub: hub}
}

type orderEventPayload struct {
	RefCode string `json:"ref_code"`
	Status  string `json:"status"`
}

// OrderUpdated broadcasts the order's new state to its tenant's room.
func (n *OrderNotifier) OrderUpdated(tenantID uuid.UUID, event string, order database.Order) {
	payload, err := json.Marshal(orderEventPayload{
		RefCode: order.RefCode,
		Status:  order.Status,
	})
	if err != nil {
		return
	}
	n.hub.BroadcastToTenant(tenantID, Event{Type: event, Payload: payload})
}
