package database

import (
	"context"
	"encoding/json"
)

const insertOrderEvent = `
INSERT INTO order_events (order_id, event_type, payload)
VALUES ($1, $2, $3)
RETURNING id, order_id, event_type, payload, created_at
`

type InsertOrderEventParams struct {
	OrderID   int64
	EventType string
	Payload   json.RawMessage
}

// InsertOrderEvent appends one row to the order's audit log. There is no
// update or delete counterpart; the log is append-only.
func (q *Queries) InsertOrderEvent(ctx context.Context, arg InsertOrderEventParams) (OrderEvent, error) {
	row := q.db.QueryRow(ctx, insertOrderEvent, arg.OrderID, arg.EventType, arg.Payload)
	var e OrderEvent
	err := row.Scan(&e.ID, &e.OrderID, &e.EventType, &e.Payload, &e.CreatedAt)
	return e, err
}

const listOrderEventsByOrder = `
SELECT id, order_id, event_type, payload, created_at
FROM order_events WHERE order_id = $1
ORDER BY id
`

func (q *Queries) ListOrderEventsByOrder(ctx context.Context, orderID int64) ([]OrderEvent, error) {
	rows, err := q.db.Query(ctx, listOrderEventsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []OrderEvent
	for rows.Next() {
		var e OrderEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
