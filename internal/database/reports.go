package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const getTodayOrderStats = `
SELECT
    count(*),
    count(*) FILTER (WHERE status = 'AWAITING_PAYMENT'),
    count(*) FILTER (WHERE status IN ('PAID', 'PROCESSING')),
    count(*) FILTER (WHERE status = 'COMPLETED')
FROM orders
WHERE created_at >= $1 AND created_at < $2
  AND (NOT $3::bool OR tenant_id = ANY($4))
`

type TodayOrderStatsParams struct {
	Start         time.Time
	End           time.Time
	FilterTenants bool
	TenantIDs     []uuid.UUID
}

type TodayOrderStatsRow struct {
	Total     int64
	Pending   int64
	Preparing int64
	Completed int64
}

func (q *Queries) GetTodayOrderStats(ctx context.Context, arg TodayOrderStatsParams) (TodayOrderStatsRow, error) {
	var r TodayOrderStatsRow
	err := q.db.QueryRow(ctx, getTodayOrderStats, arg.Start, arg.End, arg.FilterTenants, arg.TenantIDs).
		Scan(&r.Total, &r.Pending, &r.Preparing, &r.Completed)
	return r, err
}

const listTopSellingItems = `
SELECT mi.name, sum(oi.qty), sum(oi.price * oi.qty)
FROM order_items oi
JOIN menu_items mi ON mi.id = oi.menu_item_id
JOIN orders o ON o.id = oi.order_id
WHERE NOT $1::bool OR o.tenant_id = ANY($2)
GROUP BY mi.name
ORDER BY sum(oi.qty) DESC
LIMIT $3
`

type TopSellingItemsParams struct {
	FilterTenants bool
	TenantIDs     []uuid.UUID
	Limit         int32
}

type TopSellingItemRow struct {
	Name         string
	TotalSold    int64
	TotalRevenue pgtype.Numeric
}

func (q *Queries) ListTopSellingItems(ctx context.Context, arg TopSellingItemsParams) ([]TopSellingItemRow, error) {
	rows, err := q.db.Query(ctx, listTopSellingItems, arg.FilterTenants, arg.TenantIDs, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TopSellingItemRow
	for rows.Next() {
		var r TopSellingItemRow
		if err := rows.Scan(&r.Name, &r.TotalSold, &r.TotalRevenue); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

const listTenantPerformance = `
SELECT t.id, t.name,
       count(o.id) FILTER (WHERE o.created_at >= $1 AND o.created_at < $2),
       coalesce(sum(o.total) FILTER (WHERE o.status <> 'AWAITING_PAYMENT' AND o.status <> 'CANCELLED'
           AND o.status <> 'EXPIRED' AND o.created_at >= $1 AND o.created_at < $2), 0)
FROM tenants t
LEFT JOIN orders o ON o.tenant_id = t.id
WHERE NOT $3::bool OR t.id = ANY($4)
GROUP BY t.id, t.name
ORDER BY 4 DESC
`

type TenantPerformanceParams struct {
	Start         time.Time
	End           time.Time
	FilterTenants bool
	TenantIDs     []uuid.UUID
}

type TenantPerformanceRow struct {
	TenantID uuid.UUID
	Name     string
	Orders   int64
	Revenue  pgtype.Numeric
}

func (q *Queries) ListTenantPerformance(ctx context.Context, arg TenantPerformanceParams) ([]TenantPerformanceRow, error) {
	rows, err := q.db.Query(ctx, listTenantPerformance, arg.Start, arg.End, arg.FilterTenants, arg.TenantIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TenantPerformanceRow
	for rows.Next() {
		var r TenantPerformanceRow
		if err := rows.Scan(&r.TenantID, &r.Name, &r.Orders, &r.Revenue); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

const getFinanceSummary = `
SELECT
    coalesce(sum(total) FILTER (WHERE payment_method = 'CASH'), 0),
    coalesce(sum(total) FILTER (WHERE payment_method = 'TRANSFER'), 0),
    count(*)
FROM orders
WHERE status IN ('PAID', 'PROCESSING', 'READY', 'COMPLETED')
  AND created_at >= $1 AND created_at < $2
  AND ($3::uuid IS NULL OR tenant_id = $3)
`

type FinanceSummaryParams struct {
	Start    time.Time
	End      time.Time
	TenantID pgtype.UUID
}

type FinanceSummaryRow struct {
	CashRevenue     pgtype.Numeric
	TransferRevenue pgtype.Numeric
	Transactions    int64
}

func (q *Queries) GetFinanceSummary(ctx context.Context, arg FinanceSummaryParams) (FinanceSummaryRow, error) {
	var r FinanceSummaryRow
	err := q.db.QueryRow(ctx, getFinanceSummary, arg.Start, arg.End, arg.TenantID).
		Scan(&r.CashRevenue, &r.TransferRevenue, &r.Transactions)
	return r, err
}

const listFinanceTransactions = `
SELECT o.ref_code, o.created_at, t.name, o.payment_method, o.total
FROM orders o
JOIN tenants t ON t.id = o.tenant_id
WHERE o.status IN ('PAID', 'PROCESSING', 'READY', 'COMPLETED')
  AND o.created_at >= $1 AND o.created_at < $2
  AND ($3::uuid IS NULL OR o.tenant_id = $3)
ORDER BY o.created_at DESC
`

type FinanceTransactionRow struct {
	RefCode       string
	CreatedAt     time.Time
	TenantName    string
	PaymentMethod string
	Total         pgtype.Numeric
}

func (q *Queries) ListFinanceTransactions(ctx context.Context, arg FinanceSummaryParams) ([]FinanceTransactionRow, error) {
	rows, err := q.db.Query(ctx, listFinanceTransactions, arg.Start, arg.End, arg.TenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []FinanceTransactionRow
	for rows.Next() {
		var r FinanceTransactionRow
		if err := rows.Scan(&r.RefCode, &r.CreatedAt, &r.TenantName, &r.PaymentMethod, &r.Total); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
