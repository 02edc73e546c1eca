package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kantin-app/api/internal/database"
	"github.com/kantin-app/api/internal/middleware"
)

// ReportStore defines the database methods needed by report handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ReportStore interface {
	GetTodayOrderStats(ctx context.Context, arg database.TodayOrderStatsParams) (database.TodayOrderStatsRow, error)
	ListTopSellingItems(ctx context.Context, arg database.TopSellingItemsParams) ([]database.TopSellingItemRow, error)
	ListTenantPerformance(ctx context.Context, arg database.TenantPerformanceParams) ([]database.TenantPerformanceRow, error)
	GetFinanceSummary(ctx context.Context, arg database.FinanceSummaryParams) (database.FinanceSummaryRow, error)
	ListFinanceTransactions(ctx context.Context, arg database.FinanceSummaryParams) ([]database.FinanceTransactionRow, error)
}

// ReportHandler handles dashboard and finance report endpoints.
type ReportHandler struct {
	store ReportStore
	now   func() time.Time
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(store ReportStore) *ReportHandler {
	return &ReportHandler{store: store, now: time.Now}
}

// RegisterStaffRoutes registers the dashboard endpoints. Non-admin staff
// see only their own tenants' numbers.
func (h *ReportHandler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/reports/today", h.Today)
	r.Get("/reports/top-items", h.TopItems)
	r.Get("/reports/tenants", h.TenantPerformance)
	r.Get("/reports/finance", h.Finance)
	r.Get("/reports/finance/transactions", h.FinanceTransactions)
}

// --- Response types ---

type todayStatsResponse struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Preparing int64 `json:"preparing"`
	Completed int64 `json:"completed"`
}

type topItemResponse struct {
	Name         string `json:"name"`
	TotalSold    int64  `json:"total_sold"`
	TotalRevenue string `json:"total_revenue"`
}

type tenantPerformanceResponse struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Name     string    `json:"name"`
	Orders   int64     `json:"orders"`
	Revenue  string    `json:"revenue"`
}

type financeSummaryResponse struct {
	CashRevenue     string `json:"cash_revenue"`
	TransferRevenue string `json:"transfer_revenue"`
	Transactions    int64  `json:"transactions"`
}

type financeTransactionResponse struct {
	RefCode       string    `json:"ref_code"`
	CreatedAt     time.Time `json:"created_at"`
	TenantName    string    `json:"tenant_name"`
	PaymentMethod string    `json:"payment_method"`
	Total         string    `json:"total"`
}

// --- Handlers ---

// Today handles GET /reports/today.
func (h *ReportHandler) Today(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	start, end, ok := h.dayRange(w, r)
	if !ok {
		return
	}
	params := database.TodayOrderStatsParams{Start: start, End: end}
	if !claims.IsAdmin() && !claims.IsCashier() {
		params.FilterTenants = true
		params.TenantIDs = claims.TenantIDs
	}

	stats, err := h.store.GetTodayOrderStats(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: today order stats: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, todayStatsResponse{
		Total:     stats.Total,
		Pending:   stats.Pending,
		Preparing: stats.Preparing,
		Completed: stats.Completed,
	})
}

// TopItems handles GET /reports/top-items.
func (h *ReportHandler) TopItems(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	limit := 5
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 && v <= 50 {
			limit = v
		}
	}
	params := database.TopSellingItemsParams{Limit: int32(limit)}
	if !claims.IsAdmin() && !claims.IsCashier() {
		params.FilterTenants = true
		params.TenantIDs = claims.TenantIDs
	}

	rows, err := h.store.ListTopSellingItems(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: top selling items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]topItemResponse, len(rows))
	for i, row := range rows {
		resp[i] = topItemResponse{
			Name:         row.Name,
			TotalSold:    row.TotalSold,
			TotalRevenue: numericToString(row.TotalRevenue),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// TenantPerformance handles GET /reports/tenants.
func (h *ReportHandler) TenantPerformance(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	start, end, ok := h.dayRange(w, r)
	if !ok {
		return
	}
	params := database.TenantPerformanceParams{Start: start, End: end}
	if !claims.IsAdmin() && !claims.IsCashier() {
		params.FilterTenants = true
		params.TenantIDs = claims.TenantIDs
	}

	rows, err := h.store.ListTenantPerformance(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: tenant performance: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]tenantPerformanceResponse, len(rows))
	for i, row := range rows {
		resp[i] = tenantPerformanceResponse{
			TenantID: row.TenantID,
			Name:     row.Name,
			Orders:   row.Orders,
			Revenue:  numericToString(row.Revenue),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Finance handles GET /reports/finance.
func (h *ReportHandler) Finance(w http.ResponseWriter, r *http.Request) {
	params, ok := h.financeParams(w, r)
	if !ok {
		return
	}

	summary, err := h.store.GetFinanceSummary(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: finance summary: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, financeSummaryResponse{
		CashRevenue:     numericToString(summary.CashRevenue),
		TransferRevenue: numericToString(summary.TransferRevenue),
		Transactions:    summary.Transactions,
	})
}

// FinanceTransactions handles GET /reports/finance/transactions.
func (h *ReportHandler) FinanceTransactions(w http.ResponseWriter, r *http.Request) {
	params, ok := h.financeParams(w, r)
	if !ok {
		return
	}

	rows, err := h.store.ListFinanceTransactions(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: finance transactions: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]financeTransactionResponse, len(rows))
	for i, row := range rows {
		resp[i] = financeTransactionResponse{
			RefCode:       row.RefCode,
			CreatedAt:     row.CreatedAt,
			TenantName:    row.TenantName,
			PaymentMethod: row.PaymentMethod,
			Total:         numericToString(row.Total),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

// dayRange resolves the ?date=YYYY-MM-DD parameter (default: today) into a
// [start, end) window.
func (h *ReportHandler) dayRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	day := h.now()
	if s := r.URL.Query().Get("date"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date format, use YYYY-MM-DD"})
			return time.Time{}, time.Time{}, false
		}
		day = parsed
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.Add(24 * time.Hour), true
}

// financeParams builds the finance query window and tenant scope. Non-admin
// staff must name one of their own tenants.
func (h *ReportHandler) financeParams(w http.ResponseWriter, r *http.Request) (database.FinanceSummaryParams, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return database.FinanceSummaryParams{}, false
	}

	start, end, ok := h.dayRange(w, r)
	if !ok {
		return database.FinanceSummaryParams{}, false
	}
	params := database.FinanceSummaryParams{Start: start, End: end}

	raw := r.URL.Query().Get("tenant_id")
	if raw != "" {
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant_id"})
			return database.FinanceSummaryParams{}, false
		}
		if !claims.StaffOf(tenantID) && !claims.IsCashier() {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied for this tenant"})
			return database.FinanceSummaryParams{}, false
		}
		params.TenantID = pgtype.UUID{Bytes: tenantID, Valid: true}
		return params, true
	}

	// No tenant filter: full-court numbers are for admins and cashiers.
	if !claims.IsAdmin() && !claims.IsCashier() {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "tenant_id is required"})
		return database.FinanceSummaryParams{}, false
	}
	return params, true
}
