package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kantin-app/api/internal/database"
	"github.com/kantin-app/api/internal/enum"
	"golang.org/x/crypto/bcrypt"
)

// UserStore defines the database methods needed by user management handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type UserStore interface {
	CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error)
	GetTenant(ctx context.Context, id uuid.UUID) (database.Tenant, error)
	AddTenantStaff(ctx context.Context, arg database.TenantStaffParams) error
	RemoveTenantStaff(ctx context.Context, arg database.TenantStaffParams) error
	ListStaffTenantIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	CountUsersByRole(ctx context.Context, role string) (int64, error)
}

// UserHandler handles user and staff-assignment endpoints (admin only).
type UserHandler struct {
	store UserStore
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(store UserStore) *UserHandler {
	return &UserHandler{store: store}
}

// RegisterAdminRoutes registers user management. The router guards these
// with RequireRole(ADMIN).
func (h *UserHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/users", h.Create)
	r.Get("/users/summary", h.Summary)
	r.Post("/tenants/{tid}/staff/{uid}", h.AddStaff)
	r.Delete("/tenants/{tid}/staff/{uid}", h.RemoveStaff)
}

// --- Request / Response types ---

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// --- Handlers ---

// Create handles POST /admin/users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Email == "" || req.Password == "" || req.FullName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email, password and full_name are required"})
		return
	}
	if !isValidRole(req.Role) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid role"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("ERROR: hash password: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	user, err := h.store.CreateUser(r.Context(), database.CreateUserParams{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
	})
	if err != nil {
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "email already registered"})
			return
		}
		log.Printf("ERROR: create user: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		ID:       user.ID,
		FullName: user.FullName,
		Email:    user.Email,
		Role:     user.Role,
	})
}

// Summary handles GET /admin/users/summary. Returns the user count per role.
func (h *UserHandler) Summary(w http.ResponseWriter, r *http.Request) {
	counts := map[string]int64{}
	for _, role := range []string{enum.UserRoleAdmin, enum.UserRoleCashier, enum.UserRoleSeller} {
		n, err := h.store.CountUsersByRole(r.Context(), role)
		if err != nil {
			log.Printf("ERROR: count users by role: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		counts[role] = n
	}
	writeJSON(w, http.StatusOK, counts)
}

// AddStaff handles POST /admin/tenants/{tid}/staff/{uid}.
func (h *UserHandler) AddStaff(w http.ResponseWriter, r *http.Request) {
	params, ok := parseStaffParams(w, r)
	if !ok {
		return
	}

	if _, err := h.store.GetTenant(r.Context(), params.TenantID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "tenant not found"})
			return
		}
		log.Printf("ERROR: get tenant for staff add: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if err := h.store.AddTenantStaff(r.Context(), params); err != nil {
		log.Printf("ERROR: add tenant staff: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	// Tokens issued before this change keep their old tenant set until the
	// next login or refresh.
	w.WriteHeader(http.StatusNoContent)
}

// RemoveStaff handles DELETE /admin/tenants/{tid}/staff/{uid}.
func (h *UserHandler) RemoveStaff(w http.ResponseWriter, r *http.Request) {
	params, ok := parseStaffParams(w, r)
	if !ok {
		return
	}

	if err := h.store.RemoveTenantStaff(r.Context(), params); err != nil {
		log.Printf("ERROR: remove tenant staff: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func parseStaffParams(w http.ResponseWriter, r *http.Request) (database.TenantStaffParams, bool) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant ID"})
		return database.TenantStaffParams{}, false
	}
	userID, err := uuid.Parse(chi.URLParam(r, "uid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user ID"})
		return database.TenantStaffParams{}, false
	}
	return database.TenantStaffParams{TenantID: tenantID, UserID: userID}, true
}

func isValidRole(role string) bool {
	switch role {
	case enum.UserRoleAdmin, enum.UserRoleCashier, enum.UserRoleSeller:
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
