package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kantin-app/api/internal/config"
	"github.com/kantin-app/api/internal/database"
	"github.com/kantin-app/api/internal/enum"
	"github.com/kantin-app/api/internal/handler"
	mw "github.com/kantin-app/api/internal/middleware"
	"github.com/kantin-app/api/internal/service"
	"github.com/kantin-app/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Customer-facing endpoints are public (ordering happens from a QR scan,
// no account); staff endpoints sit behind JWT authentication.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	newOrderStore := func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}
	orderService := service.NewOrderService(pool, newOrderStore, ws.NewOrderNotifier(hub))

	orderHandler := handler.NewOrderHandler(orderService, queries)
	paymentHandler := handler.NewPaymentHandler(orderService)
	tenantHandler := handler.NewTenantHandler(queries)
	menuHandler := handler.NewMenuHandler(queries)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	userHandler := handler.NewUserHandler(queries)
	reportHandler := handler.NewReportHandler(queries)

	// Public routes
	authHandler.RegisterRoutes(r)
	tenantHandler.RegisterPublicRoutes(r)
	menuHandler.RegisterPublicRoutes(r)
	orderHandler.RegisterPublicRoutes(r)
	paymentHandler.RegisterPublicRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/tenants/{tid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Staff routes
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		orderHandler.RegisterStaffRoutes(r)
		menuHandler.RegisterStaffRoutes(r)
		reportHandler.RegisterStaffRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleCashier, enum.UserRoleAdmin))
			paymentHandler.RegisterStaffRoutes(r)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin))
			tenantHandler.RegisterAdminRoutes(r)
			userHandler.RegisterAdminRoutes(r)
		})
	})

	return r
}
