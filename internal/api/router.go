package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/trznica/internal/event"
	"github.com/erazemk/trznica/internal/model"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string, events event.Emitter) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	itemsHandler := &ItemsHandler{DB: db}
	txHandler := &TransactionsHandler{DB: db, Events: events}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Accounts (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Listings: read (all residents), write (owner, checked in the handler).
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("POST /api/items", authMW(http.HandlerFunc(itemsHandler.Create)))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("PUT /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Update)))
	mux.Handle("DELETE /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Delete)))

	// Transaction lifecycle. Party roles are derived per call inside market.
	mux.Handle("POST /api/transactions", authMW(http.HandlerFunc(txHandler.Create)))
	mux.Handle("GET /api/transactions", authMW(http.HandlerFunc(txHandler.ListMine)))
	mux.Handle("GET /api/transactions/{id}", authMW(http.HandlerFunc(txHandler.Get)))
	mux.Handle("POST /api/transactions/{id}/propose", authMW(http.HandlerFunc(txHandler.Propose)))
	mux.Handle("POST /api/transactions/{id}/confirm", authMW(http.HandlerFunc(txHandler.Confirm)))
	// Legacy alias for clients that predate the propose/confirm flow.
	mux.Handle("POST /api/transactions/{id}/accept", authMW(http.HandlerFunc(txHandler.Confirm)))
	mux.Handle("POST /api/transactions/{id}/reject-proposal", authMW(http.HandlerFunc(txHandler.RejectProposal)))
	mux.Handle("POST /api/transactions/{id}/reject", authMW(http.HandlerFunc(txHandler.Reject)))
	mux.Handle("POST /api/transactions/{id}/handover", authMW(http.HandlerFunc(txHandler.Handover)))
	mux.Handle("POST /api/transactions/{id}/return", authMW(http.HandlerFunc(txHandler.Return)))
	mux.Handle("POST /api/transactions/{id}/complete", authMW(http.HandlerFunc(txHandler.Complete)))
	mux.Handle("POST /api/transactions/{id}/dispute", authMW(http.HandlerFunc(txHandler.Dispute)))
	mux.Handle("POST /api/transactions/{id}/resolve", authMW(requireAdmin(http.HandlerFunc(txHandler.Resolve))))
	mux.Handle("GET /api/transactions/{id}/audit", authMW(http.HandlerFunc(txHandler.Audit)))

	return mux
}
