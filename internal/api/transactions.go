package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/trznica/internal/event"
	"github.com/erazemk/trznica/internal/market"
	"github.com/erazemk/trznica/internal/model"
)

// TransactionsHandler exposes the transaction state machine over HTTP. The
// authenticated user id is the actor id for every call; roles are derived
// inside the market package, never trusted from the request.
type TransactionsHandler struct {
	DB     *sql.DB
	Events event.Emitter
}

type createTransactionRequest struct {
	ItemID int64 `json:"item_id"`
}

type proposeRequest struct {
	PickupAt       string `json:"pickup_at"`
	PickupLocation string `json:"pickup_location"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
	Notes   string `json:"notes"`
}

// Create handles POST /api/transactions.
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemID <= 0 {
		jsonError(w, http.StatusBadRequest, "item_id required")
		return
	}

	t, err := market.Create(r.Context(), h.DB, h.Events, req.ItemID, claims.UserID)
	if err != nil {
		marketError(w, err)
		return
	}

	slog.Info("transaction created", "transaction", t.ID, "item", t.ItemID, "requester", claims.Username)
	jsonResponse(w, http.StatusCreated, t)
}

// ListMine handles GET /api/transactions.
func (h *TransactionsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	mine, err := market.ListMine(r.Context(), h.DB, claims.UserID)
	if err != nil {
		slog.Error("failed to list transactions", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	jsonResponse(w, http.StatusOK, mine)
}

// Get handles GET /api/transactions/{id}.
func (h *TransactionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	claims := GetClaims(r.Context())
	t, err := market.GetTransaction(r.Context(), h.DB, id, claims.UserID, isAdmin(r.Context()))
	if err != nil {
		marketError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, t)
}

// Propose handles POST /api/transactions/{id}/propose.
func (h *TransactionsHandler) Propose(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var req proposeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pickupAt, err := time.Parse(time.RFC3339, req.PickupAt)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "pickup_at must be RFC 3339")
		return
	}
	if req.PickupLocation == "" {
		jsonError(w, http.StatusBadRequest, "pickup_location required")
		return
	}

	claims := GetClaims(r.Context())
	t, err := market.Propose(r.Context(), h.DB, h.Events, id, claims.UserID, pickupAt, req.PickupLocation)
	if err != nil {
		marketError(w, err)
		return
	}

	slog.Info("pickup proposed", "transaction", t.ID, "seller", claims.Username)
	jsonResponse(w, http.StatusOK, t)
}

// Confirm handles POST /api/transactions/{id}/confirm, and its legacy alias
// POST /api/transactions/{id}/accept.
func (h *TransactionsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, func(id, actorID int64) (*model.Transaction, error) {
		return market.Confirm(r.Context(), h.DB, h.Events, id, actorID)
	})
}

// RejectProposal handles POST /api/transactions/{id}/reject-proposal.
func (h *TransactionsHandler) RejectProposal(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, func(id, actorID int64) (*model.Transaction, error) {
		return market.RejectProposal(r.Context(), h.DB, h.Events, id, actorID)
	})
}

// Reject handles POST /api/transactions/{id}/reject.
func (h *TransactionsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, func(id, actorID int64) (*model.Transaction, error) {
		return market.Reject(r.Context(), h.DB, h.Events, id, actorID)
	})
}

// Handover handles POST /api/transactions/{id}/handover. The caller's side
// is derived from the transaction, so one endpoint serves both parties.
func (h *TransactionsHandler) Handover(w http.ResponseWriter, r *http.Request) {
	h.witness(w, r, market.HandoverSeller, market.HandoverBuyer)
}

// Return handles POST /api/transactions/{id}/return (lend only).
func (h *TransactionsHandler) Return(w http.ResponseWriter, r *http.Request) {
	h.witness(w, r, market.ReturnSeller, market.ReturnBuyer)
}

// Complete handles POST /api/transactions/{id}/complete.
func (h *TransactionsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var req notesRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	claims := GetClaims(r.Context())
	t, err := market.Complete(r.Context(), h.DB, h.Events, id, claims.UserID, req.Notes)
	if err != nil {
		marketError(w, err)
		return
	}

	slog.Info("transaction completed", "transaction", t.ID, "by", claims.Username)
	jsonResponse(w, http.StatusOK, t)
}

// Dispute handles POST /api/transactions/{id}/dispute.
func (h *TransactionsHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var req disputeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	t, err := market.Dispute(r.Context(), h.DB, h.Events, id, claims.UserID, req.Reason)
	if err != nil {
		marketError(w, err)
		return
	}

	slog.Warn("transaction disputed", "transaction", t.ID, "by", claims.Username, "reason", req.Reason)
	jsonResponse(w, http.StatusOK, t)
}

// Resolve handles POST /api/transactions/{id}/resolve (admin only).
func (h *TransactionsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Outcome != market.ResolutionRejected && req.Outcome != market.ResolutionCompleted {
		jsonError(w, http.StatusBadRequest, "outcome must be rejected or completed")
		return
	}

	claims := GetClaims(r.Context())
	t, err := market.ResolveDispute(r.Context(), h.DB, h.Events, id, claims.UserID, req.Outcome, req.Notes)
	if err != nil {
		marketError(w, err)
		return
	}

	slog.Info("dispute resolved", "transaction", t.ID, "outcome", req.Outcome, "admin", claims.Username)
	jsonResponse(w, http.StatusOK, t)
}

// Audit handles GET /api/transactions/{id}/audit.
func (h *TransactionsHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	claims := GetClaims(r.Context())
	entries, err := market.ListAudit(r.Context(), h.DB, id, claims.UserID, isAdmin(r.Context()))
	if err != nil {
		marketError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, entries)
}

// simple runs a body-less transition and writes the updated transaction.
func (h *TransactionsHandler) simple(w http.ResponseWriter, r *http.Request, fn func(id, actorID int64) (*model.Transaction, error)) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	claims := GetClaims(r.Context())
	t, err := fn(id, claims.UserID)
	if err != nil {
		marketError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, t)
}

type witnessFn func(ctx context.Context, db *sql.DB, events event.Emitter, txID, actorID int64, notes string) (*model.Transaction, error)

// witness reads the caller's side off the transaction and records their
// confirmation.
func (h *TransactionsHandler) witness(w http.ResponseWriter, r *http.Request, asSeller, asBuyer witnessFn) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var req notesRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	claims := GetClaims(r.Context())
	t, err := market.GetTransaction(r.Context(), h.DB, id, claims.UserID, false)
	if err != nil {
		marketError(w, err)
		return
	}

	fn := asBuyer
	if claims.UserID == t.OwnerID {
		fn = asSeller
	}

	t, err = fn(r.Context(), h.DB, h.Events, id, claims.UserID, req.Notes)
	if err != nil {
		marketError(w, err)
		return
	}

	slog.Info("exchange confirmation recorded", "transaction", t.ID, "by", claims.Username, "status", t.Status)
	jsonResponse(w, http.StatusOK, t)
}
