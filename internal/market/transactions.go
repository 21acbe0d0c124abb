// Package market implements the two-party transaction state machine:
// negotiation, two-of-two handover and return confirmation, completion,
// disputes, and the append-only audit trail behind all of it.
//
// Every mutating operation runs as one SQL transaction keyed by the
// transaction row: read, authorize, conditionally write, append one audit
// entry, commit. Conditional WHERE guards revalidate the status on write, so
// two overlapping calls can never both apply the same transition. On any
// validation failure nothing is written.
package market

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/erazemk/trznica/internal/event"
	"github.com/erazemk/trznica/internal/model"
	"github.com/erazemk/trznica/internal/store"
)

const txColumns = `id, item_id, requester_id, owner_id, transaction_type, status,
	pickup_at, pickup_location,
	seller_handover_confirmed_at, buyer_handover_confirmed_at,
	buyer_return_confirmed_at, seller_return_confirmed_at,
	dispute_reason, created_at, updated_at`

// getTransaction reads a transaction row. Returns nil if the id is unknown.
func getTransaction(ctx context.Context, q store.Querier, id int64) (*model.Transaction, error) {
	t := &model.Transaction{}
	var pickupLocation, disputeReason sql.NullString
	var pickupAt, sellerHandover, buyerHandover, buyerReturn, sellerReturn sql.NullTime
	err := q.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = ?`, id,
	).Scan(&t.ID, &t.ItemID, &t.RequesterID, &t.OwnerID, &t.TransactionType, &t.Status,
		&pickupAt, &pickupLocation,
		&sellerHandover, &buyerHandover, &buyerReturn, &sellerReturn,
		&disputeReason, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transaction: %w", err)
	}
	t.PickupAt = timePtr(pickupAt)
	t.PickupLocation = pickupLocation.String
	t.SellerHandoverConfirmedAt = timePtr(sellerHandover)
	t.BuyerHandoverConfirmedAt = timePtr(buyerHandover)
	t.BuyerReturnConfirmedAt = timePtr(buyerReturn)
	t.SellerReturnConfirmedAt = timePtr(sellerReturn)
	t.DisputeReason = disputeReason.String
	return t, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// GetTransaction returns a transaction to one of its parties or an admin.
func GetTransaction(ctx context.Context, db *sql.DB, id, actorID int64, admin bool) (*model.Transaction, error) {
	t, err := getTransaction(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: transaction %d", ErrNotFound, id)
	}
	if _, err := Authorize(t, actorID, admin, ActionView); err != nil {
		return nil, err
	}
	return t, nil
}

// Create opens a transaction on an available item. The availability check
// and the reservation are a single conditional update, so of two concurrent
// requesters exactly one wins.
func Create(ctx context.Context, db *sql.DB, events event.Emitter, itemID, requesterID int64) (*model.Transaction, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	item, err := store.GetItem(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.DeletedAt != nil {
		return nil, fmt.Errorf("%w: item %d", ErrNotFound, itemID)
	}
	if item.OwnerID == requesterID {
		return nil, ErrSelfTransaction
	}

	reserved, err := store.ReserveItem(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if !reserved {
		return nil, fmt.Errorf("%w: item %d is %s", ErrItemUnavailable, itemID, item.Status)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (item_id, requester_id, owner_id, transaction_type)
		 VALUES (?, ?, ?, ?)`,
		itemID, requesterID, item.OwnerID, item.TransactionType,
	)
	if err != nil {
		return nil, fmt.Errorf("creating transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting transaction id: %w", err)
	}

	if err := appendAudit(ctx, tx, id, requesterID, model.AuditRoleBuyer, ActionCreate, "", model.TxPending, ""); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	events.Emit(ctx, event.New(ActionCreate, id, itemID, requesterID, "", model.TxPending))
	return getTransaction(ctx, db, id)
}

// transition describes one simple status move: who may do it, where from,
// where to, what else to write, and what happens to the item.
type transition struct {
	action   string
	from     []string
	to       string
	set      string // extra SET fragment, leading comma included
	args     []any
	lendOnly bool
	admin    bool
	finish   func(ctx context.Context, tx *sql.Tx, t *model.Transaction) error
}

// apply executes a transition atomically. The status is validated twice: once
// on the read (to produce a precise error) and again in the UPDATE's WHERE
// clause (to lose gracefully against a concurrent writer).
func apply(ctx context.Context, db *sql.DB, events event.Emitter, txID, actorID int64, notes string, tr transition) (*model.Transaction, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	t, err := getTransaction(ctx, tx, txID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: transaction %d", ErrNotFound, txID)
	}

	role, err := Authorize(t, actorID, tr.admin, tr.action)
	if err != nil {
		return nil, err
	}
	if tr.lendOnly && t.TransactionType != model.TypeLend {
		return nil, fmt.Errorf("%w: %s only applies to lend transactions", ErrInvalidState, tr.action)
	}
	if !slices.Contains(tr.from, t.Status) {
		return nil, fmt.Errorf("%w: cannot %s from %s", ErrInvalidState, tr.action, t.Status)
	}

	query := `UPDATE transactions SET status = ?, updated_at = CURRENT_TIMESTAMP` + tr.set +
		` WHERE id = ? AND status = ?`
	args := append([]any{tr.to}, tr.args...)
	args = append(args, txID, t.Status)
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("applying %s: %w", tr.action, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("applying %s: %w", tr.action, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: transaction changed concurrently", ErrInvalidState)
	}

	if tr.finish != nil {
		if err := tr.finish(ctx, tx, t); err != nil {
			return nil, err
		}
	}

	if err := appendAudit(ctx, tx, txID, actorID, role, tr.action, t.Status, tr.to, notes); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing %s: %w", tr.action, err)
	}

	events.Emit(ctx, event.New(tr.action, txID, t.ItemID, actorID, t.Status, tr.to))
	return getTransaction(ctx, db, txID)
}

// Propose lets the seller offer a pickup time and location, moving the
// transaction to awaiting_buyer.
func Propose(ctx context.Context, db *sql.DB, events event.Emitter, txID, actorID int64, pickupAt time.Time, pickupLocation string) (*model.Transaction, error) {
	return apply(ctx, db, events, txID, actorID, "", transition{
		action: ActionPropose,
		from:   []string{model.TxPending},
		to:     model.TxAwaitingBuyer,
		set:    `, pickup_at = ?, pickup_location = ?`,
		args:   []any{pickupAt.UTC(), pickupLocation},
	})
}

// Confirm lets the buyer accept the seller's proposal.
func Confirm(ctx context.Context, db *sql.DB, events event.Emitter, txID, actorID int64) (*model.Transaction, error) {
	return apply(ctx, db, events, txID, actorID, "", transition{
		action: ActionConfirm,
		from:   []string{model.TxAwaitingBuyer},
		to:     model.TxAccepted,
	})
}

// RejectProposal lets the buyer decline the proposed pickup, reopening
// negotiation. The transaction returns to pending; it is not cancelled, and
// the seller may propose again.
func RejectProposal(ctx context.Context, db *sql.DB, events event.Emitter, txID, actorID int64) (*model.Transaction, error) {
	return apply(ctx, db, events, txID, actorID, "", transition{
		action: ActionRejectProposal,
		from:   []string{model.TxAwaitingBuyer},
		to:     model.TxPending,
	})
}

// Reject lets the seller decline the transaction outright during
// negotiation. The item goes back to available.
func Reject(ctx context.Context, db *sql.DB, events event.Emitter, txID, actorID int64) (*model.Transaction, error) {
	return apply(ctx, db, events, txID, actorID, "", transition{
		action: ActionReject,
		from:   []string{model.TxPending, model.TxAwaitingBuyer},
		to:     model.TxRejected,
		finish: func(ctx context.Context, tx *sql.Tx, t *model.Transaction) error {
			return store.ReleaseItem(ctx, tx, t.ItemID)
		},
	})
}

// Complete closes a transaction once the exchange (and, for lends, the
// return) has been confirmed by both parties. Either party may call it. Sold
// and donated items become unavailable; lent items become available again.
func Complete(ctx context.Context, db *sql.DB, events event.Emitter, txID, actorID int64, notes string) (*model.Transaction, error) {
	tx, err := getTransactionChecked(ctx, db, txID)
	if err != nil {
		return nil, err
	}

	from := model.TxHandedOver
	finish := store.MarkItemUnavailable
	if tx.TransactionType == model.TypeLend {
		from = model.TxReturned
		finish = func(ctx context.Context, e store.Execer, id int64) error {
			return store.ReleaseItem(ctx, e, id)
		}
	}

	return apply(ctx, db, events, txID, actorID, notes, transition{
		action: ActionComplete,
		from:   []string{from},
		to:     model.TxCompleted,
		finish: func(ctx context.Context, sqlTx *sql.Tx, t *model.Transaction) error {
			return finish(ctx, sqlTx, t.ItemID)
		},
	})
}

// getTransactionChecked reads a transaction outside a write context purely to
// branch on its type; apply re-reads and revalidates under the write.
func getTransactionChecked(ctx context.Context, db *sql.DB, txID int64) (*model.Transaction, error) {
	t, err := getTransaction(ctx, db, txID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: transaction %d", ErrNotFound, txID)
	}
	return t, nil
}

// MyTransactions groups a resident's transactions by the side they are on.
type MyTransactions struct {
	AsBuyer  []model.Transaction `json:"as_buyer"`
	AsSeller []model.Transaction `json:"as_seller"`
}

// ListMine returns all transactions the actor is a party to.
func ListMine(ctx context.Context, db *sql.DB, actorID int64) (*MyTransactions, error) {
	asBuyer, err := listByColumn(ctx, db, "requester_id", actorID)
	if err != nil {
		return nil, err
	}
	asSeller, err := listByColumn(ctx, db, "owner_id", actorID)
	if err != nil {
		return nil, err
	}
	return &MyTransactions{AsBuyer: asBuyer, AsSeller: asSeller}, nil
}

func listByColumn(ctx context.Context, db *sql.DB, column string, id int64) ([]model.Transaction, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE `+column+` = ? ORDER BY updated_at DESC, id DESC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	transactions := []model.Transaction{}
	for rows.Next() {
		t := model.Transaction{}
		var pickupLocation, disputeReason sql.NullString
		var pickupAt, sellerHandover, buyerHandover, buyerReturn, sellerReturn sql.NullTime
		if err := rows.Scan(&t.ID, &t.ItemID, &t.RequesterID, &t.OwnerID, &t.TransactionType, &t.Status,
			&pickupAt, &pickupLocation,
			&sellerHandover, &buyerHandover, &buyerReturn, &sellerReturn,
			&disputeReason, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		t.PickupAt = timePtr(pickupAt)
		t.PickupLocation = pickupLocation.String
		t.SellerHandoverConfirmedAt = timePtr(sellerHandover)
		t.BuyerHandoverConfirmedAt = timePtr(buyerHandover)
		t.BuyerReturnConfirmedAt = timePtr(buyerReturn)
		t.SellerReturnConfirmedAt = timePtr(sellerReturn)
		t.DisputeReason = disputeReason.String
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}
