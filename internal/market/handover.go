package market

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/trznica/internal/event"
	"github.com/erazemk/trznica/internal/model"
)

// witness describes one side of a two-of-two confirmation gate. Each party
// sets its own timestamp column; the aggregate status only advances once
// both columns are set, regardless of order.
type witness struct {
	action      string
	column      string // this party's timestamp column
	otherColumn string // the counterpart's column
	from        string // required current status
	to          string // status once both columns are set
	lendOnly    bool
}

// HandoverSeller records the seller's confirmation that the item was handed
// over. The status stays accepted until the buyer confirms too.
func HandoverSeller(ctx context.Context, db *sql.DB, events event.Emitter, txID, actorID int64, notes string) (*model.Transaction, error) {
	return confirmWitness(ctx, db, events, txID, actorID, notes, witness{
		action:      ActionHandoverSeller,
		column:      "seller_handover_confirmed_at",
		otherColumn: "buyer_handover_confirmed_at",
		from:        model.TxAccepted,
		to:          model.TxHandedOver,
	})
}

// HandoverBuyer records the buyer's confirmation of the handover.
func HandoverBuyer(ctx context.Context, db *sql.DB, events event.Emitter, txID, actorID int64, notes string) (*model.Transaction, error) {
	return confirmWitness(ctx, db, events, txID, actorID, notes, witness{
		action:      ActionHandoverBuyer,
		column:      "buyer_handover_confirmed_at",
		otherColumn: "seller_handover_confirmed_at",
		from:        model.TxAccepted,
		to:          model.TxHandedOver,
	})
}

// ReturnBuyer records the borrower's confirmation that a lent item was
// returned. Lend transactions only.
func ReturnBuyer(ctx context.Context, db *sql.DB, events event.Emitter, txID, actorID int64, notes string) (*model.Transaction, error) {
	return confirmWitness(ctx, db, events, txID, actorID, notes, witness{
		action:      ActionReturnBuyer,
		column:      "buyer_return_confirmed_at",
		otherColumn: "seller_return_confirmed_at",
		from:        model.TxHandedOver,
		to:          model.TxReturned,
		lendOnly:    true,
	})
}

// ReturnSeller records the lender's confirmation of the return.
func ReturnSeller(ctx context.Context, db *sql.DB, events event.Emitter, txID, actorID int64, notes string) (*model.Transaction, error) {
	return confirmWitness(ctx, db, events, txID, actorID, notes, witness{
		action:      ActionReturnSeller,
		column:      "seller_return_confirmed_at",
		otherColumn: "buyer_return_confirmed_at",
		from:        model.TxHandedOver,
		to:          model.TxReturned,
		lendOnly:    true,
	})
}

// confirmWitness applies one side of a two-of-two gate. Re-confirming an
// already-set witness is a no-op: no write, no audit entry, no error, so
// client retries are harmless. The first confirmation is audited immediately
// (partial progress stays visible to both parties) even though the status
// does not change until the second one.
func confirmWitness(ctx context.Context, db *sql.DB, events event.Emitter, txID, actorID int64, notes string, w witness) (*model.Transaction, error) {
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

	role, err := Authorize(t, actorID, false, w.action)
	if err != nil {
		return nil, err
	}

	// Idempotent retry path, checked before the status gate: the column is
	// only ever set by this exact action, so if it is already set this call
	// already succeeded once — even when the counterpart has since closed
	// the gate and the status moved past w.from. Retries after a lost
	// response stay harmless.
	if witnessValue(t, w.column) != nil {
		return t, nil
	}

	if w.lendOnly && t.TransactionType != model.TypeLend {
		return nil, fmt.Errorf("%w: %s only applies to lend transactions", ErrInvalidState, w.action)
	}
	if t.Status != w.from {
		return nil, fmt.Errorf("%w: cannot %s from %s", ErrInvalidState, w.action, t.Status)
	}

	// The WHERE clause re-checks status and column, so a concurrent duplicate
	// or transition loses here instead of double-writing.
	result, err := tx.ExecContext(ctx,
		`UPDATE transactions SET `+w.column+` = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ? AND `+w.column+` IS NULL`,
		txID, w.from,
	)
	if err != nil {
		return nil, fmt.Errorf("recording %s: %w", w.action, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("recording %s: %w", w.action, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: transaction changed concurrently", ErrInvalidState)
	}

	// Two-of-two gate: advance only once the counterpart has confirmed too.
	var other sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT `+w.otherColumn+` FROM transactions WHERE id = ?`, txID,
	).Scan(&other)
	if err != nil {
		return nil, fmt.Errorf("checking counterpart confirmation: %w", err)
	}

	toStatus := w.from
	if other.Valid {
		if _, err := tx.ExecContext(ctx,
			`UPDATE transactions SET status = ? WHERE id = ? AND status = ?`,
			w.to, txID, w.from,
		); err != nil {
			return nil, fmt.Errorf("advancing to %s: %w", w.to, err)
		}
		toStatus = w.to
	}

	if err := appendAudit(ctx, tx, txID, actorID, role, w.action, w.from, toStatus, notes); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing %s: %w", w.action, err)
	}

	events.Emit(ctx, event.New(w.action, txID, t.ItemID, actorID, w.from, toStatus))
	return getTransaction(ctx, db, txID)
}

func witnessValue(t *model.Transaction, column string) *time.Time {
	switch column {
	case "seller_handover_confirmed_at":
		return t.SellerHandoverConfirmedAt
	case "buyer_handover_confirmed_at":
		return t.BuyerHandoverConfirmedAt
	case "buyer_return_confirmed_at":
		return t.BuyerReturnConfirmedAt
	case "seller_return_confirmed_at":
		return t.SellerReturnConfirmedAt
	}
	return nil
}
