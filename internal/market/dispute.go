package market

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/trznica/internal/event"
	"github.com/erazemk/trznica/internal/model"
	"github.com/erazemk/trznica/internal/store"
)

// Dispute freezes a transaction. Either party may raise one from any
// non-terminal status; afterwards no ordinary-party transition is possible
// until an administrator resolves it. The item stays reserved so nobody else
// can book it while the dispute is open.
func Dispute(ctx context.Context, db *sql.DB, events event.Emitter, txID, actorID int64, reason string) (*model.Transaction, error) {
	if reason == "" {
		return nil, ErrDisputeReasonRequired
	}
	return apply(ctx, db, events, txID, actorID, reason, transition{
		action: ActionDispute,
		from:   model.ActiveTxStatuses,
		to:     model.TxDisputed,
		set:    `, dispute_reason = ?`,
		args:   []any{reason},
	})
}

// Dispute resolution outcomes.
const (
	ResolutionRejected  = model.TxRejected
	ResolutionCompleted = model.TxCompleted
)

// ResolveDispute is the administrative reopening primitive: it moves a
// disputed transaction to a terminal outcome decided outside the system.
// Outcome rejected releases the item; outcome completed finalises it the
// same way an ordinary completion would.
func ResolveDispute(ctx context.Context, db *sql.DB, events event.Emitter, txID, adminID int64, outcome, notes string) (*model.Transaction, error) {
	var finish func(ctx context.Context, tx *sql.Tx, t *model.Transaction) error
	switch outcome {
	case ResolutionRejected:
		finish = func(ctx context.Context, tx *sql.Tx, t *model.Transaction) error {
			return store.ReleaseItem(ctx, tx, t.ItemID)
		}
	case ResolutionCompleted:
		finish = func(ctx context.Context, tx *sql.Tx, t *model.Transaction) error {
			if t.TransactionType == model.TypeLend {
				return store.ReleaseItem(ctx, tx, t.ItemID)
			}
			return store.MarkItemUnavailable(ctx, tx, t.ItemID)
		}
	default:
		return nil, fmt.Errorf("%w: unknown resolution outcome %q", ErrInvalidState, outcome)
	}

	return apply(ctx, db, events, txID, adminID, notes, transition{
		action: ActionResolveDispute,
		from:   []string{model.TxDisputed},
		to:     outcome,
		admin:  true,
		finish: finish,
	})
}
