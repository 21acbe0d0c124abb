package market

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/trznica/internal/model"
	"github.com/erazemk/trznica/internal/store"
)

// appendAudit writes one immutable audit entry inside the caller's SQL
// transaction. The recorder exposes no update or delete; entries only ever
// accumulate.
func appendAudit(ctx context.Context, e store.Execer, transactionID, actorID int64, role, action, fromStatus, toStatus, notes string) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO audit_entries (transaction_id, actor_id, actor_role, action, from_status, to_status, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		transactionID, actorID, role, action, fromStatus, toStatus, notes,
	)
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// ListAudit returns the full ordered timeline of a transaction to one of its
// parties or an admin. Order is (created_at, id); the autoincrement id breaks
// ties between same-instant entries.
func ListAudit(ctx context.Context, db *sql.DB, transactionID, actorID int64, admin bool) ([]model.AuditEntry, error) {
	t, err := getTransaction(ctx, db, transactionID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: transaction %d", ErrNotFound, transactionID)
	}
	if _, err := Authorize(t, actorID, admin, ActionView); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, transaction_id, actor_id, actor_role, action, from_status, to_status, notes, created_at
		 FROM audit_entries WHERE transaction_id = ?
		 ORDER BY created_at, id`, transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	entries := []model.AuditEntry{}
	for rows.Next() {
		var e model.AuditEntry
		var notes sql.NullString
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.ActorID, &e.ActorRole, &e.Action,
			&e.FromStatus, &e.ToStatus, &notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Notes = notes.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
