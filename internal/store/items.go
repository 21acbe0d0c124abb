package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/trznica/internal/model"
)

// Execer is satisfied by both *sql.DB and *sql.Tx, so the conditional status
// updates below can run standalone or inside a market transition.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateItem creates a new listing owned by ownerID. Price is only meaningful
// for sell items and must be zero otherwise.
func CreateItem(ctx context.Context, db *sql.DB, ownerID int64, name, description, transactionType string, priceCents int64) (*model.Item, error) {
	if !model.ValidTransactionType(transactionType) {
		return nil, fmt.Errorf("invalid transaction type %q", transactionType)
	}
	if transactionType != model.TypeSell && priceCents != 0 {
		return nil, fmt.Errorf("price is only allowed for sell items")
	}
	if priceCents < 0 {
		return nil, fmt.Errorf("price must not be negative")
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO items (owner_id, name, description, transaction_type, price_cents)
		 VALUES (?, ?, ?, ?, ?)`,
		ownerID, name, description, transactionType, priceCents,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID.
func GetItem(ctx context.Context, q Querier, id int64) (*model.Item, error) {
	item := &model.Item{}
	var description sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT id, owner_id, name, description, transaction_type, price_cents, status,
		        created_at, updated_at, deleted_at
		 FROM items WHERE id = ?`, id,
	).Scan(&item.ID, &item.OwnerID, &item.Name, &description, &item.TransactionType,
		&item.PriceCents, &item.Status, &item.CreatedAt, &item.UpdatedAt, &item.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	item.Description = description.String
	return item, nil
}

// ListItems returns all non-deleted items, optionally filtered by status
// and/or transaction type.
func ListItems(ctx context.Context, db *sql.DB, status, transactionType string) ([]model.Item, error) {
	query := `SELECT id, owner_id, name, description, transaction_type, price_cents, status,
	                 created_at, updated_at, deleted_at
	          FROM items WHERE deleted_at IS NULL`
	var args []any

	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if transactionType != "" {
		query += ` AND transaction_type = ?`
		args = append(args, transactionType)
	}

	query += ` ORDER BY name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var item model.Item
		var description sql.NullString
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Name, &description, &item.TransactionType,
			&item.PriceCents, &item.Status, &item.CreatedAt, &item.UpdatedAt, &item.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		item.Description = description.String
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItem updates an item's metadata. Only available items may be edited,
// so a reserved item's description cannot change under an active transaction.
func UpdateItem(ctx context.Context, db *sql.DB, id int64, name, description string, priceCents int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET name = ?, description = ?, price_cents = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ? AND deleted_at IS NULL`,
		name, description, priceCents, id, model.ItemStatusAvailable,
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("item not found or not available")
	}
	return nil
}

// DeleteItem soft-deletes an available item.
func DeleteItem(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET deleted_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ? AND deleted_at IS NULL`,
		id, model.ItemStatusAvailable,
	)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("item not found or not available")
	}
	return nil
}

// ReserveItem conditionally moves an item from available to reserved. The
// check and the write are one statement, so two concurrent requesters can
// never both reserve the same item. Returns false if the item was not
// available.
func ReserveItem(ctx context.Context, e Execer, id int64) (bool, error) {
	result, err := e.ExecContext(ctx,
		`UPDATE items SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ? AND deleted_at IS NULL`,
		model.ItemStatusReserved, id, model.ItemStatusAvailable,
	)
	if err != nil {
		return false, fmt.Errorf("reserving item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserving item: %w", err)
	}
	return n == 1, nil
}

// ReleaseItem moves a reserved item back to available.
func ReleaseItem(ctx context.Context, e Execer, id int64) error {
	_, err := e.ExecContext(ctx,
		`UPDATE items SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		model.ItemStatusAvailable, id, model.ItemStatusReserved,
	)
	if err != nil {
		return fmt.Errorf("releasing item: %w", err)
	}
	return nil
}

// MarkItemUnavailable finalises an item that changed hands permanently.
func MarkItemUnavailable(ctx context.Context, e Execer, id int64) error {
	_, err := e.ExecContext(ctx,
		`UPDATE items SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		model.ItemStatusUnavailable, id,
	)
	if err != nil {
		return fmt.Errorf("marking item unavailable: %w", err)
	}
	return nil
}
