package model

import "time"

// Item represents a single indivisible listing owned by a resident. The
// status field is the one record shared across transactions for the same
// item, so exactly one non-terminal transaction can hold it at a time.
type Item struct {
	ID              int64      `json:"id"`
	OwnerID         int64      `json:"owner_id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	TransactionType string     `json:"transaction_type"`
	PriceCents      int64      `json:"price_cents,omitempty"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// Item statuses.
const (
	ItemStatusAvailable   = "available"
	ItemStatusReserved    = "reserved"
	ItemStatusUnavailable = "unavailable"
)

// Transaction types. Copied onto the transaction at creation, immutable
// afterwards.
const (
	TypeSell   = "sell"
	TypeLend   = "lend"
	TypeDonate = "donate"
)

// ValidTransactionType reports whether t is a known transaction type.
func ValidTransactionType(t string) bool {
	return t == TypeSell || t == TypeLend || t == TypeDonate
}
