package model

import "time"

// Transaction represents one negotiation-and-handover lifecycle between the
// owner of an item (seller) and a requester (buyer). It is created in
// pending and mutated exclusively through the market state machine.
type Transaction struct {
	ID              int64  `json:"id"`
	ItemID          int64  `json:"item_id"`
	RequesterID     int64  `json:"requester_id"`
	OwnerID         int64  `json:"owner_id"`
	TransactionType string `json:"transaction_type"`
	Status          string `json:"status"`

	PickupAt       *time.Time `json:"pickup_at,omitempty"`
	PickupLocation string     `json:"pickup_location,omitempty"`

	// Witness fields: each party's independent confirmation of the physical
	// exchange. The status only advances once both are set.
	SellerHandoverConfirmedAt *time.Time `json:"seller_handover_confirmed_at,omitempty"`
	BuyerHandoverConfirmedAt  *time.Time `json:"buyer_handover_confirmed_at,omitempty"`
	BuyerReturnConfirmedAt    *time.Time `json:"buyer_return_confirmed_at,omitempty"`
	SellerReturnConfirmedAt   *time.Time `json:"seller_return_confirmed_at,omitempty"`

	DisputeReason string    `json:"dispute_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Transaction statuses.
const (
	TxPending       = "pending"
	TxAwaitingBuyer = "awaiting_buyer"
	TxAccepted      = "accepted"
	TxHandedOver    = "handed_over"
	TxReturned      = "returned"
	TxCompleted     = "completed"
	TxRejected      = "rejected"
	TxDisputed      = "disputed"
)

// TxTerminal reports whether status permits no further ordinary-party
// transition. disputed counts as terminal here; only an administrative
// resolution can move a transaction out of it.
func TxTerminal(status string) bool {
	return status == TxCompleted || status == TxRejected || status == TxDisputed
}

// ActiveTxStatuses lists the statuses that count against the
// one-active-transaction-per-item invariant.
var ActiveTxStatuses = []string{TxPending, TxAwaitingBuyer, TxAccepted, TxHandedOver, TxReturned}
