package model

import "time"

// AuditEntry is one immutable record of a successful transition. Entries are
// append-only and ordered by (created_at, id); the autoincrement id breaks
// ties between same-instant confirmations.
type AuditEntry struct {
	ID            int64     `json:"id"`
	TransactionID int64     `json:"transaction_id"`
	ActorID       int64     `json:"actor_id"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	FromStatus    string    `json:"from_status"`
	ToStatus      string    `json:"to_status"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Actor roles recorded in the audit trail. Buyer and seller are derived from
// identity comparison at call time, never stored on the transaction.
const (
	AuditRoleBuyer  = "buyer"
	AuditRoleSeller = "seller"
	AuditRoleSystem = "system"
	AuditRoleAdmin  = "admin"
)
