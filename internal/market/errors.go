package market

import "errors"

// Validation failures are typed so the API layer can map them to HTTP
// statuses with errors.Is. On any of these the transaction, the item, and
// the audit trail are left untouched.
var (
	// ErrNotFound means the transaction or item id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrItemUnavailable means create() was called against an item that is
	// not currently available.
	ErrItemUnavailable = errors.New("item is not available")

	// ErrSelfTransaction means the requester already owns the item.
	ErrSelfTransaction = errors.New("cannot request your own item")

	// ErrForbidden means the actor is not a party to the transaction, or
	// lacks the role the action requires.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState means the action is not legal from the current status.
	ErrInvalidState = errors.New("action not allowed in current status")

	// ErrDisputeReasonRequired means dispute() was called with an empty reason.
	ErrDisputeReasonRequired = errors.New("dispute reason required")
)
