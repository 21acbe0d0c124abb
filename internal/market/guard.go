package market

import (
	"fmt"

	"github.com/erazemk/trznica/internal/model"
)

// Actions recorded in the audit trail and checked by the guard.
const (
	ActionCreate         = "create"
	ActionPropose        = "propose"
	ActionConfirm        = "confirm"
	ActionRejectProposal = "reject_proposal"
	ActionReject         = "reject"
	ActionHandoverSeller = "handover_seller"
	ActionHandoverBuyer  = "handover_buyer"
	ActionReturnBuyer    = "return_buyer"
	ActionReturnSeller   = "return_seller"
	ActionComplete       = "complete"
	ActionDispute        = "dispute"
	ActionResolveDispute = "resolve_dispute"
	ActionView           = "view"
)

// actionRoles maps each action to the party roles allowed to perform it.
// Roles are derived from identity comparison at call time, never stored, so
// the mapping cannot drift if item ownership changes.
var actionRoles = map[string]map[string]bool{
	ActionPropose:        {model.AuditRoleSeller: true},
	ActionConfirm:        {model.AuditRoleBuyer: true},
	ActionRejectProposal: {model.AuditRoleBuyer: true},
	ActionReject:         {model.AuditRoleSeller: true},
	ActionHandoverSeller: {model.AuditRoleSeller: true},
	ActionHandoverBuyer:  {model.AuditRoleBuyer: true},
	ActionReturnBuyer:    {model.AuditRoleBuyer: true},
	ActionReturnSeller:   {model.AuditRoleSeller: true},
	ActionComplete:       {model.AuditRoleBuyer: true, model.AuditRoleSeller: true},
	ActionDispute:        {model.AuditRoleBuyer: true, model.AuditRoleSeller: true},
	ActionView:           {model.AuditRoleBuyer: true, model.AuditRoleSeller: true},
}

// adminActions are the elevated actor class's permission surface. Admins do
// not impersonate parties; they resolve disputes and read.
var adminActions = map[string]bool{
	ActionResolveDispute: true,
	ActionView:           true,
}

// Authorize is the authorization guard: a pure function of the transaction
// snapshot, the actor, and the requested action. It returns the actor's
// derived role for the audit trail, or ErrForbidden. It is consulted before
// any write and performs none itself.
func Authorize(t *model.Transaction, actorID int64, admin bool, action string) (string, error) {
	if admin && adminActions[action] {
		return model.AuditRoleAdmin, nil
	}

	var role string
	switch actorID {
	case t.OwnerID:
		role = model.AuditRoleSeller
	case t.RequesterID:
		role = model.AuditRoleBuyer
	default:
		return "", fmt.Errorf("%w: actor %d is not a party to transaction %d", ErrForbidden, actorID, t.ID)
	}

	allowed, ok := actionRoles[action]
	if !ok || !allowed[role] {
		return "", fmt.Errorf("%w: %s may not %s", ErrForbidden, role, action)
	}
	return role, nil
}
