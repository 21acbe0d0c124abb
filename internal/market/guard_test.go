package market

import (
	"errors"
	"testing"

	"github.com/erazemk/trznica/internal/model"
)

func testTx() *model.Transaction {
	return &model.Transaction{ID: 1, ItemID: 1, OwnerID: 10, RequesterID: 20, Status: model.TxPending}
}

func TestAuthorizeDerivesRoles(t *testing.T) {
	tx := testTx()

	role, err := Authorize(tx, 10, false, ActionPropose)
	if err != nil {
		t.Fatalf("owner propose: %v", err)
	}
	if role != model.AuditRoleSeller {
		t.Errorf("expected seller, got %q", role)
	}

	role, err = Authorize(tx, 20, false, ActionConfirm)
	if err != nil {
		t.Fatalf("requester confirm: %v", err)
	}
	if role != model.AuditRoleBuyer {
		t.Errorf("expected buyer, got %q", role)
	}
}

func TestAuthorizeStrangerForbidden(t *testing.T) {
	tx := testTx()

	for _, action := range []string{ActionConfirm, ActionPropose, ActionComplete, ActionDispute, ActionView} {
		if _, err := Authorize(tx, 99, false, action); !errors.Is(err, ErrForbidden) {
			t.Errorf("%s by stranger: expected ErrForbidden, got %v", action, err)
		}
	}
}

func TestAuthorizeWrongSideForbidden(t *testing.T) {
	tx := testTx()

	cases := []struct {
		actorID int64
		action  string
	}{
		{20, ActionPropose},        // buyer may not propose
		{10, ActionConfirm},        // seller may not confirm
		{10, ActionRejectProposal}, // seller may not reject the proposal
		{20, ActionReject},         // buyer may not reject the transaction
		{20, ActionHandoverSeller}, // buyer may not confirm the seller's side
		{10, ActionHandoverBuyer},
		{10, ActionReturnBuyer},
		{20, ActionReturnSeller},
	}
	for _, c := range cases {
		if _, err := Authorize(tx, c.actorID, false, c.action); !errors.Is(err, ErrForbidden) {
			t.Errorf("%s by %d: expected ErrForbidden, got %v", c.action, c.actorID, err)
		}
	}
}

func TestAuthorizeEitherPartyActions(t *testing.T) {
	tx := testTx()

	for _, actorID := range []int64{10, 20} {
		for _, action := range []string{ActionComplete, ActionDispute, ActionView} {
			if _, err := Authorize(tx, actorID, false, action); err != nil {
				t.Errorf("%s by %d: %v", action, actorID, err)
			}
		}
	}
}

func TestAuthorizeAdminClass(t *testing.T) {
	tx := testTx()

	role, err := Authorize(tx, 99, true, ActionResolveDispute)
	if err != nil {
		t.Fatalf("admin resolve: %v", err)
	}
	if role != model.AuditRoleAdmin {
		t.Errorf("expected admin role, got %q", role)
	}

	if _, err := Authorize(tx, 99, true, ActionView); err != nil {
		t.Errorf("admin view: %v", err)
	}

	// Admins do not impersonate parties.
	if _, err := Authorize(tx, 99, true, ActionConfirm); !errors.Is(err, ErrForbidden) {
		t.Errorf("admin confirm: expected ErrForbidden, got %v", err)
	}

	// Ordinary parties may not resolve.
	if _, err := Authorize(tx, 10, false, ActionResolveDispute); !errors.Is(err, ErrForbidden) {
		t.Errorf("seller resolve: expected ErrForbidden, got %v", err)
	}
}

func TestAuthorizeOwnershipNotStored(t *testing.T) {
	// Role comes from the snapshot's ids, so the same actor flips roles when
	// the ids do.
	tx := testTx()
	tx.OwnerID, tx.RequesterID = tx.RequesterID, tx.OwnerID

	role, err := Authorize(tx, 10, false, ActionConfirm)
	if err != nil {
		t.Fatalf("confirm after swap: %v", err)
	}
	if role != model.AuditRoleBuyer {
		t.Errorf("expected buyer after swap, got %q", role)
	}
}
