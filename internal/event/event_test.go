package event

import (
	"context"
	"testing"
)

func TestNewFillsIdentity(t *testing.T) {
	e := New("confirm", 1, 2, 3, "awaiting_buyer", "accepted")

	if e.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("expected a non-zero event id")
	}
	if e.OccurredAt.IsZero() {
		t.Error("expected a timestamp")
	}
	if e.Action != "confirm" || e.TransactionID != 1 || e.ItemID != 2 || e.ActorID != 3 {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestCollectorPreservesOrder(t *testing.T) {
	var c Collector
	ctx := context.Background()

	c.Emit(ctx, New("create", 1, 2, 3, "", "pending"))
	c.Emit(ctx, New("propose", 1, 2, 4, "pending", "awaiting_buyer"))

	got := c.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Action != "create" || got[1].Action != "propose" {
		t.Errorf("unexpected order: %q, %q", got[0].Action, got[1].Action)
	}

	// Events() hands out a copy.
	got[0].Action = "mutated"
	if c.Events()[0].Action != "create" {
		t.Error("collector state leaked through the returned slice")
	}
}
