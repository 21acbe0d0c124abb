// Package event carries domain events emitted on every successful
// transaction transition. Delivery to residents (mail, push, ...) is handled
// by an external consumer; this package only defines the contract and two
// in-process emitters.
package event

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event describes one successful state-machine transition.
type Event struct {
	ID            uuid.UUID `json:"id"`
	Action        string    `json:"action"`
	TransactionID int64     `json:"transaction_id"`
	ItemID        int64     `json:"item_id"`
	ActorID       int64     `json:"actor_id"`
	FromStatus    string    `json:"from_status"`
	ToStatus      string    `json:"to_status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// New builds an event with a fresh id and timestamp.
func New(action string, transactionID, itemID, actorID int64, fromStatus, toStatus string) Event {
	return Event{
		ID:            uuid.New(),
		Action:        action,
		TransactionID: transactionID,
		ItemID:        itemID,
		ActorID:       actorID,
		FromStatus:    fromStatus,
		ToStatus:      toStatus,
		OccurredAt:    time.Now().UTC(),
	}
}

// Emitter receives events after the transition has committed. Emission must
// not fail the transition, so the interface returns nothing.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// LogEmitter writes events to slog. It is the default emitter for the server
// binary until a real notification consumer is attached.
type LogEmitter struct{}

func (LogEmitter) Emit(_ context.Context, e Event) {
	slog.Info("transaction event",
		"event_id", e.ID.String(),
		"action", e.Action,
		"transaction", e.TransactionID,
		"item", e.ItemID,
		"actor", e.ActorID,
		"from", e.FromStatus,
		"to", e.ToStatus,
	)
}

// Collector stores events in memory, in emission order. Used by tests.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Emit(_ context.Context, e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

// Events returns a copy of the collected events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}
