package gateway

import (
	"sync/atomic"

	"github.com/stockparty/game-engine/internal/event"
)

// Relay is a late-bound event.Notifier. The controller is constructed with
// the relay, the hub is constructed with the controller, and Bind closes
// the loop. Events published before Bind are dropped.
type Relay struct {
	target atomic.Pointer[Hub]
}

// NewRelay creates an unbound relay.
func NewRelay() *Relay {
	return &Relay{}
}

// Bind points the relay at the hub. Call once during wiring.
func (r *Relay) Bind(h *Hub) {
	r.target.Store(h)
}

func (r *Relay) Notify(playerID string, msg event.Message) {
	if h := r.target.Load(); h != nil {
		h.Notify(playerID, msg)
	}
}

func (r *Relay) Broadcast(msg event.Message) {
	if h := r.target.Load(); h != nil {
		h.Broadcast(msg)
	}
}
