package agent

import (
	"sync"
	"time"
)

// cooldown is how long a card must go unprocessed before it can be
// dispatched to an agent again. Without it a flapping webhook would
// re-enqueue the same card repeatedly.
const cooldown = 5 * time.Minute

// Dispatcher tracks which cards were recently dispatched so the gateway's
// webhook handler can skip re-enqueueing one still within its cooldown
// window. It holds no other state; the actual pipeline execution lives in
// pkg/orchestrator.
type Dispatcher struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	now      func() time.Time
}

// NewDispatcher builds a Dispatcher with an empty cooldown table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{lastSeen: make(map[string]time.Time), now: time.Now}
}

// ShouldProcess reports whether cardID is outside its cooldown window and,
// if so, records the current time against it. Call this exactly once per
// webhook delivery, immediately before deciding to enqueue.
func (d *Dispatcher) ShouldProcess(cardID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.lastSeen[cardID]; ok && now.Sub(last) < cooldown {
		return false
	}
	d.lastSeen[cardID] = now
	return true
}
