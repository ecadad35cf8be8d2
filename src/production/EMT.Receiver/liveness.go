package emtreceiver

import (
	"context"
	"sync"
	"time"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// StatusBroadcaster receives the result of each liveness sweep.
type StatusBroadcaster interface {
	BroadcastStatus(chipId, status string)
}

// Tracker keeps the last-seen wall-clock time per device and classifies each
// device against a grace period. State is process-local and never persisted;
// a device that was registered but never seen has the zero time as last-seen
// and is therefore offline.
type Tracker struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	grace    time.Duration
	now      func() time.Time
}

func NewTracker(grace time.Duration) *Tracker {
	return &Tracker{
		lastSeen: make(map[string]time.Time),
		grace:    grace,
		now:      time.Now,
	}
}

// Register adds a device with no last-seen time so sweeps report it offline
// until its first message arrives. Registering twice keeps the existing
// timestamp.
func (t *Tracker) Register(chipId string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.lastSeen[chipId]; !ok {
		t.lastSeen[chipId] = time.Time{}
	}
}

// Touch records that a message from the device was accepted now.
func (t *Tracker) Touch(chipId string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[chipId] = t.now()
}

// Status classifies one device. Unknown devices are offline.
func (t *Tracker) Status(chipId string) string {
	t.mu.Lock()
	last := t.lastSeen[chipId]
	t.mu.Unlock()
	return t.classify(last, t.now())
}

// Snapshot classifies every tracked device at the same instant.
func (t *Tracker) Snapshot() map[string]string {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	statuses := make(map[string]string, len(t.lastSeen))
	for chipId, last := range t.lastSeen {
		statuses[chipId] = t.classify(last, now)
	}
	return statuses
}

func (t *Tracker) classify(last time.Time, now time.Time) string {
	if now.Sub(last) <= t.grace {
		return StatusOnline
	}
	return StatusOffline
}

// Run sweeps on the given interval, broadcasting the current status of every
// tracked device until the context is canceled. Every sweep broadcasts all
// devices, not just transitions; clients deduplicate if they care.
func (t *Tracker) Run(ctx context.Context, interval time.Duration, out StatusBroadcaster) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for chipId, status := range t.Snapshot() {
				out.BroadcastStatus(chipId, status)
			}
		}
	}
}
