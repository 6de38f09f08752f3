package bridge

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dantte-lp/vdabridge/internal/seer"
	"github.com/dantte-lp/vdabridge/internal/vda"
)

// -------------------------------------------------------------------------
// Vehicle State Cache
// -------------------------------------------------------------------------

// VehicleState is the cached fleet-plane view of one vehicle. The periodic
// publishers read it; the uplink pump and the downlink dispatch write it.
type VehicleState struct {
	// State is the last translated state payload, buffered for the next
	// publish tick. Nil until the vehicle's first state push arrives.
	State *vda.State

	// Context is the order bookkeeping folded into state translation.
	Context seer.StateContext

	// Connection is the vehicle's last connection-topic value. Empty until
	// the first connection edge; the connection publisher skips vehicles
	// that never produced one.
	Connection vda.ConnectionState

	// ReceivedAt is when the buffered state push arrived.
	ReceivedAt time.Time
}

// cacheEntry holds one vehicle's snapshot. Writers do a read-modify-write
// under mu; readers load the pointer without locking.
type cacheEntry struct {
	mu   sync.Mutex
	snap atomic.Pointer[VehicleState]
}

// Cache buffers the latest fleet-plane snapshot per vehicle serial.
//
// Uplink pushes arrive at up to vehicle rate while the publishers read on
// their own cadence, so reads vastly outnumber writes and must never block
// a publisher behind a push in flight. Snapshots are immutable once stored;
// writers replace the pointer, never mutate through it.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

// NewCache creates an empty vehicle state cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*cacheEntry)}
}

// entryFor returns the entry for serial, creating it on first use.
func (c *Cache) entryFor(serial string) *cacheEntry {
	c.mu.RLock()
	e, ok := c.entries[serial]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.entries[serial]; ok {
		return e
	}
	e = &cacheEntry{}
	e.snap.Store(&VehicleState{})
	c.entries[serial] = e
	return e
}

// update applies fn to a copy of the current snapshot and publishes the
// copy. Concurrent updates to the same serial serialize on the entry lock.
func (c *Cache) update(serial string, fn func(*VehicleState)) {
	e := c.entryFor(serial)
	e.mu.Lock()
	defer e.mu.Unlock()

	next := *e.snap.Load()
	fn(&next)
	e.snap.Store(&next)
}

// SetState stores a freshly translated state payload together with the
// context that produced it.
func (c *Cache) SetState(serial string, st *vda.State, ctx seer.StateContext, at time.Time) {
	c.update(serial, func(vs *VehicleState) {
		vs.State = st
		vs.Context = ctx
		vs.ReceivedAt = at
	})
}

// SetOrder records the active order identity for serial. The node
// bookkeeping of the context is preserved; only the order fields change.
func (c *Cache) SetOrder(serial, orderID string, orderUpdateID int) {
	c.update(serial, func(vs *VehicleState) {
		vs.Context.OrderID = orderID
		vs.Context.OrderUpdateID = orderUpdateID
	})
}

// SetConnection records the vehicle's connection-topic value.
func (c *Cache) SetConnection(serial string, cs vda.ConnectionState) {
	c.update(serial, func(vs *VehicleState) {
		vs.Connection = cs
	})
}

// Snapshot returns the current snapshot for serial. The second return is
// false when the serial has never been written.
func (c *Cache) Snapshot(serial string) (*VehicleState, bool) {
	c.mu.RLock()
	e, ok := c.entries[serial]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.snap.Load(), true
}

// Context returns the translation context for serial, or a zero context for
// an unknown serial.
func (c *Cache) Context(serial string) seer.StateContext {
	snap, ok := c.Snapshot(serial)
	if !ok {
		return seer.StateContext{}
	}
	return snap.Context
}

// Remove drops the cached snapshot for serial.
func (c *Cache) Remove(serial string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, serial)
}

// Serials lists the cached serials in sorted order.
func (c *Cache) Serials() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.entries))
	for serial := range c.entries {
		out = append(out, serial)
	}
	slices.Sort(out)
	return out
}
