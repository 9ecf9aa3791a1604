/*
events.go - Typed in-process domain events

PURPOSE:
  Replaces the ad hoc global "mileage updated" broadcast with explicit,
  typed events dispatched from the components that produce them to the
  subscribers that consume them. No global singleton; an Events value is
  injected where needed and a nil dispatcher publishes nothing.
*/
package fleet

import (
	"sync"
	"time"
)

// MileageUpdated is published after a recompute changes a vehicle's
// authoritative mileage.
type MileageUpdated struct {
	VehicleID VehicleID
	Total     int
	At        time.Time
}

// EntryCreated is published after a ledger entry is persisted.
type EntryCreated struct {
	Entry LedgerEntry
}

// Events is a typed pub/sub dispatcher. Subscribers run synchronously on
// the publishing goroutine; handlers must not block.
type Events struct {
	mu          sync.RWMutex
	mileageSubs []func(MileageUpdated)
	entrySubs   []func(EntryCreated)
}

func NewEvents() *Events { return &Events{} }

func (e *Events) OnMileageUpdated(fn func(MileageUpdated)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mileageSubs = append(e.mileageSubs, fn)
}

func (e *Events) OnEntryCreated(fn func(EntryCreated)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entrySubs = append(e.entrySubs, fn)
}

func (e *Events) PublishMileageUpdated(ev MileageUpdated) {
	if e == nil {
		return
	}
	e.mu.RLock()
	subs := e.mileageSubs
	e.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (e *Events) PublishEntryCreated(ev EntryCreated) {
	if e == nil {
		return
	}
	e.mu.RLock()
	subs := e.entrySubs
	e.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}
