// README: Owned map state guarded by turn-id comparison.
package mapstate

import (
	"sync"

	"chatmap/internal/modules/geo"
)

// Holder owns one conversation's State. Writes carry the turn id that produced
// them and are accepted only when that id is newer than the last accepted one.
type Holder struct {
	mu      sync.RWMutex
	state   State
	version uint64
}

func NewHolder() *Holder {
	return &Holder{state: Default()}
}

// Get returns a copy of the current state and the turn id that wrote it.
func (h *Holder) Get() (State, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.clone(), h.version
}

// Apply reconciles result for turnID. It returns false and leaves the state
// untouched when turnID is not newer than the current version.
func (h *Holder) Apply(turnID uint64, result geo.Result) (State, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if turnID <= h.version {
		return h.state.clone(), false
	}
	h.state = Reconcile(result, h.state)
	h.version = turnID
	return h.state.clone(), true
}

// Reset restores the default state and raises the version to floor so that
// no turn at or below floor can write afterwards.
func (h *Holder) Reset(floor uint64) State {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = Default()
	if floor > h.version {
		h.version = floor
	}
	return h.state.clone()
}

// Restore seeds the holder from a persisted snapshot.
func (h *Holder) Restore(s State, version uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s.clone()
	h.version = version
}
