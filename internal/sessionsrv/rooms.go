package sessionsrv

import (
	"sync"

	"github.com/gomokusrv/arbiter/internal/room"
)

// roomRegistry holds all live rooms. Mutated by the dispatcher goroutine
// only (spec §4.3.1); the mutex lets the reaper and stats logger take
// consistent read-only snapshots without routing through the dispatcher.
type roomRegistry struct {
	mu   sync.RWMutex
	byID map[string]*room.Room
}

func newRoomRegistry() *roomRegistry {
	return &roomRegistry{byID: make(map[string]*room.Room)}
}

func (rr *roomRegistry) add(r *room.Room) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.byID[r.ID] = r
}

func (rr *roomRegistry) get(id string) (*room.Room, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	r, ok := rr.byID[id]
	return r, ok
}

func (rr *roomRegistry) remove(id string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	delete(rr.byID, id)
}

func (rr *roomRegistry) count() int {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return len(rr.byID)
}

// joinable returns a snapshot of rooms with room.Waiting state (spec §4.3.2
// room_list: "currently joinable (non-full) rooms"). Rooms leave Waiting
// the instant they fill (transitioning straight to Playing), so Waiting is
// exactly the joinable set.
func (rr *roomRegistry) joinable() []*room.Room {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	var out []*room.Room
	for _, r := range rr.byID {
		if r.State == room.Waiting {
			out = append(out, r)
		}
	}
	return out
}

func (rr *roomRegistry) forEach(fn func(*room.Room)) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	for _, r := range rr.byID {
		fn(r)
	}
}
