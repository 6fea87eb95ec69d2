package player

import "sync"

// Registry is the global player registry (spec §3 invariant: "client_id is
// unique across all live and disconnected-but-still-tracked players").
// It is safe for concurrent use: in this server each connection goroutine
// calls Add on accept, the dispatcher goroutine binds tokens and removes
// players, and the reaper and stats logger read it, all without
// coordinating through the dispatcher's message queue.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*Player
	byToken map[string]string // session token -> client ID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[string]*Player),
		byToken: make(map[string]string),
	}
}

// Add registers p under its ClientID. Panics if the ID is already present —
// that would violate the spec §3 uniqueness invariant and indicates a bug in
// ID generation, not a recoverable runtime condition.
func (r *Registry) Add(p *Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[p.ClientID]; exists {
		panic("player: duplicate client_id registered: " + p.ClientID)
	}
	r.byID[p.ClientID] = p
}

// Get returns the player for clientID, or (nil, false).
func (r *Registry) Get(clientID string) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[clientID]
	return p, ok
}

// Remove deletes the player record entirely (spec §3 lifecycle: "Destroy
// the player record").
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[clientID]; ok {
		if p.SessionToken != "" {
			delete(r.byToken, p.SessionToken)
		}
		delete(r.byID, clientID)
	}
}

// BindToken associates a freshly-minted or resumed session token with
// clientID (spec §3: "session_token is unique and non-reassignable").
// Returns false if the token is already bound to a different client.
func (r *Registry) BindToken(clientID, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, exists := r.byToken[token]; exists && owner != clientID {
		return false
	}
	r.byToken[token] = clientID
	return true
}

// ClientIDForToken resolves a session token back to its owning client ID.
func (r *Registry) ClientIDForToken(token string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byToken[token]
	return id, ok
}

// ForEach iterates all registered players in an unspecified order. fn must
// not mutate the registry.
func (r *Registry) ForEach(fn func(*Player)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.byID {
		fn(p)
	}
}

// Count returns the number of tracked players, connected or not.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
