package slot

import "sync"

// NextKey is the in-flight key used while "find next available" runs.
const NextKey = -1

// InFlight admits at most one mutation per key. Distinct keys do not block
// each other.
type InFlight struct {
	mu   sync.Mutex
	keys map[int]struct{}
}

// NewInFlight returns an empty guard.
func NewInFlight() *InFlight {
	return &InFlight{keys: make(map[int]struct{})}
}

// Acquire claims key. It returns false when a mutation for key is already
// running; otherwise the returned release func must be called exactly once.
func (g *InFlight) Acquire(key int) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.keys[key]; busy {
		return nil, false
	}
	g.keys[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.keys, key)
			g.mu.Unlock()
		})
	}, true
}

// Busy reports whether a mutation for key is running.
func (g *InFlight) Busy(key int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.keys[key]
	return busy
}
