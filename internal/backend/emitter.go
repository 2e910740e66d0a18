package backend

import "sync"

// AuthEmitter fans auth-state changes out to registered listeners. Listeners
// run on the emitting goroutine, outside the emitter lock.
type AuthEmitter struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]AuthListener
}

// Subscribe registers listener and returns the func that removes it. The
// returned func is safe to call more than once.
func (e *AuthEmitter) Subscribe(listener AuthListener) func() {
	if listener == nil {
		return func() {}
	}

	e.mu.Lock()
	if e.listeners == nil {
		e.listeners = make(map[uint64]AuthListener)
	}
	e.nextID++
	id := e.nextID
	e.listeners[id] = listener
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Emit delivers event to every listener registered at the time of the call.
func (e *AuthEmitter) Emit(event AuthEvent, session *Session) {
	e.mu.Lock()
	listeners := make([]AuthListener, 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.mu.Unlock()

	for _, l := range listeners {
		l(event, session)
	}
}

// Len returns the number of registered listeners.
func (e *AuthEmitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}
