package session

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Holder is the process-wide owner of the current authenticated identity.
// Components that need the identity receive the Holder explicitly instead of
// consulting a package global, and can register for sign-in/sign-out changes
// with an unsubscribe honored on every exit path.
type Holder struct {
	mu          sync.RWMutex
	current     *Identity
	subscribers map[uint64]func(*Identity)
	nextID      uint64
}

func NewHolder() *Holder {
	return &Holder{
		subscribers: make(map[uint64]func(*Identity)),
	}
}

// Current returns the signed-in identity, or nil when signed out.
func (h *Holder) Current() *Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Set replaces the current identity (nil on sign-out) and notifies all
// subscribers synchronously.
func (h *Holder) Set(identity *Identity) {
	h.mu.Lock()
	h.current = identity
	callbacks := make([]func(*Identity), 0, len(h.subscribers))
	for _, cb := range h.subscribers {
		callbacks = append(callbacks, cb)
	}
	h.mu.Unlock()

	if identity != nil {
		log.Debugf("session identity set: %s", identity.ID)
	} else {
		log.Debug("session identity cleared")
	}
	for _, cb := range callbacks {
		cb(identity)
	}
}

// Subscribe registers a callback invoked on every identity change. It returns
// an unsubscribe function that removes the callback when called.
func (h *Holder) Subscribe(cb func(*Identity)) (unsubscribe func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subscribers[id] = cb
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subscribers, id)
	}
}
