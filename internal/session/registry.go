package session

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/zulandar/switchboard/internal/mailbox"
	"gorm.io/gorm"
)

// ErrSessionNotFound is returned for unknown or already-closed session
// identifiers on non-handshake requests.
var ErrSessionNotFound = errors.New("session not found")

// Registry maps session identifiers to live handlers. The map is touched
// by arbitrarily many concurrent request handlers; all access goes through
// the read-write mutex. The handlers themselves share one database handle.
type Registry struct {
	db     *gorm.DB
	notify mailbox.NotifyConfig

	mu       sync.RWMutex
	handlers map[string]*Handler
}

// NewRegistry creates a registry over the shared core components.
func NewRegistry(db *gorm.DB, notify mailbox.NotifyConfig) *Registry {
	return &Registry{
		db:       db,
		notify:   notify,
		handlers: make(map[string]*Handler),
	}
}

// Create mints a fresh session: a new unique identifier and an isolated
// handler, recorded before the handshake is acknowledged.
func (r *Registry) Create() *Handler {
	id := uuid.NewString()
	h := NewHandler(id, r.db, r.notify)

	r.mu.Lock()
	r.handlers[id] = h
	r.mu.Unlock()

	log.Printf("session: %s created", id)
	return h
}

// Lookup returns the handler for an identifier. Unknown and removed
// identifiers are indistinguishable: both are ErrSessionNotFound. An
// identifier is never re-accepted after removal because fresh handshakes
// always mint new ones.
func (r *Registry) Lookup(id string) (*Handler, error) {
	r.mu.RLock()
	h, ok := r.handlers[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session: %s: %w", id, ErrSessionNotFound)
	}
	return h, nil
}

// Remove closes a session and drops it from the map.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	h, ok := r.handlers[id]
	if ok {
		delete(r.handlers, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("session: %s: %w", id, ErrSessionNotFound)
	}
	h.close()
	log.Printf("session: %s closed", id)
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
