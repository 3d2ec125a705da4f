// Package session produces the opaque identifier that correlates a mounted
// screen's requests with conversational state held by the AI service.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// ID is an opaque session identifier. The zero value means "not generated yet".
type ID string

func (id ID) String() string { return string(id) }

// Empty reports whether the identifier has not been generated.
func (id ID) Empty() bool { return id == "" }

const idLength = 36

// New returns a fresh random identifier.
func New() ID {
	return ID(newUUID())
}

// Valid reports whether s has the canonical uuid form produced by New.
func Valid(s string) bool {
	if len(s) != idLength {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// Identity holds the session identifier of one screen mount. It starts empty
// and is filled exactly once by Generate.
type Identity struct {
	once sync.Once
	mu   sync.RWMutex
	id   ID
}

// Generate creates the identifier on the first call and returns the same
// value on every later call.
func (i *Identity) Generate() ID {
	i.once.Do(func() {
		id := New()
		i.mu.Lock()
		i.id = id
		i.mu.Unlock()
	})
	return i.ID()
}

// ID returns the current identifier, or "" before Generate has run.
func (i *Identity) ID() ID {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.id
}

// Ready reports whether Generate has completed.
func (i *Identity) Ready() bool {
	return !i.ID().Empty()
}

var newUUID = func() string {
	return uuid.NewString()
}
