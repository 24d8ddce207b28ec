package tracker

import (
	"sync"

	"github.com/google/uuid"
)

// Marker remembers, for the lifetime of a login session, which shifts have
// already sent their first location ping.
type Marker struct {
	mu   sync.Mutex
	sent map[uuid.UUID]struct{}
}

func NewMarker() *Marker {
	return &Marker{sent: make(map[uuid.UUID]struct{})}
}

func (m *Marker) Sent(shiftID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sent[shiftID]
	return ok
}

func (m *Marker) Mark(shiftID uuid.UUID) {
	m.mu.Lock()
	m.sent[shiftID] = struct{}{}
	m.mu.Unlock()
}

// Reset forgets every shift, e.g. when the session ends.
func (m *Marker) Reset() {
	m.mu.Lock()
	clear(m.sent)
	m.mu.Unlock()
}
