package subscription

import "sync"

// mailbox is a single-slot, latest-wins outbox for one (client, channel)
// pair. Send never blocks the producer: if a frame is already pending and
// unconsumed, it is dropped in favor of the new one (spec §4.4 — "liveness
// over completeness").
type mailbox struct {
	mu      sync.Mutex
	pending any
	has     bool
	notify  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

// Send replaces any pending, unconsumed frame and wakes the dispatcher.
// Returns true if it replaced (dropped) a previously pending frame.
func (m *mailbox) Send(payload any) (droppedPrevious bool) {
	m.mu.Lock()
	droppedPrevious = m.has
	m.pending = payload
	m.has = true
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return droppedPrevious
}

// Take consumes and clears the pending frame, if any.
func (m *mailbox) Take() (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.has {
		return nil, false
	}
	payload := m.pending
	m.pending = nil
	m.has = false
	return payload, true
}
