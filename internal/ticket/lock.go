package ticket

// LockState is the position of a ticket in its lock lifecycle.
type LockState int

const (
	// StateUnlocked accepts edits and is not waiting for a lock.
	StateUnlocked LockState = iota
	// StatePendingLock has a lock requested for the next LockTicket.
	StatePendingLock
	// StateLocked has been sent to preparation; adding or cancelling orders unlocks it.
	StateLocked
)

func (s LockState) String() string {
	switch s {
	case StatePendingLock:
		return "pending_lock"
	case StateLocked:
		return "locked"
	default:
		return "unlocked"
	}
}

// LockState reports the current lock state.
func (t *Ticket) LockState() LockState {
	switch {
	case t.Locked:
		return StateLocked
	case t.pendingLock:
		return StatePendingLock
	default:
		return StateUnlocked
	}
}

// RequestLock marks the ticket to be locked on the next LockTicket.
func (t *Ticket) RequestLock() {
	t.pendingLock = true
}

// LockTicket locks every unlocked order, and the ticket itself when a lock was requested or
// the ticket is closed. The pending request is always cleared.
func (t *Ticket) LockTicket() {
	for _, o := range t.Orders {
		if !o.Locked {
			o.Locked = true
		}
	}
	if t.pendingLock || t.IsClosed {
		t.Locked = true
	}
	t.pendingLock = false
}

// IsPendingLock reports whether a lock was requested but not yet applied.
func (t *Ticket) IsPendingLock() bool {
	return t.pendingLock
}
