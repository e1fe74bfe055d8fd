package ticketsvc

import (
	"context"
	"errors"
	"sync"

	"github.com/noah-isme/ticket-engine/internal/ticket"
)

// ErrNotFound indicates the requested ticket could not be located.
var ErrNotFound = errors.New("ticket not found")

// Store persists tickets. Save assigns the ticket identity; Commit additionally
// assigns identities to every uncommitted order, modifier, calculation and payment.
type Store interface {
	Get(ctx context.Context, id int64) (*ticket.Ticket, error)
	Save(ctx context.Context, t *ticket.Ticket) error
	Commit(ctx context.Context, t *ticket.Ticket) error
	CountOpen(ctx context.Context) (int, error)
}

// MemoryStore keeps tickets in process. Callers serialize access to a single
// ticket through a Locker; the store only guards its own index.
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[int64]*ticket.Ticket
	// open mirrors the closed flag as of the last save so counting never reads a ticket
	// another caller holds.
	open   map[int64]bool
	lastID int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[int64]*ticket.Ticket), open: make(map[int64]bool)}
}

// Get returns the stored ticket.
func (s *MemoryStore) Get(_ context.Context, id int64) (*ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// Save stores t, assigning its identity on first save.
func (s *MemoryStore) Save(_ context.Context, t *ticket.Ticket) error {
	if t == nil {
		return errors.New("ticket is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tickets == nil {
		s.tickets = make(map[int64]*ticket.Ticket)
		s.open = make(map[int64]bool)
	}
	id, ok := t.ID.Value()
	if !ok {
		id = s.next()
		t.ID = ticket.Assigned(id)
	}
	s.tickets[id] = t
	s.open[id] = !t.IsClosed
	return nil
}

// Commit saves t and assigns identities to its uncommitted lines.
func (s *MemoryStore) Commit(ctx context.Context, t *ticket.Ticket) error {
	if err := s.Save(ctx, t); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range t.Orders {
		if !o.ID.IsAssigned() {
			o.ID = ticket.Assigned(s.next())
		}
		for i := range o.Modifiers {
			if !o.Modifiers[i].ID.IsAssigned() {
				o.Modifiers[i].ID = ticket.Assigned(s.next())
			}
		}
	}
	for _, c := range t.Calculations {
		if !c.ID.IsAssigned() {
			c.ID = ticket.Assigned(s.next())
		}
	}
	for _, p := range t.Payments {
		if !p.ID.IsAssigned() {
			p.ID = ticket.Assigned(s.next())
		}
	}
	return nil
}

// CountOpen returns the number of tickets that are not closed.
func (s *MemoryStore) CountOpen(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, open := range s.open {
		if open {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) next() int64 {
	s.lastID++
	return s.lastID
}
