package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultTTL = 30 * time.Second

var (
	// ErrNotConfigured is returned by a Redis locker without a client.
	ErrNotConfigured = errors.New("lock: redis client not configured")
	// ErrNoCallback is returned when WithLock receives a nil fn.
	ErrNoCallback = errors.New("lock: callback not provided")
)

// Locker runs fn while holding an exclusive lock on key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// TicketKey is the lock key guarding mutations of one ticket.
func TicketKey(ticketID int64) string {
	return fmt.Sprintf("ticket:lock:%d", ticketID)
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}
