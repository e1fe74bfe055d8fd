package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultStreamKey is the Redis list events are appended to.
const DefaultStreamKey = "ticket:events"

// MemoryStore keeps events in process. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// Append records event.
func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of the recorded events, optionally limited to one ticket.
func (s *MemoryStore) Events(ticketID int64) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, len(s.events))
	for _, ev := range s.events {
		if ticketID == 0 || ev.TicketID == ticketID {
			out = append(out, ev)
		}
	}
	return out
}

// RedisStore appends JSON encoded events to a Redis list.
type RedisStore struct {
	R   *redis.Client
	Key string
}

// Append pushes event to the tail of the list.
func (s RedisStore) Append(ctx context.Context, event Event) error {
	if s.R == nil {
		return errors.New("events: redis client not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.R.RPush(ctx, s.key(), data).Err()
}

// Range reads the stored events between start and stop (inclusive, negative
// indexes count from the tail).
func (s RedisStore) Range(ctx context.Context, start, stop int64) ([]Event, error) {
	if s.R == nil {
		return nil, errors.New("events: redis client not configured")
	}
	raw, err := s.R.LRange(ctx, s.key(), start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(raw))
	for _, item := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s RedisStore) key() string {
	if s.Key == "" {
		return DefaultStreamKey
	}
	return s.Key
}

// LogNotifier writes each event to a structured logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify logs event at info level.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Info().
		Str("event_id", event.ID.String()).
		Str("topic", event.Topic).
		Int64("ticket_id", event.TicketID).
		RawJSON("payload", event.Payload).
		Msg("ticket event")
	return nil
}
