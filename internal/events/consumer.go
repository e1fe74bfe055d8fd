package events

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Consumer processes forwarded ticket events on the worker side.
type Consumer struct {
	Logger zerolog.Logger
	// Handle receives every decoded event. Nil only logs.
	Handle func(ctx context.Context, event Event) error
}

// Register mounts the consumer on mux for topics.
func (c Consumer) Register(mux *asynq.ServeMux, topics ...string) {
	for _, topic := range topics {
		mux.HandleFunc(TaskTypePrefix+topic, c.ProcessTask)
	}
}

// ProcessTask decodes the task and hands the event on. Undecodable tasks are not retried.
func (c Consumer) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ev, err := DecodeEventTask(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	c.Logger.Info().
		Str("event_id", ev.ID.String()).
		Str("topic", ev.Topic).
		Int64("ticket_id", ev.TicketID).
		RawJSON("payload", ev.Payload).
		Msg("ticket event received")
	if c.Handle == nil {
		return nil
	}
	return c.Handle(ctx, ev)
}
