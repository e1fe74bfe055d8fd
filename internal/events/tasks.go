package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTypePrefix prefixes the asynq task type of every forwarded event.
const TaskTypePrefix = "ticket:event:"

// TaskEnqueuer is the subset of *asynq.Client used to forward events.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskNotifier forwards events to background workers, e.g. kitchen printers for
// submitted orders. Only topics listed in Topics are forwarded; an empty set forwards all.
type TaskNotifier struct {
	Client   TaskEnqueuer
	Topics   map[string]bool
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

// Notify enqueues event as a task. The event ID is the task ID so a replayed event is not queued twice.
func (n TaskNotifier) Notify(ctx context.Context, event Event) error {
	if n.Client == nil {
		return errors.New("events: task client not configured")
	}
	if len(n.Topics) > 0 && !n.Topics[event.Topic] {
		return nil
	}
	task, err := NewEventTask(event)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(event.ID.String())}
	if n.Queue != "" {
		opts = append(opts, asynq.Queue(n.Queue))
	}
	if n.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(n.MaxRetry))
	}
	if n.Timeout > 0 {
		opts = append(opts, asynq.Timeout(n.Timeout))
	}
	if _, err := n.Client.EnqueueContext(ctx, task, opts...); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}

// NewEventTask wraps event in an asynq task typed by its topic.
func NewEventTask(event Event) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("events: encode task: %w", err)
	}
	return asynq.NewTask(TaskTypePrefix+event.Topic, payload), nil
}

// DecodeEventTask recovers the event carried by task.
func DecodeEventTask(task *asynq.Task) (Event, error) {
	if !strings.HasPrefix(task.Type(), TaskTypePrefix) {
		return Event{}, fmt.Errorf("events: unexpected task type %q", task.Type())
	}
	var ev Event
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return Event{}, fmt.Errorf("events: decode task: %w", err)
	}
	return ev, nil
}
