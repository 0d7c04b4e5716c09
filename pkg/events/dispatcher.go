package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/booknova-api/pkg/jobs"
)

// Dispatcher hands events to a Publisher asynchronously through a worker queue.
type Dispatcher struct {
	queue     *jobs.Queue
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewDispatcher wires publisher behind a jobs.Queue configured by cfg.
func NewDispatcher(publisher Publisher, cfg jobs.QueueConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	d := &Dispatcher{publisher: publisher, logger: cfg.Logger, now: time.Now}
	d.queue = jobs.NewQueue("events", d.handle, cfg)
	return d
}

// Start launches the dispatch workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains pending events until ctx expires and closes the publisher.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.queue.Stop(ctx)
	return d.publisher.Close()
}

// Dispatch queues an event of the given type. It never blocks on the broker.
func (d *Dispatcher) Dispatch(eventType string, payload interface{}) error {
	evt := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: d.now().UTC(),
		Payload:    payload,
	}
	if err := d.queue.Enqueue(jobs.Job{ID: evt.ID, Type: evt.Type, Payload: evt}); err != nil {
		return fmt.Errorf("dispatch %s: %w", eventType, err)
	}
	return nil
}

// Stats exposes the underlying queue counters.
func (d *Dispatcher) Stats() jobs.Stats {
	return d.queue.Stats()
}

func (d *Dispatcher) handle(ctx context.Context, job jobs.Job) error {
	evt, ok := job.Payload.(Event)
	if !ok {
		d.logger.Error("unexpected event payload", zap.String("job_id", job.ID))
		return nil
	}
	return d.publisher.Publish(ctx, evt)
}
