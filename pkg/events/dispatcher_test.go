package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/booknova-api/pkg/jobs"
)

type recordingPublisher struct {
	mu       sync.Mutex
	events   []Event
	failures int
	closed   bool
}

func (p *recordingPublisher) Publish(_ context.Context, evt Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker down")
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func (p *recordingPublisher) published() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

func TestDispatcherPublishesEvents(t *testing.T) {
	pub := &recordingPublisher{failures: 1}
	d := NewDispatcher(pub, jobs.QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 5 * time.Millisecond})
	d.Start(context.Background())

	require.NoError(t, d.Dispatch(LoanCreated, map[string]string{"loan_id": "l-1"}))

	require.Eventually(t, func() bool { return len(pub.published()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, d.Stop(context.Background()))

	evt := pub.published()[0]
	assert.Equal(t, LoanCreated, evt.Type)
	assert.NotEmpty(t, evt.ID)
	assert.True(t, pub.closed)
}

func TestDispatchAfterStopFails(t *testing.T) {
	d := NewDispatcher(&recordingPublisher{}, jobs.QueueConfig{})
	d.Start(context.Background())
	require.NoError(t, d.Stop(context.Background()))

	err := d.Dispatch(LoanReturned, nil)
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	err := p.Publish(context.Background(), Event{ID: "e-1", Type: LoanExtended, Payload: map[string]int{"additional_days": 7}})
	require.NoError(t, err)

	entries := logs.FilterMessage("domain event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, LoanExtended, entries[0].ContextMap()["type"])
	assert.Contains(t, entries[0].ContextMap()["body"], `"additional_days":7`)
}
