package events

import (
	"context"
	"sync"

	"github.com/cleaveai/cleave/pkg/errors"
	"github.com/cleaveai/cleave/pkg/interfaces"
	"github.com/cleaveai/cleave/pkg/types"
)

// NoopPublisher discards every event. It is the default publisher when
// eventing is disabled, so the pipeline never needs a nil check.
type NoopPublisher struct{}

var _ interfaces.EventPublisher = (*NoopPublisher)(nil)

// NewNoopPublisher creates a publisher that discards events
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

// Publish discards the event
func (p *NoopPublisher) Publish(ctx context.Context, event *types.DocumentChunked) error {
	return nil
}

// Close is a no-op
func (p *NoopPublisher) Close() error {
	return nil
}

// MemoryPublisher records events in memory. It backs tests and local
// development where no broker is running.
type MemoryPublisher struct {
	mu     sync.RWMutex
	events []*types.DocumentChunked
	closed bool
}

var _ interfaces.EventPublisher = (*MemoryPublisher)(nil)

// NewMemoryPublisher creates an in-memory event recorder
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records a copy of the event
func (p *MemoryPublisher) Publish(ctx context.Context, event *types.DocumentChunked) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event == nil {
		return errors.NewMissingFieldError("event")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.NewEventError("publisher is closed", nil)
	}

	recorded := *event
	p.events = append(p.events, &recorded)
	return nil
}

// Events returns the recorded events in publish order
func (p *MemoryPublisher) Events() []*types.DocumentChunked {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*types.DocumentChunked, len(p.events))
	copy(out, p.events)
	return out
}

// Close stops the recorder; later publishes fail
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
