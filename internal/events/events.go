// Package events carries catalog changes to the index as explicit messages.
// A single consumer applies them in publication order, which serializes index
// mutations without the producers ever touching the index lock.
package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pixseek/pixseek/internal/record"
)

// Kind identifies what happened to an item.
type Kind string

const (
	KindItemCreated       Kind = "item_created"
	KindItemDeleted       Kind = "item_deleted"
	KindVisibilityChanged Kind = "visibility_changed"
)

// Event is one catalog change. Record is set for created and visibility
// events; ItemID alone is enough for deletes.
type Event struct {
	Kind   Kind
	Record record.Record
	ItemID string
	Public bool
}

// Applier receives events in order. The index manager implements this.
type Applier interface {
	OnItemCreated(ctx context.Context, rec record.Record) error
	OnItemDeleted(ctx context.Context, itemID string) error
	OnVisibilityChanged(ctx context.Context, rec record.Record, public bool) error
}

// Pipeline is a buffered channel with one consuming goroutine. Publish never
// blocks the caller beyond the buffer; apply errors are logged, not
// propagated, because the producer has already moved on.
type Pipeline struct {
	applier Applier
	logger  *zap.Logger
	ch      chan Event
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewPipeline returns a pipeline with the given buffer size. size <= 0 means 64.
func NewPipeline(applier Applier, size int, logger *zap.Logger) *Pipeline {
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		applier: applier,
		logger:  logger,
		ch:      make(chan Event, size),
	}
}

// Start launches the consumer. Events are applied one at a time in the order
// they were published. Stops when the context is canceled or Stop is called.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-p.ch:
				if !ok {
					return
				}
				if err := p.apply(ctx, ev); err != nil {
					p.logger.Error("failed to apply event",
						zap.String("kind", string(ev.Kind)),
						zap.String("item", eventItemID(ev)),
						zap.Error(err))
				}
			}
		}
	}()
}

// Publish enqueues an event. Returns an error when the pipeline is stopped or
// the buffer is full; callers can retry or drop, but a full buffer means the
// consumer is badly behind.
func (p *Pipeline) Publish(ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("event pipeline stopped")
	}

	select {
	case p.ch <- ev:
		return nil
	default:
		return fmt.Errorf("event buffer full, dropping %s", ev.Kind)
	}
}

// Stop closes the intake and waits for queued events to be applied.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.ch)
	p.wg.Wait()
}

func (p *Pipeline) apply(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case KindItemCreated:
		return p.applier.OnItemCreated(ctx, ev.Record)
	case KindItemDeleted:
		return p.applier.OnItemDeleted(ctx, ev.ItemID)
	case KindVisibilityChanged:
		return p.applier.OnVisibilityChanged(ctx, ev.Record, ev.Public)
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

func eventItemID(ev Event) string {
	if ev.ItemID != "" {
		return ev.ItemID
	}
	return ev.Record.Key()
}
