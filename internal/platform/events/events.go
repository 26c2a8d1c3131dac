// Package events carries approval transitions to interested parties: an
// in-process bus for local subscribers and Redis pub/sub for other services.
package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	EntityLeaveRequest = "leave_request"
	EntityKPISet       = "kpi_set"
)

// Event describes one state transition.
type Event struct {
	Type       string    `json:"type"`
	Entity     string    `json:"entity"`
	EntityID   string    `json:"entityId"`
	EmployeeID string    `json:"employeeId"`
	ActorID    string    `json:"actorId"`
	ActorRole  string    `json:"actorRole"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Comment    string    `json:"comment,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
	// Bypassed lists the approvers an emergency path skipped who should be told.
	Bypassed []Approver `json:"bypassed,omitempty"`
	// Silent asks notifiers to stay quiet about this transition.
	Silent bool `json:"silent,omitempty"`
}

// Approver names a chain step holder. An empty ID means any holder of Role.
type Approver struct {
	Role string `json:"role"`
	ID   string `json:"id,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

type BusConfig struct {
	BufferSize int
}

// Bus is a non-blocking local fan-out. Slow channel subscribers drop events.
type Bus struct {
	mu       sync.RWMutex
	subs     map[uint64]chan Event
	handlers map[uint64]func(Event)
	seq      uint64
	buffer   int
}

func NewBus(cfg *BusConfig) *Bus {
	buffer := 1
	if cfg != nil && cfg.BufferSize > 0 {
		buffer = cfg.BufferSize
	}
	return &Bus{
		subs:     make(map[uint64]chan Event),
		handlers: make(map[uint64]func(Event)),
		buffer:   buffer,
	}
}

func (b *Bus) Publish(_ context.Context, evt Event) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.handlers {
		fn(evt)
	}
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Handle registers fn to run synchronously on every published event.
func (b *Bus) Handle(fn func(Event)) func() {
	b.mu.Lock()
	b.seq++
	id := b.seq
	b.handlers[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

type fanout []Publisher

// Fanout publishes to every non-nil publisher and joins their errors.
func Fanout(pubs ...Publisher) Publisher {
	out := make(fanout, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (f fanout) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
