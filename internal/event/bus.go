// Package event carries classification, skew and bulk-job notifications
// between services of one process.
package event

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Type identifies a category of event.
type Type string

// Known event types.
const (
	ArtistClassified   Type = "artist.classified"
	ArtistUnclassified Type = "artist.unclassified"
	TaxonomyRejected   Type = "taxonomy.rejected"
	SkewDetected       Type = "skew.detected"
	SkewCorrected      Type = "skew.corrected"
	BulkCompleted      Type = "bulk.completed"
)

// Event represents something that happened in the system.
type Event struct {
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler is a function that processes an event.
type Handler func(Event)

// Counts tallies what happened to events of one type.
type Counts struct {
	Published  int `json:"published"`
	Dropped    int `json:"dropped"`
	Dispatched int `json:"dispatched"`
}

// Bus is an in-process event bus backed by a buffered channel. One
// goroutine runs Start; Stop drains the buffer and waits for it.
type Bus struct {
	ch     chan Event
	logger *slog.Logger

	mu       sync.RWMutex
	subs     map[Type][]Handler
	all      []Handler
	started  bool
	stopped  bool
	done     chan struct{}
	finished chan struct{}

	statsMu sync.Mutex
	stats   map[Type]*Counts
}

// NewBus creates a new event bus with the given buffer size.
func NewBus(logger *slog.Logger, bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{
		ch:       make(chan Event, bufSize),
		logger:   logger.With(slog.String("component", "event-bus")),
		subs:     make(map[Type][]Handler),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		stats:    make(map[Type]*Counts),
	}
}

// Subscribe registers a handler for the given event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// SubscribeAll registers a handler for every event type. It runs after the
// type-specific handlers.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish queues an event without blocking. Events are dropped when the
// buffer is full or the bus has stopped. A nil Bus discards the event.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	stopped := b.stopped
	b.mu.RUnlock()
	if stopped {
		b.count(e.Type, func(c *Counts) { c.Dropped++ })
		b.logger.Debug("bus stopped, dropping event", "type", string(e.Type))
		return
	}

	select {
	case b.ch <- e:
		b.count(e.Type, func(c *Counts) { c.Published++ })
	default:
		b.count(e.Type, func(c *Counts) { c.Dropped++ })
		b.logger.Warn("event bus full, dropping event", "type", string(e.Type))
	}
}

// Start dispatches queued events until Stop is called, then drains the
// buffer and returns. Call it in a goroutine. Calls after the first, or
// after Stop, return immediately.
func (b *Bus) Start() {
	b.mu.Lock()
	if b.started || b.stopped {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()
	defer close(b.finished)

	for {
		select {
		case e := <-b.ch:
			b.dispatch(e)
		case <-b.done:
			for {
				select {
				case e := <-b.ch:
					b.dispatch(e)
				default:
					return
				}
			}
		}
	}
}

// Stop ends dispatching. When Start is running, Stop returns only after the
// buffer has been drained and the last handler has returned. Handlers must
// not call Stop.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.stopped {
		b.stopped = true
		close(b.done)
	}
	started := b.started
	b.mu.Unlock()

	if started {
		<-b.finished
	}
}

// Stats returns a copy of the per-type counters.
func (b *Bus) Stats() map[Type]Counts {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	out := make(map[Type]Counts, len(b.stats))
	for t, c := range b.stats {
		out[t] = *c
	}
	return out
}

// Types returns the event types seen so far, sorted.
func (b *Bus) Types() []Type {
	stats := b.Stats()
	out := make([]Type, 0, len(stats))
	for t := range stats {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (b *Bus) count(t Type, fn func(*Counts)) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	c, ok := b.stats[t]
	if !ok {
		c = &Counts{}
		b.stats[t] = c
	}
	fn(c)
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[e.Type])+len(b.all))
	handlers = append(handlers, b.subs[e.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", "type", string(e.Type), "panic", r)
				}
			}()
			h(e)
		}()
	}
	b.count(e.Type, func(c *Counts) { c.Dispatched++ })
}
