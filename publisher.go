package grain

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/grain/events"
)

// defaultPublishBuffer is the per-stream dispatch queue depth.
const defaultPublishBuffer = 256

// Publisher fans committed events out to subscribers. Each stream gets its
// own dispatcher goroutine, so delivery within a stream preserves commit
// order while streams never block one another.
//
// Delivery is at-least-once: a subscriber error triggers exactly one
// redelivery of the failed event before the dispatcher moves on.
type Publisher struct {
	rt     *Runtime
	buffer int

	mu          sync.Mutex
	dispatchers map[string]*dispatcher
	closed      bool
	wg          sync.WaitGroup

	subsMu    sync.RWMutex
	subs      map[string]map[int64]events.Subscriber
	nextSubID int64
}

type dispatcher struct {
	stream events.Stream
	ch     chan []events.DomainEvent
}

func newPublisher(rt *Runtime, buffer int) *Publisher {
	return &Publisher{
		rt:          rt,
		buffer:      buffer,
		dispatchers: make(map[string]*dispatcher),
		subs:        make(map[string]map[int64]events.Subscriber),
	}
}

// Publisher returns the event publisher.
func (r *Runtime) Publisher() *Publisher {
	return r.publisher
}

// Subscribe registers a subscriber on a stream. Events committed after
// registration are delivered in commit order. The returned Subscription
// detaches the subscriber when no longer needed.
func (p *Publisher) Subscribe(stream events.Stream, sub events.Subscriber) *Subscription {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	key := stream.String()
	if p.subs[key] == nil {
		p.subs[key] = make(map[int64]events.Subscriber)
	}
	p.nextSubID++
	id := p.nextSubID
	p.subs[key][id] = sub

	return &Subscription{p: p, streamKey: key, id: id}
}

// Subscription is a handle to an active stream subscription.
type Subscription struct {
	p         *Publisher
	streamKey string
	id        int64
	once      sync.Once
}

// Unsubscribe detaches the subscriber. Events already handed to the
// dispatcher may still be delivered.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.p.subsMu.Lock()
		defer s.p.subsMu.Unlock()
		delete(s.p.subs[s.streamKey], s.id)
	})
}

// History reads the persisted audit trail for a stream.
func (r *Runtime) History(ctx context.Context, stream events.Stream, opts events.ListOpts) ([]events.DomainEvent, error) {
	return r.store.ListEvents(ctx, stream, opts)
}

// enqueue hands a committed batch to the stream's dispatcher, spawning one
// on first use. The send blocks when the queue is full so commit order is
// never reshuffled by drops.
func (p *Publisher) enqueue(stream events.Stream, evts []events.DomainEvent) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	key := stream.String()
	d := p.dispatchers[key]
	if d == nil {
		d = &dispatcher{
			stream: stream,
			ch:     make(chan []events.DomainEvent, p.buffer),
		}
		p.dispatchers[key] = d
		p.wg.Add(1)
		go p.run(d)
	}
	p.mu.Unlock()

	d.ch <- evts
}

// close drains every dispatcher and waits for in-flight deliveries.
func (p *Publisher) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, d := range p.dispatchers {
		close(d.ch)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Publisher) run(d *dispatcher) {
	defer p.wg.Done()

	for batch := range d.ch {
		start := time.Now()
		for _, evt := range batch {
			p.deliver(d.stream, evt)
		}
		p.rt.plugins.EmitEventsDelivered(context.Background(), d.stream.String(), len(batch), time.Since(start))
	}
}

// deliver hands one event to every current subscriber, retrying each failed
// subscriber once.
func (p *Publisher) deliver(stream events.Stream, evt events.DomainEvent) {
	p.subsMu.RLock()
	subs := make([]events.Subscriber, 0, len(p.subs[stream.String()]))
	for _, sub := range p.subs[stream.String()] {
		subs = append(subs, sub)
	}
	p.subsMu.RUnlock()

	for _, sub := range subs {
		if err := sub(evt); err != nil {
			if err := sub(evt); err != nil {
				p.rt.logger.Warn("subscriber failed after redelivery",
					"stream", stream.String(),
					"event_id", evt.ID.String(),
					"event_type", evt.Type,
					"error", err,
				)
			}
		}
	}
}
