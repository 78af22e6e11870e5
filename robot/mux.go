package robot

import (
	"log/slog"
	"sync"
)

// StreamMux fans backend events out to registered consumers, one delivery
// lane per stream kind so a slow consumer cannot stall the other kinds.
//
// Per-kind guarantees: delivery order equals emission order, no duplication.
// Joints and Audio lanes buffer at most one event and replace a stale one
// with the newest (freshness over completeness); the Touch lane never drops.
// Remove is synchronous: once it returns, the removed consumer will not be
// called again, even for an event that was in flight.
type StreamMux struct {
	lanes [3]*lane
	wg    sync.WaitGroup
}

type lane struct {
	kind       StreamKind
	dropOldest bool

	mu         sync.Mutex
	cond       *sync.Cond
	queue      []StreamEvent
	consumer   Consumer
	delivering bool
	closed     bool
}

func NewStreamMux() *StreamMux {
	m := &StreamMux{}
	for _, kind := range []StreamKind{StreamTouch, StreamJoints, StreamAudio} {
		l := &lane{kind: kind, dropOldest: kind != StreamTouch}
		l.cond = sync.NewCond(&l.mu)
		m.lanes[kind] = l
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			l.run()
		}()
	}
	return m
}

// Set registers consumer for the given kind, replacing any previous one.
// Events buffered for the previous consumer are discarded.
func (m *StreamMux) Set(kind StreamKind, consumer Consumer) {
	l := m.lanes[kind]
	l.mu.Lock()
	l.queue = nil
	l.consumer = consumer
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Remove deregisters the consumer for kind. It blocks until any in-flight
// delivery on that lane has completed, so the caller can rely on no further
// callbacks after return.
func (m *StreamMux) Remove(kind StreamKind) {
	l := m.lanes[kind]
	l.mu.Lock()
	l.consumer = nil
	l.queue = nil
	for l.delivering {
		l.cond.Wait()
	}
	l.mu.Unlock()
}

// Active reports whether a consumer is registered for kind.
func (m *StreamMux) Active(kind StreamKind) bool {
	l := m.lanes[kind]
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.consumer != nil
}

// Deliver enqueues an event on its lane. It never blocks: Touch events are
// appended, Joints/Audio replace the single buffered slot. Events arriving
// with no consumer registered are dropped.
func (m *StreamMux) Deliver(ev StreamEvent) {
	l := m.lanes[ev.Kind]
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.consumer == nil {
		return
	}
	if l.dropOldest && len(l.queue) > 0 {
		slog.Debug("Replacing stale buffered event", "stream", ev.Kind.String())
		l.queue[len(l.queue)-1] = ev
	} else {
		l.queue = append(l.queue, ev)
	}
	l.cond.Broadcast()
}

// Close stops all delivery lanes and waits for their goroutines to exit.
// The mux cannot be reused afterwards.
func (m *StreamMux) Close() {
	for _, l := range m.lanes {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.consumer = nil
		l.cond.Broadcast()
		l.mu.Unlock()
	}
	m.wg.Wait()
}

func (l *lane) run() {
	for {
		l.mu.Lock()
		for !l.closed && (len(l.queue) == 0 || l.consumer == nil) {
			l.cond.Wait()
		}
		if l.closed {
			l.mu.Unlock()
			return
		}
		ev := l.queue[0]
		l.queue = l.queue[1:]
		consumer := l.consumer
		l.delivering = true
		l.mu.Unlock()

		consumer(ev)

		l.mu.Lock()
		l.delivering = false
		l.cond.Broadcast()
		l.mu.Unlock()
	}
}
