package events

import "sync"

// Emitter delivers events to exactly one subscriber in publish order.
// Publish never waits for the subscriber: events queue in an unbounded
// buffer drained by a pump goroutine.
type Emitter struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool

	out       chan Event
	abort     chan struct{}
	abortOnce sync.Once
}

// NewEmitter starts an emitter.
func NewEmitter() *Emitter {
	e := &Emitter{
		out:   make(chan Event),
		abort: make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.pump()
	return e
}

// Events returns the subscriber channel. It is closed after Close once every
// queued event has been received, or immediately after Abort.
func (e *Emitter) Events() <-chan Event { return e.out }

// Publish queues ev and reports whether it was accepted. Events published
// after Close are dropped.
func (e *Emitter) Publish(ev Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.queue = append(e.queue, ev)
	e.cond.Signal()
	return true
}

// Close stops accepting events. Queued events are still delivered before the
// channel is closed.
func (e *Emitter) Close() {
	e.mu.Lock()
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()
}

// Abort closes the emitter and drops undelivered events. The subscriber
// channel closes without waiting for a reader.
func (e *Emitter) Abort() {
	e.abortOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.queue = nil
		e.cond.Broadcast()
		e.mu.Unlock()
		close(e.abort)
	})
}

func (e *Emitter) pump() {
	defer close(e.out)

	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		ev := e.queue[0]
		e.queue[0] = Event{}
		e.queue = e.queue[1:]
		e.mu.Unlock()

		select {
		case e.out <- ev:
		case <-e.abort:
			return
		}
	}
}
