// Package bus provides an in-process, name-addressed publish/subscribe
// broker modeled after a platform notification center.
//
// Messages are addressed by channel name and carry an untyped flat payload,
// since the broker stands in for a boundary with no shared type system.
// All observer callbacks run on a single dispatch goroutine, so two
// deliveries never race each other and a delivery never races the
// registration of a new observer.
package bus

import "sync"

// Payload is the untyped dictionary attached to every message.
// Values are strings, bools, or string slices depending on the field.
type Payload map[string]any

// Handler receives a published payload on the dispatch goroutine.
// Handlers must not block; long-running work belongs in a goroutine
// spawned by the handler.
type Handler func(Payload)

// Token identifies a registered observer so it can be removed later.
// The zero Token is valid and removing it is a no-op.
type Token struct {
	name string
	id   uint64
}

type observer struct {
	id uint64
	fn Handler
}

type delivery struct {
	name      string
	observers []observer
	payload   Payload
}

// Bus is a name-addressed broadcast broker with serial dispatch.
// It is safe for concurrent use by multiple goroutines.
type Bus struct {
	mu        sync.Mutex
	cond      *sync.Cond
	observers map[string][]observer
	pending   []delivery
	next      uint64
	closed    bool
	done      chan struct{}
}

// New creates a Bus and starts its dispatch goroutine.
func New() *Bus {
	b := &Bus{
		observers: make(map[string][]observer),
		done:      make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	go b.dispatch()
	return b
}

// AddObserver registers fn for messages published on the named channel.
// The returned Token must be passed to RemoveObserver when the observer
// is no longer needed; the bus holds a strong reference until then.
func (b *Bus) AddObserver(name string, fn Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.observers[name] = append(b.observers[name], observer{id: b.next, fn: fn})
	return Token{name: name, id: b.next}
}

// RemoveObserver deregisters the observer identified by t.
// It is idempotent: removing a token twice, or a token whose observer
// never existed, is a no-op.
func (b *Bus) RemoveObserver(t Token) {
	if t.id == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	obs := b.observers[t.name]
	for i, o := range obs {
		if o.id == t.id {
			b.observers[t.name] = append(obs[:i:i], obs[i+1:]...)
			break
		}
	}
	if len(b.observers[t.name]) == 0 {
		delete(b.observers, t.name)
	}
}

// Publish delivers payload to every observer currently registered on the
// named channel. The observer set is snapshotted at publish time, so an
// observer registered before Publish is guaranteed to see the message
// even though the callbacks run later on the dispatch goroutine.
// Publish never blocks and never invokes handlers inline.
func (b *Bus) Publish(name string, payload Payload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	obs := b.observers[name]
	if len(obs) == 0 {
		return
	}
	snapshot := make([]observer, len(obs))
	copy(snapshot, obs)
	b.pending = append(b.pending, delivery{name: name, observers: snapshot, payload: payload})
	b.cond.Signal()
}

// Close stops the dispatch goroutine after draining already-published
// messages. Publishing on a closed bus is a silent no-op.
// Close must not be called from an observer callback.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.cond.Signal()
	b.mu.Unlock()
	<-b.done
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for {
		b.mu.Lock()
		for len(b.pending) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.pending) == 0 && b.closed {
			b.mu.Unlock()
			return
		}
		d := b.pending[0]
		b.pending = b.pending[1:]
		// An observer removed between publish and dispatch must not fire.
		live := make(map[uint64]bool, len(b.observers[d.name]))
		for _, o := range b.observers[d.name] {
			live[o.id] = true
		}
		b.mu.Unlock()

		for _, o := range d.observers {
			if live[o.id] {
				o.fn(d.payload)
			}
		}
	}
}
