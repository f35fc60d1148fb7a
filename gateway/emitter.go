package gateway

import (
	"sync"
	"sync/atomic"

	"github.com/TheRockettek/Sandwich-Gateway/events"
	"github.com/rs/zerolog"
)

// Listener receives events whose kind intersects its mask. Close it when
// done; the emitter removes closed listeners on its next fan-out.
type Listener struct {
	ID   uint64
	Mask events.EventTypeFlags

	// Events carries matching events. The channel is buffered; events
	// for a full mailbox are dropped rather than blocking the shard.
	Events chan events.Event

	closed int32
}

// Close marks the listener dead. The Events channel is closed by the
// emitter once it is unregistered, not by the caller.
func (l *Listener) Close() {
	atomic.StoreInt32(&l.closed, 1)
}

// Closed returns whether Close has been called.
func (l *Listener) Closed() bool {
	return atomic.LoadInt32(&l.closed) == 1
}

// Emitter multicasts gateway and lifecycle events to registered listeners.
// It is shared by every shard in a cluster.
type Emitter struct {
	sync.RWMutex

	counter   uint64
	listeners map[uint64]*Listener

	log zerolog.Logger
}

// NewEmitter creates an empty listener registry.
func NewEmitter(log zerolog.Logger) *Emitter {
	return &Emitter{
		listeners: make(map[uint64]*Listener),
		log:       log,
	}
}

// Add registers a listener for the masked event types. A non positive
// buffer uses the default.
func (e *Emitter) Add(mask events.EventTypeFlags, buffer int) *Listener {
	if buffer <= 0 {
		buffer = BufferSize
	}

	l := &Listener{
		ID:     atomic.AddUint64(&e.counter, 1),
		Mask:   mask,
		Events: make(chan events.Event, buffer),
	}

	e.Lock()
	e.listeners[l.ID] = l
	e.Unlock()

	return l
}

// Remove unregisters a listener and closes its channel.
func (e *Emitter) Remove(id uint64) {
	e.Lock()
	l, ok := e.listeners[id]
	if ok {
		delete(e.listeners, id)
	}
	e.Unlock()

	if ok {
		l.Close()
		close(l.Events)
	}
}

// Emit fans an event out to every listener whose mask matches. Slow
// consumers never block the caller: events for a full mailbox are dropped
// and listeners that closed themselves are removed.
func (e *Emitter) Emit(event events.Event) {
	kind := event.Kind()

	var dead []uint64

	e.RLock()
	for id, l := range e.listeners {
		if l.Closed() {
			dead = append(dead, id)

			continue
		}

		if !l.Mask.Contains(kind) {
			continue
		}

		select {
		case l.Events <- event:
		default:
			e.log.Warn().Uint64("listener", l.ID).Msg("listener mailbox full, dropping event")
		}
	}
	e.RUnlock()

	for _, id := range dead {
		e.Remove(id)
	}
}

// EmitBytes sends the raw bytes of a dispatch frame to listeners that
// opted into the payload stream, avoiding a re-serialization per consumer.
func (e *Emitter) EmitBytes(shardID int, raw []byte) {
	e.RLock()
	interested := false
	for _, l := range e.listeners {
		if l.Mask.Contains(events.EventTypeShardPayload) && !l.Closed() {
			interested = true

			break
		}
	}
	e.RUnlock()

	if !interested {
		return
	}

	data := make([]byte, len(raw))
	copy(data, raw)

	e.Emit(events.ShardPayload{ShardID: shardID, Data: data})
}
