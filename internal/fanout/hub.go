// Package fanout implements the single-producer/multi-consumer distribution
// of captured audio blocks to a dynamic set of subscribers, with a bounded
// queue and a drop-oldest overflow policy.
package fanout

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Block is one callback's worth of PCM samples. Blocks are never rewritten
// after being handed to the hub; callers must treat the slice as immutable.
type Block []byte

// PushFunc delivers one block to a subscriber. An error is logged and
// swallowed — a broken subscriber must not starve the others, and the hub
// never auto-evicts on repeated failure (see the design notes on that open
// question).
type PushFunc func(Block) error

// Source is the capture-side collaborator the hub drives. It is satisfied
// by *capture.Source; the interface exists so the hub can be tested
// without opening a real audio device.
type Source interface {
	Start() error
	Stop() error
}

// CaptureDropped is reported (via the running counter, not an error value)
// whenever the bounded queue overflows and the oldest block is discarded.
// It is never fatal.

// Hub owns the bounded block queue and the subscriber set. The zero value
// is not usable; construct with New.
type Hub struct {
	queueCap int

	mu    sync.Mutex
	queue []Block

	notify chan struct{} // buffered(1): wakes the distributor when non-empty

	subMu sync.RWMutex
	subs  map[uint64]PushFunc

	dropped atomic.Uint64
	running atomic.Bool

	stopCh  chan struct{}
	stopped chan struct{}
}

// New constructs a Hub with the given bounded queue capacity. capacity<=0
// is treated as the data model's documented default of 256.
func New(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		queueCap: capacity,
		notify:   make(chan struct{}, 1),
		subs:     make(map[uint64]PushFunc),
	}
}

// Start opens source, runs the distributor loop, and blocks until a
// subsequent Stop is called. Re-entry while already running is a no-op
// that returns immediately.
func (h *Hub) Start(source Source) error {
	if !h.running.CompareAndSwap(false, true) {
		return nil
	}

	if err := source.Start(); err != nil {
		h.running.Store(false)
		return err
	}

	h.stopCh = make(chan struct{})
	h.stopped = make(chan struct{})

	go h.distribute()

	<-h.stopCh
	_ = source.Stop()
	close(h.stopped)
	return nil
}

// Stop is idempotent. It cancels the distributor, clears subscribers, and
// unblocks a pending Start call, which itself closes the capture source.
func (h *Hub) Stop() {
	if !h.running.CompareAndSwap(true, false) {
		return
	}

	h.subMu.Lock()
	h.subs = make(map[uint64]PushFunc)
	h.subMu.Unlock()

	h.mu.Lock()
	h.queue = nil
	h.mu.Unlock()

	close(h.stopCh)
	<-h.stopped
}

// Enqueue is the thread-to-async bridge: it is safe to call from the
// capture driver's own thread. It performs a non-blocking push guarded by a
// mutex so the queue is only ever mutated under that single lock, dropping
// the oldest buffered block when the queue is already at capacity.
func (h *Hub) Enqueue(b Block) {
	h.mu.Lock()
	if len(h.queue) >= h.queueCap {
		h.queue = h.queue[1:]
		h.dropped.Add(1)
	}
	h.queue = append(h.queue, b)
	h.mu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Dropped returns the running count of blocks discarded by queue overflow.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Len returns the current queue depth; it never exceeds the configured
// capacity.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}

// SubscriberCount returns the number of currently registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.subMu.RLock()
	defer h.subMu.RUnlock()
	return len(h.subs)
}

// Subscribe adds or replaces the push function registered for id.
func (h *Hub) Subscribe(id uint64, push PushFunc) {
	h.subMu.Lock()
	h.subs[id] = push
	h.subMu.Unlock()
}

// Unsubscribe removes the record for id. Absence is logged, not fatal.
func (h *Hub) Unsubscribe(id uint64) {
	h.subMu.Lock()
	_, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.subMu.Unlock()

	if !ok {
		slog.Warn("unsubscribe of unknown subscriber", "component", "fanout", "subscriber_id", id)
	}
}

// distribute pops one block at a time and fans it out to every current
// subscriber concurrently, waiting for all pushes before pulling the next
// block. A slow subscriber therefore delays delivery to everyone else — an
// accepted trade-off for a low-latency live stream with drop-oldest queueing
// upstream of it.
func (h *Hub) distribute() {
	for {
		select {
		case <-h.stopCh:
			return
		case <-h.notify:
		}

		for {
			block, ok := h.pop()
			if !ok {
				break
			}

			h.subMu.RLock()
			targets := make(map[uint64]PushFunc, len(h.subs))
			for id, push := range h.subs {
				targets[id] = push
			}
			h.subMu.RUnlock()

			if len(targets) == 0 {
				continue
			}

			var wg sync.WaitGroup
			wg.Add(len(targets))
			for id, push := range targets {
				go func(id uint64, push PushFunc) {
					defer wg.Done()
					defer func() {
						if r := recover(); r != nil {
							slog.Error("subscriber push panicked", "component", "fanout", "subscriber_id", id, "panic", fmt.Sprint(r))
						}
					}()
					if err := push(block); err != nil {
						slog.Debug("subscriber push failed", "component", "fanout", "subscriber_id", id, "err", err)
					}
				}(id, push)
			}
			wg.Wait()

			select {
			case <-h.stopCh:
				return
			default:
			}
		}
	}
}

func (h *Hub) pop() (Block, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return nil, false
	}
	b := h.queue[0]
	h.queue = h.queue[1:]
	return b, true
}
