// Package eventbus is an in-process fanout of job lifecycle signals.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// TypeJobEnqueued carries a JobEnqueued.
	TypeJobEnqueued = "job.enqueued"
	// TypePassCompleted carries a PassCompleted.
	TypePassCompleted = "scheduler.pass"
)

// Event is a small signal used to decouple components.
//
// Publish never blocks. A subscriber whose buffer is full misses events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type JobEnqueued struct {
	JobID        int64
	ConnectionID string
	ConfigType   string
	Trigger      string // "schedule" | "manual"
}

type PassCompleted struct {
	Evaluated int
	Enqueued  int
	Skipped   int
	Failed    int
	Took      time.Duration
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock so unsubscribe cannot close a channel
	// mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
