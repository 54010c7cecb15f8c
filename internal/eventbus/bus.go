// Package eventbus fans domain events out to in-process subscribers
// (metrics, the NATS forwarder) without coupling them to the write path.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the controller and the dispatch loop.
const (
	TypeActivity     = "activity"      // Data: model.ActivityLog
	TypeScheduleSet  = "schedule.set"  // Data: ScheduleChange
	TypeDelivery     = "delivery"      // Data: Delivery
	TypeDispatchDone = "dispatch.done" // Data: any report value
)

// Event is a small in-memory signal.
//
// Publish never blocks; subscribers get buffered channels and a slow
// subscriber drops events rather than stalling the publisher.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// ScheduleChange describes a due_at write. Bulk writes set UserID and Count.
type ScheduleChange struct {
	Reason    string    `json:"reason"`
	UserID    int64     `json:"user_id"`
	MessageID int64     `json:"message_id,omitempty"`
	DueAt     time.Time `json:"due_at,omitempty"`
	Count     int64     `json:"count,omitempty"`
}

// Delivery is the outcome of one dispatched job.
type Delivery struct {
	RunID     string `json:"run_id"`
	JobID     int64  `json:"job_id"`
	MessageID int64  `json:"message_id"`
	UserID    int64  `json:"user_id"`
	Status    string `json:"status"`
	Err       string `json:"err,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

// Nop discards everything. Used where no bus is wired.
func Nop() Bus { return nopBus{} }

type nopBus struct{}

func (nopBus) Publish(Event) {}
func (nopBus) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
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
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// The channel may be closed by a concurrent unsubscribe.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
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
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
