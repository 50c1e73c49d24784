// Package progress fans job snapshots out to live subscribers.
package progress

import (
	"sync"

	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
)

const DefaultBuffer = 16

// Subscription receives the snapshots of one job on C until it is
// unsubscribed, which closes C.
type Subscription struct {
	C     <-chan domain.Snapshot
	JobID string

	id uint64
	ch chan domain.Snapshot
}

// Broker is an in-process pub/sub keyed by job ID. Publish never blocks:
// a subscriber whose buffer is full loses its oldest pending snapshot.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]*Subscription
	nextID uint64
	buffer int
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{
		subs:   make(map[string]map[uint64]*Subscription),
		buffer: buffer,
	}
}

func (b *Broker) Subscribe(jobID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	ch := make(chan domain.Snapshot, b.buffer)
	sub := &Subscription{C: ch, JobID: jobID, id: b.nextID, ch: ch}

	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[uint64]*Subscription)
	}
	b.subs[jobID][sub.id] = sub
	return sub
}

// Unsubscribe is safe to call more than once.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	group, ok := b.subs[sub.JobID]
	if !ok {
		return
	}
	if _, ok := group[sub.id]; !ok {
		return
	}
	delete(group, sub.id)
	if len(group) == 0 {
		delete(b.subs, sub.JobID)
	}
	close(sub.ch)
}

func (b *Broker) Publish(snapshot domain.Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[snapshot.JobID] {
		deliver(sub.ch, snapshot)
	}
}

func (b *Broker) Subscribers(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[jobID])
}

func deliver(ch chan domain.Snapshot, snapshot domain.Snapshot) {
	for i := 0; i < 2; i++ {
		select {
		case ch <- snapshot:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
