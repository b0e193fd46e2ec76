package memory

import (
	"context"
	"sync"

	"academy-of-heroes/internal/domain"
)

// Broadcaster fans live battle states out to in-process subscribers.
type Broadcaster struct {
	mu     sync.Mutex
	topics map[string]map[chan domain.LiveBattleState]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{topics: make(map[string]map[chan domain.LiveBattleState]struct{})}
}

func (b *Broadcaster) Publish(_ context.Context, teacherID string, state domain.LiveBattleState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.topics[teacherID] {
		offer(ch, state)
	}
	return nil
}

func (b *Broadcaster) Subscribe(_ context.Context, teacherID string) (<-chan domain.LiveBattleState, func(), error) {
	ch := make(chan domain.LiveBattleState, 8)

	b.mu.Lock()
	subs, ok := b.topics[teacherID]
	if !ok {
		subs = make(map[chan domain.LiveBattleState]struct{})
		b.topics[teacherID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.topics[teacherID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(b.topics, teacherID)
		}
	}
	return ch, cancel, nil
}

// Subscribers returns how many listeners a teacher's battle has.
func (b *Broadcaster) Subscribers(teacherID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[teacherID])
}

// offer delivers state without blocking: when the buffer is full the oldest
// pending state is dropped, since only the newest state matters to a listener.
func offer(ch chan domain.LiveBattleState, state domain.LiveBattleState) {
	for {
		select {
		case ch <- state:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
