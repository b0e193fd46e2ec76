package memory

import (
	"context"
	"sync"
	"time"
)

// Presence tracks online heroes in process. Marks expire after ttl unless
// refreshed, mirroring the Redis implementation.
type Presence struct {
	ttl   time.Duration
	clock func() time.Time

	mu     sync.Mutex
	online map[string]map[string]time.Time
}

func NewPresence(ttl time.Duration) *Presence {
	return &Presence{ttl: ttl, clock: time.Now, online: make(map[string]map[string]time.Time)}
}

func (p *Presence) MarkOnline(_ context.Context, teacherID, studentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.online[teacherID]
	if !ok {
		m = make(map[string]time.Time)
		p.online[teacherID] = m
	}
	m[studentID] = p.clock().Add(p.ttl)
	return nil
}

func (p *Presence) MarkOffline(_ context.Context, teacherID, studentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online[teacherID], studentID)
	if len(p.online[teacherID]) == 0 {
		delete(p.online, teacherID)
	}
	return nil
}

func (p *Presence) Online(_ context.Context, teacherID string) (map[string]bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock()
	out := make(map[string]bool)
	for id, expires := range p.online[teacherID] {
		if p.ttl <= 0 || expires.After(now) {
			out[id] = true
		}
	}
	return out, nil
}
