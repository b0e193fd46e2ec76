package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence marks heroes online with expiring keys:
// SET presence:{teacherID}:{studentID} 1 EX ttl
type Presence struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewPresence(client redis.UniversalClient, ttl time.Duration) *Presence {
	return &Presence{client: client, ttl: ttl}
}

func (p *Presence) MarkOnline(ctx context.Context, teacherID, studentID string) error {
	return p.client.Set(ctx, presenceKey(teacherID, studentID), "1", p.ttl).Err()
}

func (p *Presence) MarkOffline(ctx context.Context, teacherID, studentID string) error {
	return p.client.Del(ctx, presenceKey(teacherID, studentID)).Err()
}

// Online scans a teacher's presence keys. Expired keys are gone already.
func (p *Presence) Online(ctx context.Context, teacherID string) (map[string]bool, error) {
	prefix := presenceKey(teacherID, "")
	out := make(map[string]bool)
	iter := p.client.Scan(ctx, 0, escapeGlob(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		out[strings.TrimPrefix(iter.Val(), prefix)] = true
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func presenceKey(teacherID, studentID string) string {
	return "presence:" + teacherID + ":" + studentID
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
