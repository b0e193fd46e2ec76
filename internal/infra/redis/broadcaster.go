package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"academy-of-heroes/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Broadcaster fans live battle states out over Redis pub/sub so that every
// server instance can stream a teacher's battle.
type Broadcaster struct {
	client redis.UniversalClient
	logger *zap.Logger
}

func NewBroadcaster(client redis.UniversalClient, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{client: client, logger: logger}
}

func (b *Broadcaster) Publish(ctx context.Context, teacherID string, state domain.LiveBattleState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode live battle: %w", err)
	}
	return b.client.Publish(ctx, channel(teacherID), data).Err()
}

// Subscribe returns once Redis has confirmed the subscription, so no state
// published after it returns is missed.
func (b *Broadcaster) Subscribe(ctx context.Context, teacherID string) (<-chan domain.LiveBattleState, func(), error) {
	ps := b.client.Subscribe(ctx, channel(teacherID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", channel(teacherID), err)
	}

	out := make(chan domain.LiveBattleState, 8)
	msgs := ps.Channel()
	go func() {
		defer close(out)
		for msg := range msgs {
			var state domain.LiveBattleState
			if err := json.Unmarshal([]byte(msg.Payload), &state); err != nil {
				b.logger.Warn("dropping malformed live battle message",
					zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			offer(out, state)
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = ps.Close() })
	}
	return out, cancel, nil
}

func channel(teacherID string) string {
	return "battle:live:" + teacherID
}

// offer never blocks the reader goroutine; a slow listener loses the oldest
// pending state.
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
