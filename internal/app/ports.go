package app

import (
	"context"
	"io"
	"time"

	"academy-of-heroes/internal/domain"
)

// DefinitionLoader fetches battle content from the backing store.
type DefinitionLoader interface {
	LoadDefinition(ctx context.Context, teacherID, battleID string) (domain.BattleDefinition, error)
}

// DefinitionRepository serves battle content, usually through a cache.
type DefinitionRepository interface {
	GetDefinition(ctx context.Context, teacherID, battleID string) (domain.BattleDefinition, error)
	Invalidate(ctx context.Context, teacherID, battleID string)
}

// Broadcaster fans committed live battle states out to listeners of a teacher's battle.
type Broadcaster interface {
	Publish(ctx context.Context, teacherID string, state domain.LiveBattleState) error
	// Subscribe returns a channel of states. The caller must invoke the
	// returned cancel function to avoid leaks.
	Subscribe(ctx context.Context, teacherID string) (<-chan domain.LiveBattleState, func(), error)
}

// PresenceTracker records which heroes currently have the game open.
type PresenceTracker interface {
	MarkOnline(ctx context.Context, teacherID, studentID string) error
	MarkOffline(ctx context.Context, teacherID, studentID string) error
	Online(ctx context.Context, teacherID string) (map[string]bool, error)
}

// BlobStore holds uploaded files and hands out expiring download links.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
	SignedURL(key string, ttl time.Duration) (string, error)
}

// Generator produces AI-written content.
type Generator interface {
	GenerateQuestions(ctx context.Context, topic string, count int) ([]domain.Question, error)
	GenerateText(ctx context.Context, prompt string) (string, error)
}
