package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"academy-of-heroes/internal/app"
	"academy-of-heroes/internal/domain"
	"academy-of-heroes/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestDefinitionRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	loader := &countingLoader{
		DefinitionLoader: memory.NewStaticDefinitionLoader(map[string]domain.BattleDefinition{
			"t1/b1": sampleDefinition(),
		}),
	}
	repo := NewDefinitionRepository(client, loader, time.Minute)

	def, err := repo.GetDefinition(context.Background(), "t1", "b1")
	if err != nil {
		t.Fatalf("get definition: %v", err)
	}
	if def.BossName != "Hydra of Fractions" {
		t.Fatalf("unexpected boss %q", def.BossName)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls.Load())
	}
	if !mr.Exists("battle:def:t1:b1") {
		t.Fatalf("expected definition cached in redis")
	}
	if ttl := mr.TTL("battle:def:t1:b1"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("unexpected ttl %s", ttl)
	}

	// Second call should hit cache, loader not incremented.
	def, err = repo.GetDefinition(context.Background(), "t1", "b1")
	if err != nil {
		t.Fatalf("get cached definition: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls.Load())
	}
	if len(def.Questions) != 1 || def.Questions[0].CorrectAnswerIndex != 1 {
		t.Fatalf("cached definition lost questions: %+v", def.Questions)
	}

	repo.Invalidate(context.Background(), "t1", "b1")
	if mr.Exists("battle:def:t1:b1") {
		t.Fatalf("expected key removed on invalidate")
	}
	_, _ = repo.GetDefinition(context.Background(), "t1", "b1")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls.Load())
	}
}

func TestDefinitionRepositoryMissingBattle(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewDefinitionRepository(newClient(mr), memory.NewStaticDefinitionLoader(nil), time.Minute)
	_, err = repo.GetDefinition(context.Background(), "t1", "nope")
	if !errors.Is(err, domain.ErrBattleNotFound) {
		t.Fatalf("expected ErrBattleNotFound, got %v", err)
	}
	if mr.Exists("battle:def:t1:nope") {
		t.Fatalf("misses must not be cached")
	}
}

type countingLoader struct {
	app.DefinitionLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadDefinition(ctx context.Context, teacherID, battleID string) (domain.BattleDefinition, error) {
	l.calls.Add(1)
	return l.DefinitionLoader.LoadDefinition(ctx, teacherID, battleID)
}

func sampleDefinition() domain.BattleDefinition {
	return domain.BattleDefinition{
		ID:       "b1",
		Name:     "Fractions",
		BossName: "Hydra of Fractions",
		BossHP:   5,
		Questions: []domain.Question{
			{Text: "1/2 + 1/4?", Answers: []string{"2/6", "3/4", "1/8"}, CorrectAnswerIndex: 1, Damage: 5},
		},
		Rewards: domain.Rewards{XPPerCorrect: 20, GoldPerCorrect: 5},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
