package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"academy-of-heroes/internal/app"
	"academy-of-heroes/internal/domain"
	"golang.org/x/sync/singleflight"
)

// DefinitionRepository caches battle definitions with TTL to avoid repeated
// store reads while a battle runs.
type DefinitionRepository struct {
	loader app.DefinitionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedDefinition
}

type cachedDefinition struct {
	def       domain.BattleDefinition
	expiresAt time.Time
}

func NewDefinitionRepository(loader app.DefinitionLoader, ttl time.Duration) *DefinitionRepository {
	return &DefinitionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedDefinition),
	}
}

func (r *DefinitionRepository) GetDefinition(ctx context.Context, teacherID, battleID string) (domain.BattleDefinition, error) {
	key := teacherID + "/" + battleID
	if def, ok := r.lookup(key); ok {
		return def, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		if def, ok := r.lookup(key); ok {
			return def, nil
		}
		def, err := r.loader.LoadDefinition(ctx, teacherID, battleID)
		if err != nil {
			return domain.BattleDefinition{}, err
		}
		r.mu.Lock()
		r.cache[key] = cachedDefinition{def: def, expiresAt: r.clock().Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return def, nil
	})
	if err != nil {
		return domain.BattleDefinition{}, err
	}
	return result.(domain.BattleDefinition), nil
}

// Invalidate drops a cached definition so the next read reloads it.
func (r *DefinitionRepository) Invalidate(_ context.Context, teacherID, battleID string) {
	r.mu.Lock()
	delete(r.cache, teacherID+"/"+battleID)
	r.mu.Unlock()
}

func (r *DefinitionRepository) lookup(key string) (domain.BattleDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[key]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.BattleDefinition{}, false
	}
	return entry.def, true
}

func (r *DefinitionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticDefinitionLoader is a loader backed by an in-memory map (useful for tests/demos).
// Keys are "teacherID/battleID".
type StaticDefinitionLoader struct {
	defs map[string]domain.BattleDefinition
}

func NewStaticDefinitionLoader(defs map[string]domain.BattleDefinition) *StaticDefinitionLoader {
	return &StaticDefinitionLoader{defs: defs}
}

func (l *StaticDefinitionLoader) LoadDefinition(_ context.Context, teacherID, battleID string) (domain.BattleDefinition, error) {
	if def, ok := l.defs[teacherID+"/"+battleID]; ok {
		return def, nil
	}
	return domain.BattleDefinition{}, domain.ErrBattleNotFound
}
