package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"academy-of-heroes/internal/app"
	"academy-of-heroes/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DefinitionRepository caches battle definitions in Redis and falls back to a
// loader on cache miss. Definitions are stored as JSON strings:
// SET battle:def:{teacherID}:{battleID} {json} EX ttl
type DefinitionRepository struct {
	client redis.UniversalClient
	loader app.DefinitionLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewDefinitionRepository(client redis.UniversalClient, loader app.DefinitionLoader, ttl time.Duration) *DefinitionRepository {
	return &DefinitionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *DefinitionRepository) GetDefinition(ctx context.Context, teacherID, battleID string) (domain.BattleDefinition, error) {
	key := definitionKey(teacherID, battleID)
	if def, ok := r.cached(ctx, key); ok {
		return def, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if def, ok := r.cached(ctx, key); ok {
			return def, nil
		}

		def, err := r.loader.LoadDefinition(ctx, teacherID, battleID)
		if err != nil {
			return domain.BattleDefinition{}, err
		}

		// a failed cache fill only costs a reload next time
		if data, err := json.Marshal(def); err == nil {
			_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		}
		return def, nil
	})
	if err != nil {
		return domain.BattleDefinition{}, err
	}
	return result.(domain.BattleDefinition), nil
}

// Invalidate drops the cached copy of a definition.
func (r *DefinitionRepository) Invalidate(ctx context.Context, teacherID, battleID string) {
	_ = r.client.Del(ctx, definitionKey(teacherID, battleID)).Err()
}

func (r *DefinitionRepository) cached(ctx context.Context, key string) (domain.BattleDefinition, bool) {
	var def domain.BattleDefinition
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return def, false
	}
	if err := json.Unmarshal(data, &def); err != nil {
		return def, false
	}
	return def, true
}

func (r *DefinitionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func definitionKey(teacherID, battleID string) string {
	return "battle:def:" + teacherID + ":" + battleID
}

