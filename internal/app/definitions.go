package app

import (
	"context"
	"errors"
	"strings"

	"academy-of-heroes/internal/docstore"
	"academy-of-heroes/internal/domain"
	"github.com/google/uuid"
)

// StoreDefinitionLoader reads battle definitions straight from the document store.
type StoreDefinitionLoader struct {
	store docstore.Store
}

func NewStoreDefinitionLoader(store docstore.Store) *StoreDefinitionLoader {
	return &StoreDefinitionLoader{store: store}
}

func (l *StoreDefinitionLoader) LoadDefinition(ctx context.Context, teacherID, battleID string) (domain.BattleDefinition, error) {
	var def domain.BattleDefinition
	err := l.store.Get(ctx, domain.BossBattlePath(teacherID, battleID), &def)
	if errors.Is(err, docstore.ErrNotFound) {
		return def, domain.ErrBattleNotFound
	}
	if err != nil {
		return def, err
	}
	def.ID = battleID
	return def, nil
}

// DefinitionService is the teacher's authoring surface for boss battles.
type DefinitionService struct {
	store docstore.Store
	cache DefinitionRepository
}

func NewDefinitionService(store docstore.Store, cache DefinitionRepository) *DefinitionService {
	return &DefinitionService{store: store, cache: cache}
}

// Save validates and stores def, assigning an id when it has none.
func (s *DefinitionService) Save(ctx context.Context, teacherID string, def domain.BattleDefinition) (domain.BattleDefinition, error) {
	def.ID = strings.TrimSpace(def.ID)
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if strings.Contains(def.ID, "/") {
		return def, domain.ErrInvalidInput
	}
	if err := def.Validate(); err != nil {
		return def, err
	}
	if err := s.store.Set(ctx, domain.BossBattlePath(teacherID, def.ID), def); err != nil {
		return def, err
	}
	s.cache.Invalidate(ctx, teacherID, def.ID)
	return def, nil
}

func (s *DefinitionService) Get(ctx context.Context, teacherID, battleID string) (domain.BattleDefinition, error) {
	return s.cache.GetDefinition(ctx, teacherID, battleID)
}

func (s *DefinitionService) List(ctx context.Context, teacherID string) ([]domain.BattleDefinition, error) {
	docs, err := s.store.List(ctx, domain.BossBattlesCollection(teacherID))
	if err != nil {
		return nil, err
	}
	out := make([]domain.BattleDefinition, 0, len(docs))
	for _, doc := range docs {
		var def domain.BattleDefinition
		if err := doc.Decode(&def); err != nil {
			return nil, err
		}
		def.ID = doc.ID()
		out = append(out, def)
	}
	return out, nil
}

func (s *DefinitionService) Delete(ctx context.Context, teacherID, battleID string) error {
	if err := s.store.Delete(ctx, domain.BossBattlePath(teacherID, battleID)); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, teacherID, battleID)
	return nil
}
