package app

import (
	"context"
	"sort"
	"time"

	"academy-of-heroes/internal/docstore"
	"academy-of-heroes/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	LogBattle   = "battle"
	LogPower    = "power"
	LogProgress = "progress"
	LogShop     = "shop"
	LogRoster   = "roster"
)

// GameLog appends entries to a teacher's running log. Appends are best effort
// and never fail the action that produced them.
type GameLog struct {
	store  docstore.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewGameLog(store docstore.Store, logger *zap.Logger) *GameLog {
	return &GameLog{store: store, logger: logger, now: time.Now}
}

// Append writes one entry.
func (g *GameLog) Append(ctx context.Context, teacherID, source, category, description string) {
	entry := domain.GameLogEntry{
		ID:          uuid.NewString(),
		Timestamp:   g.now(),
		Source:      source,
		Category:    category,
		Description: description,
	}
	path := domain.GameLogCollection(teacherID) + "/" + entry.ID
	if err := g.store.Set(ctx, path, entry); err != nil {
		g.logger.Warn("game log append failed",
			zap.String("teacher", teacherID),
			zap.String("category", category),
			zap.Error(err))
	}
}

// Recent returns up to limit entries, newest first.
func (g *GameLog) Recent(ctx context.Context, teacherID string, limit int) ([]domain.GameLogEntry, error) {
	docs, err := g.store.List(ctx, domain.GameLogCollection(teacherID))
	if err != nil {
		return nil, err
	}
	entries := make([]domain.GameLogEntry, 0, len(docs))
	for _, doc := range docs {
		var e domain.GameLogEntry
		if err := doc.Decode(&e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
