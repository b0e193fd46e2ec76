package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"academy-of-heroes/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// DefinitionLoader loads battle definition JSONB straight from the documents
// table, bypassing the transactional store.
type DefinitionLoader struct {
	pool *pgxpool.Pool
}

func NewDefinitionLoader(pool *pgxpool.Pool) *DefinitionLoader {
	return &DefinitionLoader{pool: pool}
}

func (l *DefinitionLoader) LoadDefinition(ctx context.Context, teacherID, battleID string) (domain.BattleDefinition, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM documents WHERE path=$1`, domain.BossBattlePath(teacherID, battleID)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BattleDefinition{}, domain.ErrBattleNotFound
	}
	if err != nil {
		return domain.BattleDefinition{}, fmt.Errorf("load battle definition: %w", err)
	}
	var def domain.BattleDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return domain.BattleDefinition{}, fmt.Errorf("unmarshal battle definition: %w", err)
	}
	def.ID = battleID
	return def, nil
}
