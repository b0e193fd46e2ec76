package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"academy-of-heroes/internal/domain"
)

// ErrGeneratorDisabled is returned when no AI provider is configured.
var ErrGeneratorDisabled = errors.New("content generation is not configured")

// ContentService drafts battle content with an AI generator.
type ContentService struct {
	gen  Generator
	defs *DefinitionService
}

func NewContentService(gen Generator, defs *DefinitionService) *ContentService {
	return &ContentService{gen: gen, defs: defs}
}

// DraftRequest describes an AI-drafted battle.
type DraftRequest struct {
	Topic      string `json:"topic"`
	Count      int    `json:"count"`
	BossName   string `json:"bossName"`
	XPReward   int    `json:"xpReward"`
	GoldReward int    `json:"goldReward"`
}

// DraftBattle generates questions for a topic and saves them as a new battle.
func (s *ContentService) DraftBattle(ctx context.Context, teacherID string, req DraftRequest) (domain.BattleDefinition, error) {
	if s.gen == nil {
		return domain.BattleDefinition{}, ErrGeneratorDisabled
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return domain.BattleDefinition{}, domain.ErrInvalidInput
	}
	if req.Count <= 0 || req.Count > 20 {
		req.Count = 5
	}
	questions, err := s.gen.GenerateQuestions(ctx, req.Topic, req.Count)
	if err != nil {
		return domain.BattleDefinition{}, fmt.Errorf("generate questions: %w", err)
	}
	boss := strings.TrimSpace(req.BossName)
	if boss == "" {
		boss = "The Keeper of " + req.Topic
	}
	def := domain.BattleDefinition{
		Name:      req.Topic,
		BossName:  boss,
		BossHP:    len(questions) * 3,
		Questions: questions,
		Rewards:   domain.Rewards{XPPerCorrect: req.XPReward, GoldPerCorrect: req.GoldReward},
	}
	return s.defs.Save(ctx, teacherID, def)
}

// BossTaunt writes a short line of flavor text for a boss.
func (s *ContentService) BossTaunt(ctx context.Context, bossName string) (string, error) {
	if s.gen == nil {
		return "", ErrGeneratorDisabled
	}
	bossName = strings.TrimSpace(bossName)
	if bossName == "" {
		return "", domain.ErrInvalidInput
	}
	prompt := fmt.Sprintf("Write one short, kid-friendly taunt spoken by %s, a fantasy boss, to a class of student heroes. Reply with the taunt only.", bossName)
	text, err := s.gen.GenerateText(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate taunt: %w", err)
	}
	return strings.TrimSpace(text), nil
}
