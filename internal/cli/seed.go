package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"academy-of-heroes/internal/app"
	"academy-of-heroes/internal/config"
	"academy-of-heroes/internal/domain"
	"academy-of-heroes/internal/infra/memory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// battleFile is the YAML layout accepted by seed.
type battleFile struct {
	Battles []domain.BattleDefinition `yaml:"battles"`
}

// NewSeedCmd loads boss battle definitions from a YAML file into storage.
func NewSeedCmd(configPath *string) *cobra.Command {
	var teacherID string
	cmd := &cobra.Command{
		Use:   "seed <battles.yaml>",
		Short: "Load boss battle definitions for a teacher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, teacherID, args[0])
		},
	}
	cmd.Flags().StringVar(&teacherID, "teacher", "", "teacher id that owns the battles")
	_ = cmd.MarkFlagRequired("teacher")
	return cmd
}

func runSeed(ctx context.Context, configPath, teacherID, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	battles, err := readBattleFile(file)
	if err != nil {
		return err
	}

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// seeding runs outside the server, so a local cache is enough
	defs := app.NewDefinitionService(st.store, memory.NewDefinitionRepository(st.loader, time.Minute))
	for _, def := range battles {
		saved, err := defs.Save(ctx, teacherID, def)
		if err != nil {
			return fmt.Errorf("save battle %q: %w", def.Name, err)
		}
		logger.Info("battle saved",
			zap.String("teacher", teacherID),
			zap.String("battle", saved.ID),
			zap.Int("questions", len(saved.Questions)))
	}
	return nil
}

func readBattleFile(path string) ([]domain.BattleDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f battleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Battles) == 0 {
		return nil, fmt.Errorf("%s contains no battles", path)
	}
	return f.Battles, nil
}
