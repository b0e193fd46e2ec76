package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"academy-of-heroes/internal/app"
	"academy-of-heroes/internal/auth"
	"academy-of-heroes/internal/config"
	"academy-of-heroes/internal/infra/files"
	"academy-of-heroes/internal/infra/gemini"
	"academy-of-heroes/internal/infra/memory"
	redisinfra "academy-of-heroes/internal/infra/redis"
	transport "academy-of-heroes/internal/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the battle server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if portFlag != "" {
		cfg.Server.Port = portFlag
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	issuer, err := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.Issuer, config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour))
	if err != nil {
		return fmt.Errorf("%w (set ACADEMY_AUTH_SECRET)", err)
	}
	bucket, err := files.NewLocalBucket(cfg.Files.Root, cfg.Files.BaseURL, cfg.Auth.Secret)
	if err != nil {
		return err
	}

	defTTL := config.TTLDuration(cfg.Battle.DefinitionTTL, 10*time.Minute)
	presenceTTL := config.TTLDuration(cfg.Redis.TTL, time.Minute)

	var (
		defs     app.DefinitionRepository
		events   app.Broadcaster
		presence app.PresenceTracker
	)
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		defs = redisinfra.NewDefinitionRepository(redisClient, st.loader, defTTL)
		events = redisinfra.NewBroadcaster(redisClient, logger)
		presence = redisinfra.NewPresence(redisClient, presenceTTL)
		logger.Info("using redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		defs = memory.NewDefinitionRepository(st.loader, defTTL)
		events = memory.NewBroadcaster()
		presence = memory.NewPresence(presenceTTL)
	}

	var gen app.Generator
	if cfg.Gemini.APIKey != "" {
		g, err := gemini.NewGenerator(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return err
		}
		gen = g
	} else {
		logger.Info("content generation disabled; no gemini api key")
	}

	gameLog := app.NewGameLog(st.store, logger)
	definitions := app.NewDefinitionService(st.store, defs)
	services := transport.Services{
		Battles:     app.NewBattleService(st.store, defs, events, gameLog, logger),
		Students:    app.NewStudentService(st.store, presence, bucket, gameLog, logger),
		Definitions: definitions,
		Content:     app.NewContentService(gen, definitions),
		GameLog:     gameLog,
	}

	server := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     transport.NewRouter(services, issuer, bucket, logger),
		ReadTimeout: 15 * time.Second,
		// no write timeout: websocket streams stay open for a whole lesson
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting battle server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
