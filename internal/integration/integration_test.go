package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"academy-of-heroes/internal/app"
	"academy-of-heroes/internal/docstore"
	"academy-of-heroes/internal/domain"
	"academy-of-heroes/internal/infra/postgres"
	pgmigrations "academy-of-heroes/internal/infra/postgres/migrations"
	infraredis "academy-of-heroes/internal/infra/redis"
	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

func TestConcurrentPowersEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL := startPostgres(t, ctx)
	redisClient := startRedis(t, ctx)

	store := openStore(t, ctx, pgURL)
	if err := store.Set(ctx, domain.BossBattlePath("t1", "b1"), sampleBattle()); err != nil {
		t.Fatalf("seed battle: %v", err)
	}
	for _, id := range []string{"h1", "h2"} {
		maxHP, maxMP := domain.MaxPools(domain.ClassHealer, 1)
		st := domain.Student{ID: id, StudentName: id, Class: domain.ClassHealer, Level: 1, HP: maxHP, MaxHP: maxHP, MP: 10, MaxMP: maxMP}
		if err := store.Set(ctx, domain.StudentPath("t1", id), st); err != nil {
			t.Fatalf("seed student: %v", err)
		}
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	logger := zap.NewNop()
	defs := infraredis.NewDefinitionRepository(redisClient, postgres.NewDefinitionLoader(pool), 5*time.Minute)
	events := infraredis.NewBroadcaster(redisClient, logger)
	service := app.NewBattleService(store, defs, events, app.NewGameLog(store, logger), logger)

	updates, cancel, err := service.Subscribe(ctx, "t1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	for _, res := range []app.Result{
		service.StartBattle(ctx, "t1", "b1"),
		service.JoinBattle(ctx, "t1", "h1"),
		service.JoinBattle(ctx, "t1", "h2"),
		service.StartRound(ctx, "t1"),
	} {
		if !res.Success {
			t.Fatalf("setup step failed: %s", res.Error)
		}
	}

	var wg sync.WaitGroup
	results := make([]app.Result, 2)
	for i, id := range []string{"h1", "h2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = service.ActivatePower(ctx, app.PowerRequest{
				TeacherID: "t1", StudentID: id, BattleID: "b1", Power: domain.PowerNaturesGuidance,
			})
		}(i, id)
	}
	wg.Wait()

	for i, res := range results {
		if !res.Success {
			t.Fatalf("cast %d failed: %s", i, res.Error)
		}
	}
	state, err := service.GetLiveBattle(ctx, "t1")
	if err != nil {
		t.Fatalf("live battle: %v", err)
	}
	if len(state.RemovedAnswerIndices) != 2 || state.PowerUses(domain.PowerNaturesGuidance) != 2 {
		t.Fatalf("expected two removals, got %+v", state)
	}
	for _, idx := range state.RemovedAnswerIndices {
		if idx == sampleBattle().Questions[0].CorrectAnswerIndex {
			t.Fatalf("correct answer removed")
		}
	}
	for _, id := range []string{"h1", "h2"} {
		var st domain.Student
		if err := store.Get(ctx, domain.StudentPath("t1", id), &st); err != nil {
			t.Fatalf("get student: %v", err)
		}
		if st.MP != 7 {
			t.Fatalf("expected %s to have 7 MP, got %d", id, st.MP)
		}
	}

	select {
	case got := <-updates:
		if got.BattleID != "b1" {
			t.Fatalf("unexpected broadcast %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no broadcast received")
	}
}

func TestPostgresStoreSerializesIncrements(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL := startPostgres(t, ctx)
	store := openStore(t, ctx, pgURL)

	type counter struct {
		N int `json:"n"`
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
				var c counter
				if err := tx.Get("counters/shared", &c); err != nil && !errors.Is(err, docstore.ErrNotFound) {
					return err
				}
				c.N++
				return tx.Set("counters/shared", c)
			})
			if err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	var c counter
	if err := store.Get(ctx, "counters/shared", &c); err != nil {
		t.Fatalf("get counter: %v", err)
	}
	if c.N != 20 {
		t.Fatalf("expected 20 increments, got %d", c.N)
	}
}

func openStore(t *testing.T, ctx context.Context, dsn string) *docstore.DB {
	t.Helper()
	db := postgres.Open(dsn)
	t.Cleanup(func() { _ = db.Close() })

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return docstore.New(postgres.NewDocumentStore(db), docstore.WithMaxAttempts(100))
}

func sampleBattle() domain.BattleDefinition {
	return domain.BattleDefinition{
		ID:       "b1",
		Name:     "Fractions",
		BossName: "Hydra of Fractions",
		BossHP:   10,
		Questions: []domain.Question{
			{Text: "1/2 + 1/4?", Answers: []string{"2/6", "3/4", "1/8", "2/4"}, CorrectAnswerIndex: 1, Damage: 5},
		},
		Rewards: domain.Rewards{XPPerCorrect: 20, GoldPerCorrect: 5},
	}
}

// startContainer runs image and returns its host and the mapped port. Tests
// are skipped when no docker daemon is reachable.
func startContainer(t *testing.T, ctx context.Context, image, port string, env map[string]string) (string, string) {
	t.Helper()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        image,
			Env:          env,
			ExposedPorts: []string{port},
			WaitingFor:   wait.ForListeningPort(nat.Port(port)).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start %s: %v", image, err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("%s host: %v", image, err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("%s port: %v", image, err)
	}
	return host, mapped.Port()
}

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	host, port := startContainer(t, ctx, "postgres:15-alpine", "5432/tcp", map[string]string{
		"POSTGRES_USER":     "academy",
		"POSTGRES_PASSWORD": "academypass",
		"POSTGRES_DB":       "academy",
	})
	return fmt.Sprintf("postgres://academy:academypass@%s:%s/academy?sslmode=disable", host, port)
}

func startRedis(t *testing.T, ctx context.Context) *goredis.Client {
	t.Helper()
	host, port := startContainer(t, ctx, "redis:7-alpine", "6379/tcp", nil)
	client := goredis.NewClient(&goredis.Options{Addr: host + ":" + port})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
