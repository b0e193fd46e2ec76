package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"academy-of-heroes/internal/app"
	"academy-of-heroes/internal/auth"
	"academy-of-heroes/internal/docstore"
	"academy-of-heroes/internal/domain"
	"academy-of-heroes/internal/infra/files"
	"academy-of-heroes/internal/infra/memory"
	"go.uber.org/zap"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	server   *httptest.Server
	issuer   *auth.Issuer
	services Services
	store    *docstore.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	store := docstore.New(memory.NewDocumentStore())
	defs := memory.NewDefinitionRepository(app.NewStoreDefinitionLoader(store), time.Minute)
	gameLog := app.NewGameLog(store, logger)
	bucket, err := files.NewLocalBucket(t.TempDir(), "", testSecret)
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	issuer, err := auth.NewIssuer(testSecret, "academy-test", time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	definitions := app.NewDefinitionService(store, defs)
	svc := Services{
		Battles:     app.NewBattleService(store, defs, memory.NewBroadcaster(), gameLog, logger),
		Students:    app.NewStudentService(store, memory.NewPresence(time.Minute), bucket, gameLog, logger),
		Definitions: definitions,
		Content:     app.NewContentService(nil, definitions),
		GameLog:     gameLog,
	}
	if _, err := definitions.Save(context.Background(), "t1", sampleBattle()); err != nil {
		t.Fatalf("save battle: %v", err)
	}

	server := httptest.NewServer(NewRouter(svc, issuer, bucket, logger))
	t.Cleanup(server.Close)
	return &testEnv{server: server, issuer: issuer, services: svc, store: store}
}

func (e *testEnv) teacherToken(t *testing.T) string {
	t.Helper()
	tok, err := e.issuer.IssueTeacherToken("t1")
	if err != nil {
		t.Fatalf("teacher token: %v", err)
	}
	return tok
}

func (e *testEnv) studentToken(t *testing.T, studentID string) string {
	t.Helper()
	tok, err := e.issuer.IssueStudentToken("t1", studentID)
	if err != nil {
		t.Fatalf("student token: %v", err)
	}
	return tok
}

func (e *testEnv) addStudent(t *testing.T, class domain.HeroClass) domain.Student {
	t.Helper()
	st, err := e.services.Students.Create(context.Background(), "t1", app.NewStudent{StudentName: "Ada", Class: class})
	if err != nil {
		t.Fatalf("create student: %v", err)
	}
	return st
}

func sampleBattle() domain.BattleDefinition {
	return domain.BattleDefinition{
		ID:       "b1",
		Name:     "Arithmetic",
		BossName: "Count Calculo",
		BossHP:   4,
		Questions: []domain.Question{
			{Text: "What is 2 + 2?", Answers: []string{"3", "4", "5"}, CorrectAnswerIndex: 1, Damage: 5},
		},
		Rewards: domain.Rewards{XPPerCorrect: 10, GoldPerCorrect: 5},
	}
}
