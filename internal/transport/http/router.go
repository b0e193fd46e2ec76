package http

import (
	"net/http"
	"os"
	"time"

	"academy-of-heroes/internal/app"
	"academy-of-heroes/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Services is everything the HTTP surface calls into.
type Services struct {
	Battles     *app.BattleService
	Students    *app.StudentService
	Definitions *app.DefinitionService
	Content     *app.ContentService
	GameLog     *app.GameLog
}

// Impersonator mints tokens a teacher uses to act as one of their students.
type Impersonator interface {
	TokenVerifier
	IssueCustomToken(teacherID, studentID string, ttl time.Duration) (string, error)
}

// FileSource serves objects behind signed download links.
type FileSource interface {
	Verify(token string) (string, error)
	Open(key string) (*os.File, error)
}

type handlers struct {
	svc    Services
	tokens Impersonator
	files  FileSource
	logger *zap.Logger
}

// NewRouter wires every route.
func NewRouter(svc Services, tokens Impersonator, files FileSource, logger *zap.Logger) http.Handler {
	h := &handlers{svc: svc, tokens: tokens, files: files, logger: logger}
	ws := NewWSHandler(svc.Battles, svc.Students, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/files", h.download)

	r.Group(func(r chi.Router) {
		r.Use(authenticate(tokens))
		r.Get("/ws", ws.ServeWS)

		r.Route("/teacher", func(r chi.Router) {
			r.Use(requireRole(auth.RoleTeacher))

			r.Get("/students", h.listStudents)
			r.Post("/students", h.createStudent)
			r.Post("/students/restore", h.restoreStudents)
			r.Get("/students/{studentID}", h.getStudent)
			r.Delete("/students/{studentID}", h.deleteStudent)
			r.Post("/students/{studentID}/rewards", h.awardRewards)
			r.Post("/students/{studentID}/impersonate", h.impersonate)
			r.Get("/students/{studentID}/avatar", h.avatarURL)
			r.Post("/backups", h.backup)

			r.Get("/battles", h.listBattles)
			r.Post("/battles", h.saveBattle)
			r.Post("/battles/draft", h.draftBattle)
			r.Get("/battles/{battleID}", h.getBattle)
			r.Delete("/battles/{battleID}", h.deleteBattle)
			r.Post("/battles/{battleID}/start", h.startBattle)
			r.Get("/taunt", h.taunt)

			r.Get("/live", h.liveForTeacher)
			r.Post("/live/round", h.startRound)
			r.Post("/live/resolve", h.resolveRound)
			r.Post("/live/next", h.nextQuestion)
			r.Post("/live/end", h.endBattle)
			r.Delete("/live", h.cleanup)

			r.Get("/log", h.gameLog)
			r.Get("/summaries", h.summaries)
		})

		r.Route("/me", func(r chi.Router) {
			r.Use(requireRole(auth.RoleStudent))

			r.Get("/", h.me)
			r.Put("/avatar", h.uploadAvatar)
			r.Get("/boons", h.listBoons)
			r.Post("/boons/{boonID}", h.purchaseBoon)
			r.Get("/live", h.liveForStudent)
			r.Post("/live/join", h.joinBattle)
			r.Post("/live/answer", h.submitAnswer)
			r.Post("/live/powers", h.activatePower)
		})
	})
	return r
}
