package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strconv"
	"time"

	"academy-of-heroes/internal/app"
	"academy-of-heroes/internal/docstore"
	"academy-of-heroes/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	maxBodyBytes     = 1 << 20
	maxAvatarBytes   = 2 << 20
	impersonationTTL = 30 * time.Minute
)

type rewardsRequest struct {
	XP   int `json:"xp"`
	Gold int `json:"gold"`
}

type answerRequest struct {
	AnswerIndex int `json:"answerIndex"`
}

type powerRequest struct {
	Power    string `json:"power"`
	BattleID string `json:"battleId"`
	TargetID string `json:"targetId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func success(data any) app.Result {
	return app.Result{Success: true, Data: data}
}

func failure(message string) app.Result {
	return app.Result{Error: message}
}

// writeResult sends a service Result with a status matching its outcome.
func writeResult(w http.ResponseWriter, res app.Result) {
	if res.Success {
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, statusFor(res.Err()), res)
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	if errors.Is(err, app.ErrGeneratorDisabled) {
		writeJSON(w, status, failure("Content generation is turned off."))
		return
	}
	writeJSON(w, status, app.Fail(err))
}

func statusFor(err error) int {
	var rule *domain.RuleError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &rule):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStudentNotFound),
		errors.Is(err, domain.ErrBattleNotFound),
		errors.Is(err, domain.ErrNoActiveBattle),
		errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidDefinition),
		errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusBadRequest
	case errors.Is(err, docstore.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, app.ErrGeneratorDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, failure("The request was not valid."))
		return false
	}
	return true
}

// Teacher roster

func (h *handlers) listStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.svc.Students.List(r.Context(), principal(r).TeacherID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(students))
}

func (h *handlers) createStudent(w http.ResponseWriter, r *http.Request) {
	var in app.NewStudent
	if !decode(w, r, &in) {
		return
	}
	st, err := h.svc.Students.Create(r.Context(), principal(r).TeacherID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, success(st))
}

func (h *handlers) getStudent(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Students.Get(r.Context(), principal(r).TeacherID, chi.URLParam(r, "studentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(st))
}

func (h *handlers) deleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Students.Delete(r.Context(), principal(r).TeacherID, chi.URLParam(r, "studentID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(nil))
}

func (h *handlers) awardRewards(w http.ResponseWriter, r *http.Request) {
	var in rewardsRequest
	if !decode(w, r, &in) {
		return
	}
	st, err := h.svc.Students.AwardRewards(r.Context(), principal(r).TeacherID, chi.URLParam(r, "studentID"), in.XP, in.Gold)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(st))
}

func (h *handlers) restoreStudents(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Students.RestoreAll(r.Context(), principal(r).TeacherID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(map[string]int{"restored": n}))
}

func (h *handlers) impersonate(w http.ResponseWriter, r *http.Request) {
	teacherID := principal(r).TeacherID
	st, err := h.svc.Students.Get(r.Context(), teacherID, chi.URLParam(r, "studentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	token, err := h.tokens.IssueCustomToken(teacherID, st.ID, impersonationTTL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("impersonation token issued", zap.String("teacher", teacherID), zap.String("student", st.ID))
	writeJSON(w, http.StatusOK, success(map[string]string{"token": token}))
}

func (h *handlers) avatarURL(w http.ResponseWriter, r *http.Request) {
	link, err := h.svc.Students.AvatarURL(r.Context(), principal(r).TeacherID, chi.URLParam(r, "studentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(map[string]string{"url": link}))
}

func (h *handlers) backup(w http.ResponseWriter, r *http.Request) {
	link, err := h.svc.Students.Backup(r.Context(), principal(r).TeacherID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(map[string]string{"url": link}))
}

// Battle authoring

func (h *handlers) listBattles(w http.ResponseWriter, r *http.Request) {
	defs, err := h.svc.Definitions.List(r.Context(), principal(r).TeacherID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(defs))
}

func (h *handlers) saveBattle(w http.ResponseWriter, r *http.Request) {
	var def domain.BattleDefinition
	if !decode(w, r, &def) {
		return
	}
	def, err := h.svc.Definitions.Save(r.Context(), principal(r).TeacherID, def)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(def))
}

func (h *handlers) draftBattle(w http.ResponseWriter, r *http.Request) {
	var req app.DraftRequest
	if !decode(w, r, &req) {
		return
	}
	def, err := h.svc.Content.DraftBattle(r.Context(), principal(r).TeacherID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, success(def))
}

func (h *handlers) getBattle(w http.ResponseWriter, r *http.Request) {
	def, err := h.svc.Definitions.Get(r.Context(), principal(r).TeacherID, chi.URLParam(r, "battleID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(def))
}

func (h *handlers) deleteBattle(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Definitions.Delete(r.Context(), principal(r).TeacherID, chi.URLParam(r, "battleID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(nil))
}

func (h *handlers) taunt(w http.ResponseWriter, r *http.Request) {
	text, err := h.svc.Content.BossTaunt(r.Context(), r.URL.Query().Get("boss"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(map[string]string{"taunt": text}))
}

// Live battle, teacher side

func (h *handlers) startBattle(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.Battles.StartBattle(r.Context(), principal(r).TeacherID, chi.URLParam(r, "battleID")))
}

func (h *handlers) liveForTeacher(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.Battles.GetLiveBattle(r.Context(), principal(r).TeacherID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(state))
}

func (h *handlers) startRound(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.Battles.StartRound(r.Context(), principal(r).TeacherID))
}

func (h *handlers) resolveRound(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.Battles.ResolveRound(r.Context(), principal(r).TeacherID))
}

func (h *handlers) nextQuestion(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.Battles.NextQuestion(r.Context(), principal(r).TeacherID))
}

func (h *handlers) endBattle(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.Battles.EndBattle(r.Context(), principal(r).TeacherID))
}

func (h *handlers) cleanup(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.Battles.Cleanup(r.Context(), principal(r).TeacherID))
}

func (h *handlers) gameLog(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	entries, err := h.svc.GameLog.Recent(r.Context(), principal(r).TeacherID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(entries))
}

func (h *handlers) summaries(w http.ResponseWriter, r *http.Request) {
	sums, err := h.svc.Battles.Summaries(r.Context(), principal(r).TeacherID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(sums))
}

// Student side

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	st, err := h.svc.Students.Get(r.Context(), p.TeacherID, p.StudentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(map[string]any{
		"student": st,
		"powers":  domain.Powers(st.Class),
	}))
}

func (h *handlers) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, failure("Attach an image named avatar."))
		return
	}
	defer file.Close()

	st, err := h.svc.Students.SetAvatar(r.Context(), p.TeacherID, p.StudentID, header.Filename, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(st))
}

func (h *handlers) listBoons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, success(domain.Boons()))
}

func (h *handlers) purchaseBoon(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	writeResult(w, h.svc.Students.PurchaseBoon(r.Context(), p.TeacherID, p.StudentID, chi.URLParam(r, "boonID")))
}

func (h *handlers) liveForStudent(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	state, err := h.svc.Battles.GetLiveBattle(r.Context(), p.TeacherID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(studentView(state, p.StudentID)))
}

func (h *handlers) joinBattle(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	writeResult(w, h.svc.Battles.JoinBattle(r.Context(), p.TeacherID, p.StudentID))
}

func (h *handlers) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var in answerRequest
	if !decode(w, r, &in) {
		return
	}
	p := principal(r)
	writeResult(w, h.svc.Battles.SubmitAnswer(r.Context(), p.TeacherID, p.StudentID, in.AnswerIndex))
}

func (h *handlers) activatePower(w http.ResponseWriter, r *http.Request) {
	var in powerRequest
	if !decode(w, r, &in) {
		return
	}
	p := principal(r)
	writeResult(w, h.svc.Battles.ActivatePower(r.Context(), app.PowerRequest{
		TeacherID: p.TeacherID,
		StudentID: p.StudentID,
		BattleID:  in.BattleID,
		Power:     in.Power,
		TargetID:  in.TargetID,
	}))
}

// download serves an object named by a signed link token.
func (h *handlers) download(w http.ResponseWriter, r *http.Request) {
	key, err := h.files.Verify(r.URL.Query().Get("token"))
	if err != nil {
		writeJSON(w, http.StatusForbidden, failure("This link has expired."))
		return
	}
	f, err := h.files.Open(key)
	if err != nil {
		writeJSON(w, http.StatusNotFound, failure("That file could not be found."))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.ServeContent(w, r, path.Base(key), info.ModTime(), f)
}
