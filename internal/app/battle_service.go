package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"academy-of-heroes/internal/docstore"
	"academy-of-heroes/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BattleService runs live boss battles. Every mutation is a read-validate-write
// transaction on the live battle document; logging and broadcasting happen
// after commit and never affect the outcome.
type BattleService struct {
	store    docstore.Store
	defs     DefinitionRepository
	events   Broadcaster
	gameLog  *GameLog
	logger   *zap.Logger
	now      func() time.Time
	intn     func(n int) int
	handlers map[string]powerHandler
}

// BattleOption customises a BattleService.
type BattleOption func(*BattleService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) BattleOption {
	return func(s *BattleService) { s.now = now }
}

// WithRandom replaces the source used to pick random answers.
func WithRandom(intn func(n int) int) BattleOption {
	return func(s *BattleService) { s.intn = intn }
}

func NewBattleService(store docstore.Store, defs DefinitionRepository, events Broadcaster, gameLog *GameLog, logger *zap.Logger, opts ...BattleOption) *BattleService {
	var mu sync.Mutex
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	s := &BattleService{
		store:   store,
		defs:    defs,
		events:  events,
		gameLog: gameLog,
		logger:  logger,
		now:     time.Now,
		intn: func(n int) int {
			mu.Lock()
			defer mu.Unlock()
			return rnd.Intn(n)
		},
		handlers: powerHandlers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetLiveBattle returns the current live battle of a teacher.
func (s *BattleService) GetLiveBattle(ctx context.Context, teacherID string) (domain.LiveBattleState, error) {
	var state domain.LiveBattleState
	err := s.store.Get(ctx, domain.LiveBattlePath(teacherID), &state)
	if errors.Is(err, docstore.ErrNotFound) {
		return state, domain.ErrNoActiveBattle
	}
	return state, err
}

// Subscribe streams committed live battle states for a teacher.
func (s *BattleService) Subscribe(ctx context.Context, teacherID string) (<-chan domain.LiveBattleState, func(), error) {
	return s.events.Subscribe(ctx, teacherID)
}

// StartBattle opens the lobby of a boss battle. Only one battle per teacher can
// run at a time; an ended battle is replaced.
func (s *BattleService) StartBattle(ctx context.Context, teacherID, battleID string) Result {
	def, err := s.loadDefinition(ctx, teacherID, battleID)
	if err != nil {
		return s.fail("start battle", teacherID, err)
	}

	bossHP := def.BossHP
	if bossHP <= 0 {
		bossHP = 10 * len(def.Questions)
	}
	now := s.now()
	state := domain.LiveBattleState{
		BattleID:     def.ID,
		Status:       domain.StatusWaiting,
		BossHP:       bossHP,
		BossMaxHP:    bossHP,
		Participants: []string{},
		CorrectTally: map[string]int{},
		StartedAt:    now,
		UpdatedAt:    now,
	}
	state.ResetRound()

	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		var existing domain.LiveBattleState
		err := tx.Get(domain.LiveBattlePath(teacherID), &existing)
		switch {
		case err == nil && existing.Status != domain.StatusEnded:
			return domain.Reject(domain.ErrBattleAlreadyRunning, "Another battle is already in progress.")
		case err != nil && !errors.Is(err, docstore.ErrNotFound):
			return err
		}
		return tx.Set(domain.LiveBattlePath(teacherID), state)
	})
	if err != nil {
		return s.fail("start battle", teacherID, err)
	}

	s.after(ctx, teacherID, state, teacherID, LogBattle, fmt.Sprintf("The battle against %s has been called!", bossLabel(def)))
	return ok("Battle started.", state)
}

// JoinBattle registers a hero as a participant. Joining twice is a no-op.
func (s *BattleService) JoinBattle(ctx context.Context, teacherID, studentID string) Result {
	var state domain.LiveBattleState
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		if err := readLive(tx, teacherID, &state); err != nil {
			return err
		}
		if state.Status != domain.StatusWaiting && state.Status != domain.StatusInProgress {
			return domain.Reject(domain.ErrWrongStatus, "This battle can no longer be joined.")
		}
		var student domain.Student
		if err := readStudent(tx, teacherID, studentID, &student); err != nil {
			return err
		}
		if state.IsParticipant(studentID) {
			return nil
		}
		state.Participants = append(state.Participants, studentID)
		state.UpdatedAt = s.now()
		return tx.Set(domain.LiveBattlePath(teacherID), state)
	})
	if err != nil {
		return s.fail("join battle", teacherID, err)
	}
	s.publish(ctx, teacherID, state)
	return ok("Joined the battle.", nil)
}

// StartRound opens the first question of a waiting battle.
func (s *BattleService) StartRound(ctx context.Context, teacherID string) Result {
	var state domain.LiveBattleState
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		if err := readLive(tx, teacherID, &state); err != nil {
			return err
		}
		if state.Status != domain.StatusWaiting {
			return domain.Reject(domain.ErrWrongStatus, "The battle has already begun.")
		}
		state.Status = domain.StatusInProgress
		state.CurrentQuestionIndex = 0
		state.ResetRound()
		state.UpdatedAt = s.now()
		return tx.Set(domain.LiveBattlePath(teacherID), state)
	})
	if err != nil {
		return s.fail("start round", teacherID, err)
	}
	s.after(ctx, teacherID, state, teacherID, LogBattle, "The first question has been revealed.")
	return ok("Round started.", state)
}

// SubmitAnswer records a hero's answer to the current question. Correctness
// is checked against the static definition and revealed with the results.
func (s *BattleService) SubmitAnswer(ctx context.Context, teacherID, studentID string, answerIndex int) Result {
	state, def, err := s.liveWithDefinition(ctx, teacherID)
	if err != nil {
		return s.fail("submit answer", teacherID, err)
	}

	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		if err := readLive(tx, teacherID, &state); err != nil {
			return err
		}
		if state.BattleID != def.ID {
			return domain.Reject(domain.ErrNoActiveBattle, "This battle is no longer active.")
		}
		if state.Status != domain.StatusInProgress {
			return domain.Reject(domain.ErrWrongStatus, "Answers are not being accepted right now.")
		}
		if !state.IsParticipant(studentID) {
			return domain.Reject(domain.ErrNotParticipant, "Join the battle before answering.")
		}
		var student domain.Student
		if err := readStudent(tx, teacherID, studentID, &student); err != nil {
			return err
		}
		if student.Fallen() {
			return domain.Reject(domain.ErrStudentFallen, "Your hero has fallen and cannot answer.")
		}
		if _, answered := state.Responses[studentID]; answered {
			return domain.Reject(domain.ErrAlreadyAnswered, "You have already answered this question.")
		}
		question, err := def.Question(state.CurrentQuestionIndex)
		if err != nil {
			return err
		}
		if answerIndex < 0 || answerIndex >= len(question.Answers) || state.IsRemoved(answerIndex) {
			return domain.Reject(domain.ErrInvalidAnswer, "That answer is not available.")
		}
		if state.Responses == nil {
			state.Responses = make(map[string]domain.Response)
		}
		now := s.now()
		state.Responses[studentID] = domain.Response{
			AnswerIndex: answerIndex,
			Correct:     answerIndex == question.CorrectAnswerIndex,
			SubmittedAt: now,
		}
		state.UpdatedAt = now
		return tx.Set(domain.LiveBattlePath(teacherID), state)
	})
	if err != nil {
		return s.fail("submit answer", teacherID, err)
	}
	s.publish(ctx, teacherID, state)
	return ok("Answer locked in!", nil)
}

// ResolveRound closes the current question: correct answers damage the boss,
// wrong or missing answers cost unshielded heroes the question's damage.
func (s *BattleService) ResolveRound(ctx context.Context, teacherID string) Result {
	state, def, err := s.liveWithDefinition(ctx, teacherID)
	if err != nil {
		return s.fail("resolve round", teacherID, err)
	}

	var (
		correct  int
		fallen   []string
		question domain.Question
	)
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		correct, fallen = 0, nil
		if err := readLive(tx, teacherID, &state); err != nil {
			return err
		}
		if state.BattleID != def.ID {
			return domain.Reject(domain.ErrNoActiveBattle, "This battle is no longer active.")
		}
		if state.Status != domain.StatusInProgress {
			return domain.Reject(domain.ErrWrongStatus, "There is no open question to resolve.")
		}
		q, err := def.Question(state.CurrentQuestionIndex)
		if err != nil {
			return err
		}
		question = q

		students := make(map[string]*domain.Student, len(state.Participants))
		for _, id := range state.Participants {
			var st domain.Student
			err := readStudent(tx, teacherID, id, &st)
			if errors.Is(err, domain.ErrStudentNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			students[id] = &st
		}

		if state.CorrectTally == nil {
			state.CorrectTally = make(map[string]int)
		}
		for _, id := range state.Participants {
			st, ok := students[id]
			if !ok || st.Fallen() {
				continue
			}
			resp, answered := state.Responses[id]
			if answered && resp.Correct {
				correct++
				state.CorrectTally[id]++
				continue
			}
			if state.IsShielded(id) || question.Damage == 0 {
				continue
			}
			st.HP = clamp(st.HP-question.Damage, 0, st.MaxHP)
			st.UpdatedAt = s.now()
			if st.Fallen() {
				fallen = append(fallen, heroName(st))
			}
			if err := tx.Set(domain.StudentPath(teacherID, id), st); err != nil {
				return err
			}
		}

		dmg := min(correct, state.BossHP)
		state.BossHP -= dmg
		state.LastRoundDamage += dmg
		state.TotalDamage += dmg
		state.Victory = state.BossHP == 0
		state.Status = domain.StatusShowingResults
		state.PowerEventMessage = fmt.Sprintf("The party dealt %d damage!", state.LastRoundDamage)
		state.UpdatedAt = s.now()
		return tx.Set(domain.LiveBattlePath(teacherID), state)
	})
	if err != nil {
		return s.fail("resolve round", teacherID, err)
	}

	desc := fmt.Sprintf("Question %d resolved: %d correct, %s took %d damage.",
		state.CurrentQuestionIndex+1, correct, bossLabel(def), state.LastRoundDamage)
	s.after(ctx, teacherID, state, teacherID, LogBattle, desc)
	for _, name := range fallen {
		s.gameLog.Append(ctx, teacherID, teacherID, LogBattle, name+" has fallen in battle.")
	}
	return ok(state.PowerEventMessage, state)
}

// NextQuestion advances from the results screen. When the boss is defeated or
// no questions remain, the battle ends instead.
func (s *BattleService) NextQuestion(ctx context.Context, teacherID string) Result {
	state, def, err := s.liveWithDefinition(ctx, teacherID)
	if err != nil {
		return s.fail("next question", teacherID, err)
	}
	if state.Status == domain.StatusShowingResults &&
		(state.Victory || state.CurrentQuestionIndex+1 >= len(def.Questions)) {
		return s.EndBattle(ctx, teacherID)
	}

	finished := false
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		finished = false
		if err := readLive(tx, teacherID, &state); err != nil {
			return err
		}
		if state.Status != domain.StatusShowingResults {
			return domain.Reject(domain.ErrWrongStatus, "Resolve the current question first.")
		}
		if state.Victory || state.CurrentQuestionIndex+1 >= len(def.Questions) {
			finished = true
			return nil
		}
		state.CurrentQuestionIndex++
		state.Status = domain.StatusInProgress
		state.ResetRound()
		state.UpdatedAt = s.now()
		return tx.Set(domain.LiveBattlePath(teacherID), state)
	})
	if err != nil {
		return s.fail("next question", teacherID, err)
	}
	if finished {
		return s.EndBattle(ctx, teacherID)
	}
	s.publish(ctx, teacherID, state)
	return ok(fmt.Sprintf("Question %d of %d.", state.CurrentQuestionIndex+1, len(def.Questions)), state)
}

// EndBattle finishes the battle, paying out xp and gold for every correct
// answer and writing a battle summary in the same transaction.
func (s *BattleService) EndBattle(ctx context.Context, teacherID string) Result {
	state, def, err := s.liveWithDefinition(ctx, teacherID)
	if err != nil {
		return s.fail("end battle", teacherID, err)
	}

	var summary domain.BattleSummary
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		if err := readLive(tx, teacherID, &state); err != nil {
			return err
		}
		if state.BattleID != def.ID {
			return domain.Reject(domain.ErrNoActiveBattle, "This battle is no longer active.")
		}
		if state.Status == domain.StatusEnded {
			return domain.Reject(domain.ErrWrongStatus, "The battle has already ended.")
		}

		students := make(map[string]*domain.Student, len(state.Participants))
		for _, id := range state.Participants {
			var st domain.Student
			err := readStudent(tx, teacherID, id, &st)
			if errors.Is(err, domain.ErrStudentNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			students[id] = &st
		}

		now := s.now()
		summary = domain.BattleSummary{
			ID:          uuid.NewString(),
			BattleID:    def.ID,
			BattleName:  def.Name,
			Victory:     state.BossHP == 0,
			TotalDamage: state.TotalDamage,
			Rewards:     []domain.StudentReward{},
			EndedAt:     now,
		}
		for _, id := range state.Participants {
			st, ok := students[id]
			if !ok {
				continue
			}
			n := state.CorrectTally[id]
			reward := domain.StudentReward{
				StudentID: id,
				Correct:   n,
				XP:        n * def.Rewards.XPPerCorrect,
				Gold:      n * def.Rewards.GoldPerCorrect,
			}
			if reward.XP != 0 || reward.Gold != 0 {
				reward.LeveledUp = applyRewards(st, reward.XP, reward.Gold)
				st.UpdatedAt = now
				if err := tx.Set(domain.StudentPath(teacherID, id), st); err != nil {
					return err
				}
			}
			summary.Rewards = append(summary.Rewards, reward)
		}

		state.Status = domain.StatusEnded
		state.Victory = summary.Victory
		state.PowerEventMessage = ""
		state.UpdatedAt = now
		if err := tx.Set(domain.LiveBattlePath(teacherID), state); err != nil {
			return err
		}
		return tx.Set(domain.BattleSummariesCollection(teacherID)+"/"+summary.ID, summary)
	})
	if err != nil {
		return s.fail("end battle", teacherID, err)
	}

	outcome := "escaped"
	if summary.Victory {
		outcome = "was defeated"
	}
	s.after(ctx, teacherID, state, teacherID, LogBattle, fmt.Sprintf("%s %s after %d damage.", bossLabel(def), outcome, summary.TotalDamage))
	for _, r := range summary.Rewards {
		if r.LeveledUp {
			s.gameLog.Append(ctx, teacherID, r.StudentID, LogProgress, "Leveled up after the battle against "+bossLabel(def)+".")
		}
	}
	return ok("Battle ended.", summary)
}

// Cleanup removes the live battle document.
func (s *BattleService) Cleanup(ctx context.Context, teacherID string) Result {
	if err := s.store.Delete(ctx, domain.LiveBattlePath(teacherID)); err != nil {
		return s.fail("cleanup battle", teacherID, err)
	}
	return ok("Battle cleared.", nil)
}

// Summaries lists past battle summaries, most recent first.
func (s *BattleService) Summaries(ctx context.Context, teacherID string) ([]domain.BattleSummary, error) {
	docs, err := s.store.List(ctx, domain.BattleSummariesCollection(teacherID))
	if err != nil {
		return nil, err
	}
	out := make([]domain.BattleSummary, 0, len(docs))
	for _, doc := range docs {
		var sum domain.BattleSummary
		if err := doc.Decode(&sum); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	return out, nil
}

func (s *BattleService) loadDefinition(ctx context.Context, teacherID, battleID string) (domain.BattleDefinition, error) {
	def, err := s.defs.GetDefinition(ctx, teacherID, battleID)
	if err != nil {
		return def, err
	}
	if err := def.Validate(); err != nil {
		return def, err
	}
	return def, nil
}

// liveWithDefinition reads the live battle outside any transaction to learn
// which definition it runs, then loads that definition.
func (s *BattleService) liveWithDefinition(ctx context.Context, teacherID string) (domain.LiveBattleState, domain.BattleDefinition, error) {
	state, err := s.GetLiveBattle(ctx, teacherID)
	if err != nil {
		return state, domain.BattleDefinition{}, err
	}
	def, err := s.loadDefinition(ctx, teacherID, state.BattleID)
	return state, def, err
}

// after runs the post-commit steps: log then broadcast.
func (s *BattleService) after(ctx context.Context, teacherID string, state domain.LiveBattleState, source, category, description string) {
	s.gameLog.Append(ctx, teacherID, source, category, description)
	s.publish(ctx, teacherID, state)
}

func (s *BattleService) publish(ctx context.Context, teacherID string, state domain.LiveBattleState) {
	if err := s.events.Publish(ctx, teacherID, state); err != nil {
		s.logger.Warn("publish live battle failed", zap.String("teacher", teacherID), zap.Error(err))
	}
}

func (s *BattleService) fail(op, teacherID string, err error) Result {
	if IsPlatformError(err) {
		s.logger.Error(op+" failed", zap.String("teacher", teacherID), zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.String("teacher", teacherID), zap.Error(err))
	}
	return Fail(err)
}

// readLive and readStudent zero their destination first: decoding into a
// populated struct would merge maps left over from a previous attempt.
func readLive(tx *docstore.Tx, teacherID string, state *domain.LiveBattleState) error {
	*state = domain.LiveBattleState{}
	err := tx.Get(domain.LiveBattlePath(teacherID), state)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.ErrNoActiveBattle
	}
	return err
}

func readStudent(tx *docstore.Tx, teacherID, studentID string, st *domain.Student) error {
	*st = domain.Student{}
	err := tx.Get(domain.StudentPath(teacherID, studentID), st)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.ErrStudentNotFound
	}
	if err != nil {
		return err
	}
	st.ID = studentID
	return nil
}

func bossLabel(def domain.BattleDefinition) string {
	if def.BossName != "" {
		return def.BossName
	}
	if def.Name != "" {
		return def.Name
	}
	return "the boss"
}
