package app

import (
	"context"
	"errors"
	"fmt"

	"academy-of-heroes/internal/docstore"
	"academy-of-heroes/internal/domain"
	"go.uber.org/zap"
)

// PowerRequest is a hero casting a power during a live battle.
type PowerRequest struct {
	TeacherID string `json:"teacherId"`
	StudentID string `json:"studentId"`
	BattleID  string `json:"battleId"`
	Power     string `json:"power"`
	TargetID  string `json:"targetId,omitempty"`
}

// cast is everything a power handler may read or change. Handlers mutate
// state, caster and target in place; the caller persists them.
type cast struct {
	power    domain.Power
	state    *domain.LiveBattleState
	caster   *domain.Student
	target   *domain.Student
	question domain.Question
	intn     func(int) int
}

// powerHandler applies a power's effect and returns the event message shown
// to every participant.
type powerHandler func(c *cast) (string, error)

// powerHandlers maps power names to their effect. Powers in the catalogue
// without an entry here are reported as not implemented.
var powerHandlers = map[string]powerHandler{
	domain.PowerNaturesGuidance: naturesGuidance,
	domain.PowerArcaneBolt:      arcaneBolt,
	domain.PowerGuardiansShield: guardiansShield,
	domain.PowerMendingLight:    mendingLight,
}

// ActivatePower dispatches a power by name. Unknown and unimplemented powers
// fail without touching any document. For implemented powers the battle
// definition is read first, then caster, target and live battle are validated
// and updated in one transaction; the log entry is written after commit.
func (s *BattleService) ActivatePower(ctx context.Context, req PowerRequest) Result {
	power, known := domain.LookupPower(req.Power)
	if !known {
		return Fail(domain.Reject(domain.ErrUnknownPower, "That power does not exist."))
	}
	handler, implemented := s.handlers[power.Name]
	if !implemented {
		return Fail(domain.Reject(domain.ErrPowerNotImplemented, power.Name+" is not implemented yet."))
	}

	def, err := s.loadDefinition(ctx, req.TeacherID, req.BattleID)
	if err != nil {
		return s.fail("activate power", req.TeacherID, err)
	}

	var (
		state   domain.LiveBattleState
		caster  domain.Student
		message string
	)
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		if err := readLive(tx, req.TeacherID, &state); err != nil {
			return err
		}
		if state.BattleID != req.BattleID {
			return domain.Reject(domain.ErrNoActiveBattle, "This battle is no longer active.")
		}
		if err := readStudent(tx, req.TeacherID, req.StudentID, &caster); err != nil {
			return err
		}
		var target *domain.Student
		if power.Targeted && req.TargetID != "" {
			if req.TargetID == req.StudentID {
				target = &caster
			} else {
				var t domain.Student
				if err := readStudent(tx, req.TeacherID, req.TargetID, &t); err != nil {
					if errors.Is(err, domain.ErrStudentNotFound) {
						return domain.Reject(domain.ErrInvalidTarget, "That ally could not be found.")
					}
					return err
				}
				target = &t
			}
		}

		if err := checkEligibility(power, &state, &caster); err != nil {
			return err
		}
		question, err := def.Question(state.CurrentQuestionIndex)
		if err != nil {
			return err
		}
		if target != nil && !state.IsParticipant(target.ID) {
			return domain.Reject(domain.ErrInvalidTarget, "That ally is not in this battle.")
		}

		msg, err := handler(&cast{
			power:    power,
			state:    &state,
			caster:   &caster,
			target:   target,
			question: question,
			intn:     s.intn,
		})
		if err != nil {
			return err
		}
		message = msg

		now := s.now()
		caster.MP -= power.MPCost
		caster.UpdatedAt = now
		state.RecordPowerUse(power.Name, caster.ID)
		state.PowerEventMessage = message
		state.UpdatedAt = now

		if err := tx.Set(domain.LiveBattlePath(req.TeacherID), state); err != nil {
			return err
		}
		if err := tx.Set(domain.StudentPath(req.TeacherID, caster.ID), caster); err != nil {
			return err
		}
		if target != nil && target != &caster {
			target.UpdatedAt = now
			return tx.Set(domain.StudentPath(req.TeacherID, target.ID), target)
		}
		return nil
	})
	if err != nil {
		return s.fail("activate power", req.TeacherID, err)
	}

	s.logger.Info("power activated",
		zap.String("teacher", req.TeacherID),
		zap.String("student", req.StudentID),
		zap.String("power", power.Name))
	s.after(ctx, req.TeacherID, state, req.StudentID, LogPower, message)
	return ok(message, nil)
}

// checkEligibility holds the rules every power shares: the battle is taking
// answers, the caster is an able participant of the right class and level,
// can pay the mana cost, and the power's round cap is not reached.
func checkEligibility(power domain.Power, state *domain.LiveBattleState, caster *domain.Student) error {
	if state.Status != domain.StatusInProgress {
		return domain.Reject(domain.ErrWrongStatus, "Powers can only be used while a question is open.")
	}
	if !state.IsParticipant(caster.ID) {
		return domain.Reject(domain.ErrNotParticipant, "Join the battle before using powers.")
	}
	if caster.Fallen() {
		return domain.Reject(domain.ErrStudentFallen, "Your hero has fallen and cannot use powers.")
	}
	if caster.Class != power.Class || caster.Level < power.Level {
		return domain.Reject(domain.ErrPowerLocked, fmt.Sprintf("%s is not available to your hero.", power.Name))
	}
	if caster.MP < power.MPCost {
		return domain.Reject(domain.ErrInsufficientMana, fmt.Sprintf("Not enough MP to cast %s.", power.Name))
	}
	if power.RoundCap > 0 && state.PowerUses(power.Name) >= power.RoundCap {
		return domain.Reject(domain.ErrPowerCapReached,
			fmt.Sprintf("%s can only be used %s per round.", power.Name, times(power.RoundCap)))
	}
	return nil
}

// naturesGuidance strikes one random incorrect, not yet removed answer.
func naturesGuidance(c *cast) (string, error) {
	eligible := make([]int, 0, len(c.question.Answers))
	for i := range c.question.Answers {
		if i == c.question.CorrectAnswerIndex || c.state.IsRemoved(i) {
			continue
		}
		eligible = append(eligible, i)
	}
	if len(eligible) == 0 {
		return "", domain.Reject(domain.ErrNoEligibleAnswers, "There are no more incorrect answers to remove.")
	}
	pick := eligible[c.intn(len(eligible))]
	c.state.RemovedAnswerIndices = append(c.state.RemovedAnswerIndices, pick)
	return fmt.Sprintf("%s used Nature's Guidance and an incorrect answer faded away!", heroName(c.caster)), nil
}

func arcaneBolt(c *cast) (string, error) {
	if c.state.BossHP <= 0 {
		return "", domain.Reject(domain.ErrInvalidTarget, "The boss has already been defeated.")
	}
	dmg := c.power.Amount
	if dmg > c.state.BossHP {
		dmg = c.state.BossHP
	}
	c.state.BossHP -= dmg
	c.state.LastRoundDamage += dmg
	c.state.TotalDamage += dmg
	return fmt.Sprintf("%s hurled an Arcane Bolt for %d damage!", heroName(c.caster), dmg), nil
}

func guardiansShield(c *cast) (string, error) {
	if c.state.IsShielded(c.caster.ID) {
		return "", domain.Reject(domain.ErrPowerCapReached, "You are already shielded this round.")
	}
	c.state.ShieldedStudents = append(c.state.ShieldedStudents, c.caster.ID)
	return fmt.Sprintf("%s raised a Guardian's Shield!", heroName(c.caster)), nil
}

func mendingLight(c *cast) (string, error) {
	if c.target == nil {
		return "", domain.Reject(domain.ErrInvalidTarget, "Choose an ally to heal.")
	}
	if c.target.Fallen() {
		return "", domain.Reject(domain.ErrInvalidTarget, heroName(c.target)+" has fallen and cannot be healed.")
	}
	if c.target.HP >= c.target.MaxHP {
		return "", domain.Reject(domain.ErrInvalidTarget, heroName(c.target)+" is already at full health.")
	}
	before := c.target.HP
	c.target.HP = clamp(c.target.HP+c.power.Amount, 0, c.target.MaxHP)
	return fmt.Sprintf("%s restored %d HP to %s!", heroName(c.caster), c.target.HP-before, heroName(c.target)), nil
}

func heroName(st *domain.Student) string {
	if st.CharacterName != "" {
		return st.CharacterName
	}
	return st.StudentName
}

func times(n int) string {
	switch n {
	case 1:
		return "once"
	case 2:
		return "twice"
	default:
		return fmt.Sprintf("%d times", n)
	}
}
