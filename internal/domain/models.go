package domain

import "time"

// HeroClass is the archetype a student picks when their hero is created.
type HeroClass string

const (
	ClassGuardian HeroClass = "Guardian"
	ClassHealer   HeroClass = "Healer"
	ClassMage     HeroClass = "Mage"
)

// Valid reports whether c is one of the playable classes.
func (c HeroClass) Valid() bool {
	_, ok := ClassStats[c]
	return ok
}

// Student is a hero owned by a teacher.
type Student struct {
	ID            string         `json:"id"`
	StudentName   string         `json:"studentName"`
	CharacterName string         `json:"characterName"`
	Class         HeroClass      `json:"class"`
	Level         int            `json:"level"`
	XP            int            `json:"xp"`
	Gold          int            `json:"gold"`
	HP            int            `json:"hp"`
	MaxHP         int            `json:"maxHp"`
	MP            int            `json:"mp"`
	MaxMP         int            `json:"maxMp"`
	Inventory     map[string]int `json:"inventory,omitempty"`
	OwnedBoonIDs  []string       `json:"ownedBoonIds,omitempty"`
	AvatarKey     string         `json:"avatarKey,omitempty"`
	Online        bool           `json:"online"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Fallen reports whether the hero has been knocked out.
func (s Student) Fallen() bool {
	return s.HP <= 0
}

// OwnsBoon reports whether the hero already bought boonID.
func (s Student) OwnsBoon(boonID string) bool {
	for _, id := range s.OwnedBoonIDs {
		if id == boonID {
			return true
		}
	}
	return false
}

// BattleStatus is the lifecycle position of a live battle.
type BattleStatus string

const (
	StatusWaiting        BattleStatus = "WAITING"
	StatusInProgress     BattleStatus = "IN_PROGRESS"
	StatusShowingResults BattleStatus = "SHOWING_RESULTS"
	StatusEnded          BattleStatus = "BATTLE_ENDED"
)

// Response is a student's answer for the current round.
type Response struct {
	AnswerIndex int       `json:"answerIndex"`
	Correct     bool      `json:"correct"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// LiveBattleState is the singleton document describing the running battle.
type LiveBattleState struct {
	BattleID             string              `json:"battleId"`
	Status               BattleStatus        `json:"status"`
	CurrentQuestionIndex int                 `json:"currentQuestionIndex"`
	BossHP               int                 `json:"bossHp"`
	BossMaxHP            int                 `json:"bossMaxHp"`
	Participants         []string            `json:"participants"`
	Responses            map[string]Response `json:"responses"`
	PowerUsage           map[string][]string `json:"powerUsage"`
	RemovedAnswerIndices []int               `json:"removedAnswerIndices"`
	ShieldedStudents     []string            `json:"shieldedStudents"`
	PowerEventMessage    string              `json:"powerEventMessage,omitempty"`
	LastRoundDamage      int                 `json:"lastRoundDamage"`
	TotalDamage          int                 `json:"totalDamage"`
	CorrectTally         map[string]int      `json:"correctTally"`
	Victory              bool                `json:"victory"`
	StartedAt            time.Time           `json:"startedAt"`
	UpdatedAt            time.Time           `json:"updatedAt"`
}

// IsParticipant reports whether studentID joined the battle.
func (s LiveBattleState) IsParticipant(studentID string) bool {
	return contains(s.Participants, studentID)
}

// IsShielded reports whether studentID is protected this round.
func (s LiveBattleState) IsShielded(studentID string) bool {
	return contains(s.ShieldedStudents, studentID)
}

// IsRemoved reports whether answer index idx was struck from the current question.
func (s LiveBattleState) IsRemoved(idx int) bool {
	for _, r := range s.RemovedAnswerIndices {
		if r == idx {
			return true
		}
	}
	return false
}

// PowerUses returns how many times power was cast this round.
func (s LiveBattleState) PowerUses(power string) int {
	return len(s.PowerUsage[power])
}

// CastThisRound reports whether studentID already cast power this round.
func (s LiveBattleState) CastThisRound(power, studentID string) bool {
	return contains(s.PowerUsage[power], studentID)
}

// RecordPowerUse appends studentID to the round usage list for power.
func (s *LiveBattleState) RecordPowerUse(power, studentID string) {
	if s.PowerUsage == nil {
		s.PowerUsage = make(map[string][]string)
	}
	s.PowerUsage[power] = append(s.PowerUsage[power], studentID)
}

// ResetRound clears every per-round field.
func (s *LiveBattleState) ResetRound() {
	s.Responses = make(map[string]Response)
	s.PowerUsage = make(map[string][]string)
	s.RemovedAnswerIndices = []int{}
	s.ShieldedStudents = []string{}
	s.PowerEventMessage = ""
	s.LastRoundDamage = 0
}

// Question is a multiple choice question in a boss battle.
type Question struct {
	Text               string   `json:"text" yaml:"text"`
	Answers            []string `json:"answers" yaml:"answers"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex" yaml:"correctAnswerIndex"`
	Damage             int      `json:"damage" yaml:"damage"` // hp lost on a wrong answer
}

// Rewards granted per correct answer when a battle ends.
type Rewards struct {
	XPPerCorrect   int `json:"xpPerCorrect" yaml:"xpPerCorrect"`
	GoldPerCorrect int `json:"goldPerCorrect" yaml:"goldPerCorrect"`
}

// BattleDefinition is the teacher-authored, read-only content of a boss battle.
type BattleDefinition struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	BossName  string     `json:"bossName" yaml:"bossName"`
	BossHP    int        `json:"bossHp" yaml:"bossHp"`
	Questions []Question `json:"questions" yaml:"questions"`
	Rewards   Rewards    `json:"rewards" yaml:"rewards"`
}

// Question returns the question at idx.
func (d BattleDefinition) Question(idx int) (Question, error) {
	if idx < 0 || idx >= len(d.Questions) {
		return Question{}, ErrQuestionNotFound
	}
	return d.Questions[idx], nil
}

// Validate checks the structural rules a definition must satisfy before use.
func (d BattleDefinition) Validate() error {
	if d.ID == "" || len(d.Questions) == 0 {
		return ErrInvalidDefinition
	}
	for _, q := range d.Questions {
		if len(q.Answers) < 2 || q.CorrectAnswerIndex < 0 || q.CorrectAnswerIndex >= len(q.Answers) {
			return ErrInvalidDefinition
		}
		if q.Damage < 0 {
			return ErrInvalidDefinition
		}
	}
	return nil
}

// GameLogEntry is a human readable record of something that happened in class.
type GameLogEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
}

// StudentReward is what one hero earned from a battle.
type StudentReward struct {
	StudentID string `json:"studentId"`
	Correct   int    `json:"correct"`
	XP        int    `json:"xp"`
	Gold      int    `json:"gold"`
	LeveledUp bool   `json:"leveledUp"`
}

// BattleSummary is written when a battle ends.
type BattleSummary struct {
	ID          string          `json:"id"`
	BattleID    string          `json:"battleId"`
	BattleName  string          `json:"battleName"`
	Victory     bool            `json:"victory"`
	TotalDamage int             `json:"totalDamage"`
	Rewards     []StudentReward `json:"rewards"`
	EndedAt     time.Time       `json:"endedAt"`
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
