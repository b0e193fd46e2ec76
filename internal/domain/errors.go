package domain

import "errors"

var (
	// ErrStudentNotFound is returned when a hero document does not exist.
	ErrStudentNotFound = errors.New("student not found")
	// ErrBattleNotFound indicates the battle definition could not be loaded.
	ErrBattleNotFound = errors.New("battle not found")
	// ErrNoActiveBattle is returned when the live battle document is missing.
	ErrNoActiveBattle = errors.New("no active battle")
	// ErrQuestionNotFound indicates the question index is out of range.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidDefinition is returned for malformed battle content.
	ErrInvalidDefinition = errors.New("invalid battle definition")
	// ErrInvalidInput covers malformed request payloads.
	ErrInvalidInput = errors.New("invalid input")

	ErrBattleAlreadyRunning = errors.New("a battle is already running")
	ErrWrongStatus          = errors.New("battle is not in the required state")
	ErrNotParticipant       = errors.New("student has not joined the battle")
	ErrStudentFallen        = errors.New("student has fallen")
	ErrAlreadyAnswered      = errors.New("answer already submitted")
	ErrInvalidAnswer        = errors.New("invalid answer")
	ErrUnknownPower         = errors.New("unknown power")
	ErrPowerNotImplemented  = errors.New("power not implemented")
	ErrPowerLocked          = errors.New("power not available to this hero")
	ErrInsufficientMana     = errors.New("insufficient mana")
	ErrPowerCapReached      = errors.New("power round cap reached")
	ErrNoEligibleAnswers    = errors.New("no eligible answers")
	ErrInvalidTarget        = errors.New("invalid power target")
	ErrUnknownBoon          = errors.New("unknown boon")
	ErrBoonOwned            = errors.New("boon already owned")
	ErrInsufficientGold     = errors.New("insufficient gold")
)

// RuleError is a business rule rejection that carries a message safe to show
// to players. It unwraps to one of the sentinel errors above.
type RuleError struct {
	Kind    error
	Message string
}

func (e *RuleError) Error() string {
	return e.Kind.Error() + ": " + e.Message
}

func (e *RuleError) Unwrap() error {
	return e.Kind
}

// Reject builds a RuleError.
func Reject(kind error, message string) error {
	return &RuleError{Kind: kind, Message: message}
}
