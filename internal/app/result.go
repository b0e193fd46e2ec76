package app

import (
	"errors"

	"academy-of-heroes/internal/docstore"
	"academy-of-heroes/internal/domain"
)

const genericFailure = "Something went wrong. Please try again."

// Result is the uniform response of every player or teacher action.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`

	err error
}

// Err returns the error behind a failed Result.
func (r Result) Err() error {
	return r.err
}

func ok(message string, data any) Result {
	return Result{Success: true, Message: message, Data: data}
}

// Fail converts err into a failed Result. Rule rejections keep their player
// facing message; not-found and validation errors get a fixed message; anything
// else is reported generically.
func Fail(err error) Result {
	return Result{Error: PublicMessage(err), err: err}
}

// PublicMessage returns the text of err that is safe to show a user.
func PublicMessage(err error) string {
	var rule *domain.RuleError
	switch {
	case errors.As(err, &rule):
		return rule.Message
	case errors.Is(err, domain.ErrStudentNotFound):
		return "That hero could not be found."
	case errors.Is(err, domain.ErrBattleNotFound):
		return "That battle could not be found."
	case errors.Is(err, domain.ErrNoActiveBattle):
		return "There is no active battle."
	case errors.Is(err, domain.ErrInvalidDefinition):
		return "The battle definition is incomplete."
	case errors.Is(err, domain.ErrInvalidInput):
		return "The request was not valid."
	case errors.Is(err, docstore.ErrConflict):
		return "The battlefield is busy. Please try again."
	default:
		return genericFailure
	}
}

// IsPlatformError reports whether err is an infrastructure failure rather
// than a rule, validation, or not-found outcome.
func IsPlatformError(err error) bool {
	return PublicMessage(err) == genericFailure
}
