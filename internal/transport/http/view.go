package http

import "academy-of-heroes/internal/domain"

// studentView hides other heroes' answers and every correctness flag while a
// question is still open.
func studentView(state domain.LiveBattleState, studentID string) domain.LiveBattleState {
	if state.Status != domain.StatusWaiting && state.Status != domain.StatusInProgress {
		return state
	}
	responses := make(map[string]domain.Response, len(state.Responses))
	for id, resp := range state.Responses {
		hidden := domain.Response{AnswerIndex: -1, SubmittedAt: resp.SubmittedAt}
		if id == studentID {
			hidden.AnswerIndex = resp.AnswerIndex
		}
		responses[id] = hidden
	}
	state.Responses = responses
	return state
}
