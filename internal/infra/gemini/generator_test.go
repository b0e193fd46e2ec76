package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuestions(t *testing.T) {
	raw := "```json\n" + `[
  {"text": "2 + 2?", "answers": ["3", "4", "5", "22"], "correctAnswerIndex": 1},
  {"text": "", "answers": ["a", "b"], "correctAnswerIndex": 0},
  {"text": "Capital of France?", "answers": ["Paris"], "correctAnswerIndex": 0},
  {"text": "3 x 3?", "answers": ["6", "9"], "correctAnswerIndex": 7},
  {"text": "10 / 2?", "answers": ["5", "2"], "correctAnswerIndex": 0, "damage": 8}
]` + "\n```"

	questions, err := parseQuestions(raw)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "2 + 2?", questions[0].Text)
	assert.Equal(t, 5, questions[0].Damage)
	assert.Equal(t, 8, questions[1].Damage)
}

func TestParseQuestionsRejectsGarbage(t *testing.T) {
	_, err := parseQuestions("I cannot help with that.")
	assert.Error(t, err)

	_, err = parseQuestions(`[{"text": "", "answers": []}]`)
	assert.Error(t, err)
}

func TestNewGeneratorRequiresKey(t *testing.T) {
	_, err := NewGenerator(t.Context(), "", "")
	assert.Error(t, err)
}
