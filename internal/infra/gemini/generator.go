// Package gemini drafts battle content with Google's Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"academy-of-heroes/internal/domain"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

// Generator implements app.Generator.
type Generator struct {
	client *genai.Client
	model  string
}

func NewGenerator(ctx context.Context, apiKey, model string) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Generator{client: client, model: model}, nil
}

// GenerateQuestions asks for count multiple choice questions about topic as JSON.
func (g *Generator) GenerateQuestions(ctx context.Context, topic string, count int) ([]domain.Question, error) {
	prompt := fmt.Sprintf(`Write %d multiple choice questions for school students about %q.
Respond with a JSON array only. Each element has the fields:
"text" (string), "answers" (array of 4 strings), "correctAnswerIndex" (0-based integer).`, count, topic)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	questions, err := parseQuestions(resp.Text())
	if err != nil {
		return nil, err
	}
	if len(questions) > count {
		questions = questions[:count]
	}
	return questions, nil
}

func (g *Generator) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}

// parseQuestions decodes a model reply, tolerating a markdown code fence, and
// drops questions that would not pass definition validation.
func parseQuestions(raw string) ([]domain.Question, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var questions []domain.Question
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &questions); err != nil {
		return nil, fmt.Errorf("decode generated questions: %w", err)
	}
	out := questions[:0]
	for _, q := range questions {
		q.Text = strings.TrimSpace(q.Text)
		if q.Text == "" || len(q.Answers) < 2 || q.CorrectAnswerIndex < 0 || q.CorrectAnswerIndex >= len(q.Answers) {
			continue
		}
		if q.Damage <= 0 {
			q.Damage = 5
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("generator returned no usable questions")
	}
	return out, nil
}
