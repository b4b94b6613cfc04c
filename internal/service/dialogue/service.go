// Package dialogue wraps the chat-completion API. The adapter is stateless:
// the caller supplies the full ordered history on every call.
package dialogue

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/quietriver/avatar-stage/backend/internal/model/conversation"
	"github.com/quietriver/avatar-stage/backend/internal/model/fault"
)

const (
	// DefaultSystemPrompt is the fixed assistant instruction.
	DefaultSystemPrompt = "You are a concise, friendly assistant."

	defaultModel       = "gpt-4o-mini"
	defaultTemperature = 0.6
	defaultTimeout     = 60 * time.Second
)

// Config carries chat-completion credentials and generation settings.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Temperature  float64
	Timeout      time.Duration
}

// Service is the chat-completion adapter.
type Service struct {
	client       openai.Client
	model        string
	systemPrompt string
	temperature  float64
	timeout      time.Duration
}

// NewService builds the adapter, filling generation defaults.
func NewService(cfg Config) *Service {
	// Failures are surfaced to the user immediately, never retried.
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Service{
		client:       openai.NewClient(opts...),
		model:        model,
		systemPrompt: systemPrompt,
		temperature:  temperature,
		timeout:      timeout,
	}
}

// Reply sends the system instruction, the prior history in order, and the new
// prompt, returning the top completion's text.
func (s *Service) Reply(ctx context.Context, prompt string, history []conversation.Turn) (string, error) {
	const op = "dialogue.reply"

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(s.systemPrompt))
	for _, turn := range history {
		switch turn.Role {
		case conversation.RoleUser:
			messages = append(messages, openai.UserMessage(turn.Text))
		case conversation.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Text))
		}
	}
	messages = append(messages, openai.UserMessage(prompt))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       s.model,
		Messages:    messages,
		Temperature: openai.Float(s.temperature),
	})
	if err != nil {
		return "", classify(op, err)
	}
	if len(resp.Choices) == 0 {
		return "", fault.New(fault.Remote, op, "upstream returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// ValidateCredentials performs a cheap authenticated call so credential
// problems surface at session start instead of mid-turn.
func (s *Service) ValidateCredentials(ctx context.Context) error {
	const op = "dialogue.validate"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.client.Models.List(ctx); err != nil {
		return classify(op, err)
	}
	return nil
}

// classify maps SDK errors onto the shared taxonomy.
func classify(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fault.FromStatus(op, apiErr.StatusCode, "")
	}
	return fault.Wrap(fault.Remote, op, err)
}
