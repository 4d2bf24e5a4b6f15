package expert

import (
	"context"
	"errors"

	"github.com/expertline/expertline/pkg/provider/llm"
	"github.com/expertline/expertline/pkg/types"
)

// Defaults for the persona completion request, used when no option overrides
// them.
const (
	defaultHistoryLimit = 5
	defaultTemperature  = 0.7
	defaultMaxTokens    = 220
)

// Persona generates in-character answers for a routed expert.
type Persona struct {
	llm llm.Provider

	historyLimit int
	temperature  float64
	maxTokens    int
}

// PersonaOption customises a [Persona].
type PersonaOption func(*Persona)

// WithHistoryLimit bounds how many recent conversation messages the persona
// sees. Non-positive values keep the default.
func WithHistoryLimit(n int) PersonaOption {
	return func(p *Persona) {
		if n > 0 {
			p.historyLimit = n
		}
	}
}

// WithTemperature sets the sampling temperature for answers. Non-positive
// values keep the default.
func WithTemperature(t float64) PersonaOption {
	return func(p *Persona) {
		if t > 0 {
			p.temperature = t
		}
	}
}

// WithMaxTokens caps the answer length in tokens. Non-positive values keep
// the default.
func WithMaxTokens(n int) PersonaOption {
	return func(p *Persona) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// NewPersona creates a Persona backed by the given completion provider.
func NewPersona(provider llm.Provider, opts ...PersonaOption) *Persona {
	p := &Persona{
		llm:          provider,
		historyLimit: defaultHistoryLimit,
		temperature:  defaultTemperature,
		maxTokens:    defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StreamAnswer streams the expert's answer to question. The returned channel
// follows the llm.Provider contract: closed on completion, terminal
// FinishReasonError chunk on mid-stream failure.
func (p *Persona) StreamAnswer(ctx context.Context, question string, expert types.Expert, history []types.Message) (<-chan llm.Chunk, error) {
	req, err := p.buildAnswerRequest(question, expert, history)
	if err != nil {
		return nil, err
	}
	return p.llm.StreamCompletion(ctx, *req)
}

// Answer generates the expert's full answer in one call. Used for greetings
// and other non-streamed completions.
func (p *Persona) Answer(ctx context.Context, question string, expert types.Expert, history []types.Message) (string, error) {
	req, err := p.buildAnswerRequest(question, expert, history)
	if err != nil {
		return "", err
	}
	resp, err := p.llm.Complete(ctx, *req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// buildAnswerRequest assembles the persona completion request: the
// in-character system prompt, the last few history turns, and the question.
// System messages are excluded from the replayed history before the limit is
// applied, so they never crowd out real turns; expert messages are replayed
// in the assistant role.
func (p *Persona) buildAnswerRequest(question string, expert types.Expert, history []types.Message) (*llm.CompletionRequest, error) {
	if question == "" {
		return nil, errors.New("expert: question must not be empty")
	}
	if expert.Name == "" {
		return nil, errors.New("expert: expert name must not be empty")
	}

	messages := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		switch m.Role {
		case types.RoleUser:
			messages = append(messages, llm.Message{Role: "user", Content: m.Content})
		case types.RoleExpert, types.RoleAssistant:
			messages = append(messages, llm.Message{Role: "assistant", Content: m.Content})
		}
	}
	if len(messages) > p.historyLimit {
		messages = messages[len(messages)-p.historyLimit:]
	}
	messages = append(messages, llm.Message{Role: "user", Content: question})

	return &llm.CompletionRequest{
		SystemPrompt: personaSystemPrompt(expert.Name, expert.ExpertiseAreas),
		Messages:     messages,
		Temperature:  p.temperature,
		MaxTokens:    p.maxTokens,
	}, nil
}
