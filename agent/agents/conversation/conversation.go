// Package conversation implements the general-dialogue agent. It is the
// default route and the fallback when an uploaded image cannot be
// classified.
package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/agent/state"
)

const apology = "I'm sorry, I ran into a problem answering that. Please try again in a moment."

type Config struct {
	// ContextWindow bounds how many recent turns are sent to the model.
	ContextWindow int `envconfig:"CONTEXT_WINDOW" split_words:"true" default:"20"`
}

type Agent struct {
	llm          contract.ChatCompleter
	systemPrompt string
	window       int
}

func New(llm contract.ChatCompleter, systemPrompt string, cfg Config) *Agent {
	window := cfg.ContextWindow
	if window <= 0 {
		window = 20
	}
	return &Agent{llm: llm, systemPrompt: systemPrompt, window: window}
}

func (a *Agent) Type() contract.AgentType {
	return contract.AgentConversation
}

func (a *Agent) Handle(ctx context.Context, in contract.TurnInput, history []state.Turn) (contract.AgentResult, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.HasImage() {
		// Routed here because the image modality was ambiguous.
		text = "I uploaded a medical image but did not say what kind it is."
	}
	if text == "" {
		return contract.ErrorResult(a.Type(), "Please type a question or describe what you need help with."), nil
	}

	user := BuildUserPrompt(text, history, a.window)

	answer, err := a.llm.Complete(ctx, a.systemPrompt, user)
	if err != nil {
		log.Error().Err(err).Msg("conversation completion failed")
		return contract.ErrorResult(a.Type(), apology), nil
	}

	return contract.AgentResult{
		Status:   contract.StatusOK,
		Agent:    a.Type(),
		Response: answer,
	}, nil
}

// BuildUserPrompt renders the recent history window and the current
// question into one user message. Shared by the other text agents.
func BuildUserPrompt(text string, history []state.Turn, window int) string {
	var b strings.Builder
	if window > 0 && len(history) > 0 {
		start := len(history) - window
		if start < 0 {
			start = 0
		}
		b.WriteString("Conversation so far:\n")
		for _, t := range history[start:] {
			content := strings.TrimSpace(t.Content)
			if content == "" {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", t.Role, content)
		}
		b.WriteString("\n")
	}
	b.WriteString("Current message: ")
	b.WriteString(text)
	return b.String()
}
