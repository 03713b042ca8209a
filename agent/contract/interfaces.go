package contract

import (
	"context"

	"github.com/ngoclinhvu/medica/agent/state"
)

// Agent handles one classified turn. Implementations must treat the
// history as read-only; the orchestrator is the only session writer.
type Agent interface {
	Type() AgentType
	Handle(ctx context.Context, in TurnInput, history []state.Turn) (AgentResult, error)
}

// ChatCompleter is the text-generation dependency shared by the
// non-vision agents.
type ChatCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Registry resolves agents by type.
type Registry interface {
	Resolve(agentType AgentType) (Agent, bool)
}
