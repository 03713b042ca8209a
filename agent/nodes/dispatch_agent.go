package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ngoclinhvu/medica/agent/agents/retrieval"
	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/agent/state"
)

func DispatchAgent(ctx context.Context, in *GraphState, registry contract.Registry, fallback FallbackPolicy) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state has no session", contract.ErrValidation)
	}

	result, err := runAgent(ctx, registry, in.Classification.Agent, in.Input, in.Session.Turns)
	if err != nil {
		return nil, err
	}

	// A weak document answer is worth one shot at the live web before it
	// reaches the user.
	if fallback.Enabled && result.Agent == contract.AgentRetrieval && weakRetrieval(result, fallback.MinConfidence) {
		log.Info().
			Str("session_id", in.SessionID).
			Float64("confidence", result.Confidence).
			Msg("retrieval answer weak, re-routing to web search")

		searchResult, err := runAgent(ctx, registry, contract.AgentSearch, in.Input, in.Session.Turns)
		if err != nil {
			return nil, err
		}
		if searchResult.Status == contract.StatusOK {
			result = searchResult
		}
	}

	in.Result = result
	return in, nil
}

func runAgent(ctx context.Context, registry contract.Registry, agentType contract.AgentType, input contract.TurnInput, history []state.Turn) (contract.AgentResult, error) {
	agent, ok := registry.Resolve(agentType)
	if !ok {
		return contract.AgentResult{}, fmt.Errorf("%w: %s", ErrUnknownAgent, agentType)
	}

	result, err := agent.Handle(ctx, input, history)
	if err != nil {
		// Agents report recoverable trouble through error results; a Go
		// error here is a programming fault.
		return contract.AgentResult{}, fmt.Errorf("%w: %s: %v", contract.ErrAgentExecution, agentType, err)
	}
	if result.Agent == "" {
		result.Agent = agentType
	}
	return result, nil
}

func weakRetrieval(result contract.AgentResult, minConfidence float64) bool {
	if result.Status != contract.StatusOK {
		return false
	}
	if retrieval.InsufficientInfo(result.Response) {
		return true
	}
	return len(result.Sources) > 0 && result.Confidence < minConfidence
}
