// Package agents assembles the concrete agent set behind the
// contract.Registry interface.
package agents

import (
	"fmt"

	"github.com/ngoclinhvu/medica/agent/agents/conversation"
	"github.com/ngoclinhvu/medica/agent/agents/retrieval"
	"github.com/ngoclinhvu/medica/agent/agents/vision"
	"github.com/ngoclinhvu/medica/agent/agents/websearch"
	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/agent/llm"
	"github.com/ngoclinhvu/medica/agent/prompt"
	"github.com/ngoclinhvu/medica/pkg/llmx"
)

// Registry maps agent types to their implementations.
type Registry struct {
	agents map[contract.AgentType]contract.Agent
}

func NewRegistry(list ...contract.Agent) (*Registry, error) {
	agents := make(map[contract.AgentType]contract.Agent, len(list))
	for _, a := range list {
		if a == nil {
			return nil, fmt.Errorf("%w: nil agent", contract.ErrValidation)
		}
		if _, ok := agents[a.Type()]; ok {
			return nil, fmt.Errorf("%w: duplicate agent %s", contract.ErrValidation, a.Type())
		}
		agents[a.Type()] = a
	}
	return &Registry{agents: agents}, nil
}

func (r *Registry) Resolve(agentType contract.AgentType) (contract.Agent, bool) {
	a, ok := r.agents[agentType]
	return a, ok
}

// Deps carries the external services the agents run on.
type Deps struct {
	Embedder   retrieval.Embedder
	Chunks     retrieval.ChunkSearcher
	Web        websearch.WebSearcher
	Literature websearch.LiteratureSearcher
	Vision     vision.InferenceBackend
}

// Configs carries per-agent tuning.
type Configs struct {
	Conversation conversation.Config
	Retrieval    retrieval.Config
	Search       websearch.Config
	Vision       vision.Config
}

// Build wires the full agent set: one chat client per text agent and one
// vision agent per modality, all sharing the inference backend.
func Build(llmCfg llm.Config, prompts prompt.PromptSet, deps Deps, cfgs Configs) (*Registry, error) {
	if err := llmCfg.Validate(); err != nil {
		return nil, err
	}

	conversationLLM, err := llmx.NewClient(llmCfg.For(contract.AgentConversation))
	if err != nil {
		return nil, fmt.Errorf("conversation llm: %w", err)
	}
	retrievalLLM, err := llmx.NewClient(llmCfg.For(contract.AgentRetrieval))
	if err != nil {
		return nil, fmt.Errorf("retrieval llm: %w", err)
	}
	searchLLM, err := llmx.NewClient(llmCfg.For(contract.AgentSearch))
	if err != nil {
		return nil, fmt.Errorf("search llm: %w", err)
	}

	embedder := deps.Embedder
	if embedder == nil {
		embedder = retrievalLLM
	}

	list := []contract.Agent{
		conversation.New(conversationLLM, prompts.Conversation, cfgs.Conversation),
		retrieval.New(embedder, deps.Chunks, retrievalLLM, prompts.Retrieval, cfgs.Retrieval),
		websearch.New(deps.Web, deps.Literature, searchLLM, prompts.Search, cfgs.Search),
	}
	for _, agentType := range contract.VisionAgents {
		v, err := vision.New(agentType, deps.Vision, cfgs.Vision)
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return NewRegistry(list...)
}
