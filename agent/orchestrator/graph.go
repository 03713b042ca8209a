package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/ngoclinhvu/medica/agent/nodes"
)

func (o *Orchestrator) compileProcessTurnGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_or_create_session",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadOrCreateSession(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_or_create_session: %w", err)
	}

	if err := graph.AddLambdaNode("ensure_gate_idle",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.EnsureGateIdle(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node ensure_gate_idle: %w", err)
	}

	if err := graph.AddLambdaNode("validate_message",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ValidateMessage(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_message: %w", err)
	}

	if err := graph.AddLambdaNode("classify_turn",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ClassifyTurn(ctx, in, o.classifier)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node classify_turn: %w", err)
	}

	if err := graph.AddLambdaNode("dispatch_agent",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.DispatchAgent(ctx, in, o.agents, nodex.FallbackPolicy{
				Enabled:       o.cfg.EnableSearchFallback,
				MinConfidence: o.cfg.MinRetrievalConfidence,
			})
		}),
	); err != nil {
		return nil, fmt.Errorf("add node dispatch_agent: %w", err)
	}

	if err := graph.AddLambdaNode("apply_gate",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ApplyGate(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node apply_gate: %w", err)
	}

	if err := graph.AddLambdaNode("validate_and_save_session",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ValidateAndSaveSession(ctx, in, o.store, o.cfg.HistoryLimit)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_and_save_session: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_envelope",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeEnvelope(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_envelope: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_or_create_session"},
		{"load_or_create_session", "ensure_gate_idle"},
		{"ensure_gate_idle", "validate_message"},
		{"validate_message", "classify_turn"},
		{"classify_turn", "dispatch_agent"},
		{"dispatch_agent", "apply_gate"},
		{"apply_gate", "validate_and_save_session"},
		{"validate_and_save_session", "finalize_envelope"},
		{"finalize_envelope", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.process_turn"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
