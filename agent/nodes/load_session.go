package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/agent/gate"
	"github.com/ngoclinhvu/medica/agent/state"
)

func LoadOrCreateSession(ctx context.Context, in *GraphState, store state.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contract.ErrValidation)
	}

	session, err := store.Load(ctx, in.SessionID)
	if errors.Is(err, state.ErrSessionNotFound) {
		session = state.NewSession(in.SessionID, in.Now)
	} else if err != nil {
		return nil, err
	}

	in.Session = session
	return in, nil
}

// EnsureGateIdle rejects the turn while a validation is pending. Nothing
// is classified or dispatched and the session is left untouched.
func EnsureGateIdle(in *GraphState) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state has no session", contract.ErrValidation)
	}
	if err := gate.EnsureIdle(in.Session); err != nil {
		return nil, err
	}
	return in, nil
}
