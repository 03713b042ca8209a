package orchestratornode

import (
	"context"
	"fmt"

	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/agent/state"
)

func ValidateAndSaveSession(ctx context.Context, in *GraphState, store state.Store, historyLimit int) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state has no session", contract.ErrValidation)
	}

	in.Session.Trim(historyLimit)
	in.Session.Touch(in.Now)

	if err := in.Session.Validate(); err != nil {
		return nil, err
	}
	if err := store.Save(ctx, in.Session); err != nil {
		return nil, err
	}
	return in, nil
}
