package orchestratornode

import (
	"context"
	"fmt"

	"github.com/ngoclinhvu/medica/agent/contract"
)

func ClassifyTurn(ctx context.Context, in *GraphState, classifier Classifier) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state has no session", contract.ErrValidation)
	}

	classification, err := classifier.Classify(ctx, in.Input, in.Session.Turns)
	if err != nil {
		return nil, err
	}
	if err := classification.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrValidation, err)
	}

	in.Classification = classification
	return in, nil
}
