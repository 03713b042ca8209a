package orchestratornode

import (
	"fmt"
	"strings"

	"github.com/ngoclinhvu/medica/agent/contract"
)

const validationPrompt = "A human reviewer must confirm this result before it becomes part of your record. Please reply with yes to accept it or no to reject it, optionally with comments."

func FinalizeEnvelope(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contract.ErrValidation)
	}

	result := in.Result
	response := strings.TrimSpace(result.Response)
	if response == "" {
		return GraphOutput{}, fmt.Errorf("%w: agent returned empty response", contract.ErrValidation)
	}

	envelope := Envelope{
		Status:             EnvelopeSuccess,
		Response:           response,
		Agent:              string(result.Agent),
		ResultImage:        result.ResultImage,
		ResultImageMIME:    result.ResultImageMIME,
		RequiresValidation: in.Held,
	}
	if in.Held {
		envelope.Status = EnvelopePending
		envelope.Response = response + "\n\n" + validationPrompt
	}
	return GraphOutput{Envelope: envelope}, nil
}
