package orchestratornode

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/agent/gate"
	"github.com/ngoclinhvu/medica/agent/state"
)

// ApplyGate is the single place agent results are written into session
// state. Diagnostic results are held at the validation gate instead of
// entering history; everything else becomes a finalized assistant turn.
func ApplyGate(in *GraphState) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state has no session", contract.ErrValidation)
	}

	in.Session.AppendTurn(state.Turn{
		Role:      state.RoleUser,
		Content:   userTurnContent(in.Input),
		CreatedAt: in.Now,
	})

	result := in.Result

	if result.Status == contract.StatusOK && result.RequiresValidation {
		err := gate.Hold(in.Session, state.HeldResult{
			Agent:           string(result.Agent),
			Response:        result.Response,
			Confidence:      result.Confidence,
			ResultImage:     result.ResultImage,
			ResultImageMIME: result.ResultImageMIME,
		}, in.Now)
		if err != nil {
			return nil, err
		}
		in.Held = true
		return in, nil
	}

	if result.Status == contract.StatusError {
		log.Warn().
			Str("session_id", in.SessionID).
			Str("agent", string(result.Agent)).
			Msg("agent reported a recoverable failure")
	}

	in.Session.AppendTurn(state.Turn{
		Role:      state.RoleAssistant,
		Content:   result.Response,
		Agent:     string(result.Agent),
		CreatedAt: in.Now,
	})
	return in, nil
}

func userTurnContent(in contract.TurnInput) string {
	text := strings.TrimSpace(in.Text)
	if in.HasImage() {
		if text == "" {
			return "[uploaded a medical image]"
		}
		return text + " [uploaded a medical image]"
	}
	return text
}
