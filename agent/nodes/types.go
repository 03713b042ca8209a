package orchestratornode

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message has neither text nor image")
	ErrInvalidSession = errors.New("session id is empty")
	ErrUnknownAgent   = errors.New("no agent registered for classification")
)

// Classifier maps one turn to exactly one agent.
type Classifier interface {
	Classify(ctx context.Context, in contract.TurnInput, history []state.Turn) (contract.Classification, error)
}

// Envelope is the caller-facing outcome of one orchestrated call.
type Envelope struct {
	Status             string `json:"status"`
	Response           string `json:"response"`
	Agent              string `json:"agent,omitempty"`
	Message            string `json:"message,omitempty"`
	RequiresValidation bool   `json:"requires_validation"`
	ResultImage        []byte `json:"result_image,omitempty"`
	ResultImageMIME    string `json:"result_image_mime,omitempty"`
}

const (
	EnvelopeSuccess   = "success"
	EnvelopePending   = "pending_validation"
	EnvelopeValidated = "validated"
	EnvelopeRejected  = "rejected"
	EnvelopeError     = "error"
)

type GraphInput struct {
	SessionID string
	Input     contract.TurnInput
}

type GraphOutput struct {
	Envelope Envelope
}

type GraphState struct {
	SessionID string
	Input     contract.TurnInput
	Now       time.Time

	Session        *state.Session
	Classification contract.Classification
	Result         contract.AgentResult
	Held           bool
}

// FallbackPolicy controls the weak-retrieval re-route to web search.
type FallbackPolicy struct {
	Enabled       bool
	MinConfidence float64
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	return &GraphState{
		SessionID: sessionID,
		Input:     in.Input,
		Now:       nowFn().UTC(),
	}, nil
}

// ValidateMessage runs after the gate check so a session holding a
// pending validation always answers with the pending error, regardless
// of what the new turn contains.
func ValidateMessage(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, ErrInvalidMessage
	}
	if strings.TrimSpace(in.Input.Text) == "" && !in.Input.HasImage() {
		return nil, ErrInvalidMessage
	}
	if in.Input.HasImage() {
		if err := in.Input.ValidateImage(); err != nil {
			return nil, err
		}
	}
	return in, nil
}
