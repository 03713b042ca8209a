// Package gate implements the human-validation checkpoint for diagnostic
// results. At most one result is ever held per session; while it is held,
// new turns are rejected and the held answer is excluded from history.
package gate

import (
	"fmt"
	"strings"
	"time"

	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/agent/state"
)

// Outcome is the reviewer's decision.
type Outcome string

const (
	OutcomeAccepted Outcome = "validated"
	OutcomeRejected Outcome = "rejected"
)

// ParseOutcome normalizes the reviewer's yes/no submission.
func ParseOutcome(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "true", "accept", "accepted":
		return true, nil
	case "no", "n", "false", "reject", "rejected":
		return false, nil
	default:
		return false, fmt.Errorf("%w: validation result must be yes or no, got %q", contract.ErrValidation, raw)
	}
}

// EnsureIdle rejects the call when a validation is already pending.
func EnsureIdle(s *state.Session) error {
	if s.GateState() == state.GatePending {
		return contract.ErrValidationPending
	}
	return nil
}

// Hold parks a diagnostic result at the gate. The session must be idle.
func Hold(s *state.Session, held state.HeldResult, now time.Time) error {
	if err := EnsureIdle(s); err != nil {
		return err
	}
	if strings.TrimSpace(held.Agent) == "" || strings.TrimSpace(held.Response) == "" {
		return fmt.Errorf("%w: held result needs an agent and a response", contract.ErrValidation)
	}
	s.Pending = &state.PendingValidation{Held: held, CreatedAt: now}
	return nil
}

// Resolution describes what Resolve appended to history.
type Resolution struct {
	Outcome Outcome
	Turn    state.Turn
}

// Resolve applies the reviewer's decision to the held result. Acceptance
// finalizes the held answer as a validated assistant turn; rejection
// discards it and records a system note so later turns see the result was
// not confirmed. Either way the gate returns to idle exactly once.
func Resolve(s *state.Session, accept bool, comments string, now time.Time) (Resolution, error) {
	if s.GateState() != state.GatePending {
		return Resolution{}, contract.ErrNoPendingValidation
	}

	held := s.Pending.Held
	s.Pending = nil

	comments = strings.TrimSpace(comments)

	if accept {
		content := held.Response
		if comments != "" {
			content += "\n\nReviewer comments: " + comments
		}
		turn := state.Turn{
			Role:            state.RoleAssistant,
			Content:         content,
			Agent:           held.Agent,
			Tag:             state.TagHumanValidated,
			ResultImage:     held.ResultImage,
			ResultImageMIME: held.ResultImageMIME,
			CreatedAt:       now,
		}
		s.AppendTurn(turn)
		return Resolution{Outcome: OutcomeAccepted, Turn: turn}, nil
	}

	note := fmt.Sprintf("The %s analysis was reviewed and rejected by a human validator.", held.Agent)
	if comments != "" {
		note += " Reviewer comments: " + comments
	}
	turn := state.Turn{
		Role:      state.RoleSystem,
		Content:   note,
		Agent:     held.Agent,
		CreatedAt: now,
	}
	s.AppendTurn(turn)
	return Resolution{Outcome: OutcomeRejected, Turn: turn}, nil
}
