package state

import (
	"errors"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// TagHumanValidated marks an assistant turn whose diagnostic content was
// confirmed by a human reviewer before being finalized.
const TagHumanValidated = "HUMAN_VALIDATED"

// Turn is one finalized conversation entry. History only ever grows by
// appending finalized turns; held diagnostic results live in
// PendingValidation until resolved.
type Turn struct {
	Role            Role      `json:"role"`
	Content         string    `json:"content"`
	Agent           string    `json:"agent,omitempty"`
	Tag             string    `json:"tag,omitempty"`
	ResultImage     []byte    `json:"result_image,omitempty"`
	ResultImageMIME string    `json:"result_image_mime,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// HeldResult is the snapshot of an agent answer parked at the validation
// gate. It is not part of history until the reviewer accepts it.
type HeldResult struct {
	Agent           string  `json:"agent"`
	Response        string  `json:"response"`
	Confidence      float64 `json:"confidence"`
	ResultImage     []byte  `json:"result_image,omitempty"`
	ResultImageMIME string  `json:"result_image_mime,omitempty"`
}

// PendingValidation holds at most one unresolved diagnostic result per
// session.
type PendingValidation struct {
	Held      HeldResult `json:"held"`
	CreatedAt time.Time  `json:"created_at"`
}

type GateState string

const (
	GateNone    GateState = "NONE"
	GatePending GateState = "PENDING"
)

// Session is the unit of persisted conversation state. All mutation goes
// through the orchestrator; agents only ever read it.
type Session struct {
	ID        string             `json:"id"`
	Turns     []Turn             `json:"turns"`
	Pending   *PendingValidation `json:"pending,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Session) GateState() GateState {
	if s.Pending != nil {
		return GatePending
	}
	return GateNone
}

func (s *Session) AppendTurn(t Turn) {
	s.Turns = append(s.Turns, t)
}

// Window returns up to n most recent turns, oldest first.
func (s *Session) Window(n int) []Turn {
	if n <= 0 || len(s.Turns) == 0 {
		return nil
	}
	if len(s.Turns) <= n {
		return s.Turns
	}
	return s.Turns[len(s.Turns)-n:]
}

// Trim drops the oldest turns so at most max remain.
func (s *Session) Trim(max int) {
	if max <= 0 || len(s.Turns) <= max {
		return
	}
	s.Turns = append([]Turn(nil), s.Turns[len(s.Turns)-max:]...)
}

func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now
}

// Clone deep-copies the session so stores never hand out shared slices.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if len(s.Turns) > 0 {
		out.Turns = make([]Turn, len(s.Turns))
		for i, t := range s.Turns {
			out.Turns[i] = t
			out.Turns[i].ResultImage = cloneBytes(t.ResultImage)
		}
	}
	if s.Pending != nil {
		pending := *s.Pending
		pending.Held.ResultImage = cloneBytes(s.Pending.Held.ResultImage)
		out.Pending = &pending
	}
	return &out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var (
	ErrNilSession     = errors.New("session is nil")
	ErrInvalidSession = errors.New("session is invalid")
)

func (s *Session) Validate() error {
	if s == nil {
		return ErrNilSession
	}
	if strings.TrimSpace(s.ID) == "" {
		return errors.Join(ErrInvalidSession, errors.New("session id is empty"))
	}
	if s.Pending != nil {
		if strings.TrimSpace(s.Pending.Held.Agent) == "" {
			return errors.Join(ErrInvalidSession, errors.New("pending validation has no agent"))
		}
		if strings.TrimSpace(s.Pending.Held.Response) == "" {
			return errors.Join(ErrInvalidSession, errors.New("pending validation has no response"))
		}
	}
	return nil
}
