// Package orchestrator serializes the per-session pipeline: classify the
// turn, run one agent, pass the result through the validation gate, and
// persist the session. It is the only writer of session state.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/agent/gate"
	nodex "github.com/ngoclinhvu/medica/agent/nodes"
	"github.com/ngoclinhvu/medica/agent/state"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

// Envelope is the caller-facing outcome of one orchestrated call.
type Envelope = nodex.Envelope

type Config struct {
	// HistoryLimit bounds how many finalized turns a session retains.
	HistoryLimit int `envconfig:"HISTORY_LIMIT" split_words:"true" default:"40"`
	// EnableSearchFallback re-routes weak document answers to web search.
	EnableSearchFallback bool `envconfig:"ENABLE_SEARCH_FALLBACK" split_words:"true" default:"true"`
	// MinRetrievalConfidence is the retrieval score under which the
	// fallback fires.
	MinRetrievalConfidence float64 `envconfig:"MIN_RETRIEVAL_CONFIDENCE" split_words:"true" default:"0.4"`
}

type Orchestrator struct {
	store      state.Store
	agents     contract.Registry
	classifier nodex.Classifier

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	locks sessionLocks
	cfg   Config
	now   func() time.Time
}

func New(store state.Store, agents contract.Registry, classifier nodex.Classifier, cfg Config) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if agents == nil {
		return nil, errors.New("agent registry is required")
	}
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 40
	}
	if cfg.MinRetrievalConfidence <= 0 {
		cfg.MinRetrievalConfidence = 0.4
	}

	o := &Orchestrator{
		store:      store,
		agents:     agents,
		classifier: classifier,
		cfg:        cfg,
		now:        time.Now,
	}

	graphRunner, err := o.compileProcessTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// ProcessTurn runs one user turn through the pipeline. Calls for the same
// session are serialized; a concurrent call blocks until the first one
// finished, then observes its effects.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sessionID string, in contract.TurnInput) (Envelope, error) {
	unlock := o.locks.acquire(sessionID)
	defer unlock()

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		Input:     in,
	})
	if err != nil {
		return Envelope{}, err
	}
	return out.Envelope, nil
}

// ProcessValidation resolves the pending validation for a session. The
// rawOutcome is the reviewer's yes/no answer; comments are optional and
// recorded either way. Resolving twice fails with ErrNoPendingValidation.
func (o *Orchestrator) ProcessValidation(ctx context.Context, sessionID, rawOutcome, comments string) (Envelope, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Envelope{}, ErrInvalidSession
	}

	accept, err := gate.ParseOutcome(rawOutcome)
	if err != nil {
		return Envelope{}, err
	}

	unlock := o.locks.acquire(sessionID)
	defer unlock()

	session, err := o.store.Load(ctx, sessionID)
	if errors.Is(err, state.ErrSessionNotFound) {
		return Envelope{}, contract.ErrNoPendingValidation
	}
	if err != nil {
		return Envelope{}, err
	}

	agentName := ""
	if session.Pending != nil {
		agentName = session.Pending.Held.Agent
	}

	resolution, err := gate.Resolve(session, accept, comments, o.now().UTC())
	if err != nil {
		return Envelope{}, err
	}

	session.Trim(o.cfg.HistoryLimit)
	session.Touch(o.now().UTC())
	if err := o.store.Save(ctx, session); err != nil {
		return Envelope{}, err
	}

	envelope := Envelope{
		Agent:    agentName,
		Response: resolution.Turn.Content,
	}
	switch resolution.Outcome {
	case gate.OutcomeAccepted:
		envelope.Status = nodex.EnvelopeValidated
		envelope.Message = "The result was confirmed and added to the conversation."
		envelope.ResultImage = resolution.Turn.ResultImage
		envelope.ResultImageMIME = resolution.Turn.ResultImageMIME
	default:
		envelope.Status = nodex.EnvelopeRejected
		envelope.Message = "The result was rejected and will not be used."
	}
	return envelope, nil
}

// ClearSession removes a session and anything pending in it.
func (o *Orchestrator) ClearSession(ctx context.Context, sessionID string) error {
	unlock := o.locks.acquire(sessionID)
	defer unlock()

	return o.store.Delete(ctx, sessionID)
}

// sessionLocks hands out one mutex per in-flight session id. Entries are
// reference counted and dropped when the last holder releases, so the map
// only holds sessions with active calls.
type sessionLocks struct {
	mu sync.Mutex
	m  map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (l *sessionLocks) acquire(sessionID string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sessionLock)
	}
	entry, ok := l.m[sessionID]
	if !ok {
		entry = &sessionLock{}
		l.m[sessionID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.m, sessionID)
		}
		l.mu.Unlock()
	}
}
