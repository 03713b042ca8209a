// Package router decides which agent handles a turn. The decision is
// deterministic: the same input, history window, and detector verdict
// always produce the same classification, and classifying never touches
// session state.
package router

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/agent/state"
)

// ModalityDetector classifies the kind of medical image attached to a
// turn. It must be stateless.
type ModalityDetector interface {
	DetectModality(ctx context.Context, image []byte, mime string) (string, float64, error)
}

type Config struct {
	// ContextWindow bounds how many recent turns inform text routing.
	ContextWindow int `envconfig:"CONTEXT_WINDOW" split_words:"true" default:"6"`
	// MinModalityConfidence is the floor under which an image is treated
	// as ambiguous.
	MinModalityConfidence float64 `envconfig:"MIN_MODALITY_CONFIDENCE" split_words:"true" default:"0.6"`
}

type Router struct {
	detector ModalityDetector
	cfg      Config
}

func New(detector ModalityDetector, cfg Config) *Router {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 6
	}
	if cfg.MinModalityConfidence <= 0 {
		cfg.MinModalityConfidence = 0.6
	}
	return &Router{detector: detector, cfg: cfg}
}

// Classify maps one turn to exactly one agent. Image turns go to the
// vision agent for the detected modality; ambiguous images fall back to
// the conversation agent rather than guessing a diagnostic route.
func (r *Router) Classify(ctx context.Context, in contract.TurnInput, history []state.Turn) (contract.Classification, error) {
	if in.HasImage() {
		return r.classifyImage(ctx, in)
	}
	return r.classifyText(in.Text, history), nil
}

func (r *Router) classifyImage(ctx context.Context, in contract.TurnInput) (contract.Classification, error) {
	if err := in.ValidateImage(); err != nil {
		return contract.Classification{}, err
	}

	// A textual hint like "this MRI scan" wins over a low-confidence
	// detector verdict, never over a confident one.
	hint := modalityHint(in.Text)

	modality, confidence, err := r.detector.DetectModality(ctx, in.Image, in.ImageMIME)
	if err != nil {
		log.Warn().Err(err).Msg("modality detection failed, falling back to text hint")
		modality, confidence = string(contract.ModalityUnknown), 0
	}

	detected := contract.Modality(modality)
	if agent, ok := detected.Agent(); ok && confidence >= r.cfg.MinModalityConfidence {
		return contract.Classification{
			Agent:      agent,
			Modality:   detected,
			Confidence: confidence,
			Rationale:  "image modality detected",
		}, nil
	}

	if agent, ok := hint.Agent(); ok {
		return contract.Classification{
			Agent:      agent,
			Modality:   hint,
			Confidence: confidence,
			Rationale:  "image modality inferred from accompanying text",
		}, nil
	}

	return contract.Classification{
		Agent:      contract.AgentConversation,
		Modality:   contract.ModalityUnknown,
		Confidence: confidence,
		Rationale:  "image modality ambiguous, asking for clarification",
	}, nil
}

func (r *Router) classifyText(text string, history []state.Turn) contract.Classification {
	lower := strings.ToLower(text)
	recent := recentUserText(history, r.cfg.ContextWindow)

	if knowledgeIntent(lower) {
		return contract.Classification{
			Agent:     contract.AgentRetrieval,
			Rationale: "medical knowledge question",
		}
	}
	if currentInfoIntent(lower) {
		return contract.Classification{
			Agent:     contract.AgentSearch,
			Rationale: "needs current external information",
		}
	}
	// A bare follow-up like "and what about children?" inherits the
	// knowledge route from the recent window.
	if followUp(lower) && knowledgeIntent(recent) {
		return contract.Classification{
			Agent:     contract.AgentRetrieval,
			Rationale: "follow-up to a medical knowledge question",
		}
	}
	return contract.Classification{
		Agent:     contract.AgentConversation,
		Rationale: "general conversation",
	}
}

var modalityHints = map[contract.Modality][]string{
	contract.ModalityBrainMRI:   {"mri", "brain scan", "brain tumor", "brain tumour"},
	contract.ModalityChestXray:  {"x-ray", "xray", "chest", "lung", "radiograph", "covid"},
	contract.ModalitySkinLesion: {"skin", "lesion", "mole", "rash", "melanoma", "dermat"},
}

func modalityHint(text string) contract.Modality {
	lower := strings.ToLower(text)
	for _, m := range []contract.Modality{contract.ModalityBrainMRI, contract.ModalityChestXray, contract.ModalitySkinLesion} {
		for _, kw := range modalityHints[m] {
			if strings.Contains(lower, kw) {
				return m
			}
		}
	}
	return contract.ModalityUnknown
}

var medicalTerms = []string{
	"blood pressure", "hypertension", "diabetes", "cancer", "tumor", "tumour",
	"symptom", "treatment", "diagnos", "medication", "disease", "infection",
	"cholesterol", "diet", "nutrition", "vaccine", "therapy", "syndrome",
	"heart", "stroke", "kidney", "liver", "covid", "flu", "allergy",
	"dosage", "side effect", "prescription", "anatomy", "surgery",
}

var questionCues = []string{
	"what", "how", "why", "which", "when", "should i", "can i", "is it",
	"explain", "tell me about", "describe", "difference between", "?",
}

func knowledgeIntent(lower string) bool {
	return containsAny(lower, medicalTerms) && containsAny(lower, questionCues)
}

var recencyCues = []string{
	"latest", "recent", "news", "current", "today", "this year", "update",
	"new study", "new research", "outbreak", "search the web", "search online",
	"look up", "find sources", "what's happening", "breaking",
}

func currentInfoIntent(lower string) bool {
	return containsAny(lower, recencyCues)
}

func followUp(lower string) bool {
	trimmed := strings.TrimSpace(lower)
	if trimmed == "" {
		return false
	}
	return len(trimmed) < 60 && (strings.HasPrefix(trimmed, "and ") ||
		strings.HasPrefix(trimmed, "what about") ||
		strings.HasPrefix(trimmed, "how about") ||
		strings.HasPrefix(trimmed, "why"))
}

func recentUserText(history []state.Turn, window int) string {
	if window <= 0 || len(history) == 0 {
		return ""
	}
	start := len(history) - window
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for _, t := range history[start:] {
		if t.Role == state.RoleUser {
			b.WriteString(strings.ToLower(t.Content))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
