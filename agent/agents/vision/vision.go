// Package vision implements the three diagnostic image agents. They share
// one implementation parameterized by modality; every successful result
// requires human validation before it reaches the conversation history.
package vision

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/agent/state"
	"github.com/ngoclinhvu/medica/pkg/medvision"
)

const invalidImageMsg = "I could not analyze this image. Please upload a clear PNG or JPEG medical image."

// InferenceBackend runs the hosted model for one task.
type InferenceBackend interface {
	Infer(ctx context.Context, task string, image []byte, mime string) (*medvision.Prediction, error)
}

type Config struct {
	// LowConfidenceThreshold flags results below it for extra reviewer
	// attention. They still go through validation like any other result.
	LowConfidenceThreshold float64 `envconfig:"LOW_CONFIDENCE_THRESHOLD" split_words:"true" default:"0.85"`
}

type Agent struct {
	agentType contract.AgentType
	task      string
	backend   InferenceBackend
	threshold float64
}

var tasks = map[contract.AgentType]string{
	contract.AgentBrainTumor: "brain-mri",
	contract.AgentChestXray:  "chest-xray",
	contract.AgentSkinLesion: "skin-lesion",
}

func New(agentType contract.AgentType, backend InferenceBackend, cfg Config) (*Agent, error) {
	task, ok := tasks[agentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a vision agent", contract.ErrValidation, agentType)
	}
	threshold := cfg.LowConfidenceThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.85
	}
	return &Agent{agentType: agentType, task: task, backend: backend, threshold: threshold}, nil
}

func (a *Agent) Type() contract.AgentType {
	return a.agentType
}

func (a *Agent) Handle(ctx context.Context, in contract.TurnInput, _ []state.Turn) (contract.AgentResult, error) {
	if err := in.ValidateImage(); err != nil {
		// "Could not analyze" is a distinct outcome from a negative
		// finding and is phrased so the user can tell them apart.
		return contract.ErrorResult(a.agentType, invalidImageMsg), nil
	}

	pred, err := a.backend.Infer(ctx, a.task, in.Image, in.ImageMIME)
	if err != nil {
		log.Error().Err(err).Str("task", a.task).Msg("vision inference failed")
		return contract.ErrorResult(a.agentType, "I could not analyze this image because the analysis service is unavailable. Please try again later."), nil
	}

	if math.IsNaN(pred.Confidence) || pred.Confidence < 0 || pred.Confidence > 1 {
		log.Error().Float64("confidence", pred.Confidence).Str("task", a.task).Msg("backend returned out-of-range confidence")
		return contract.ErrorResult(a.agentType, "I could not analyze this image because the analysis service returned an invalid result."), nil
	}
	if strings.TrimSpace(pred.Label) == "" {
		return contract.ErrorResult(a.agentType, "I could not analyze this image because the analysis service returned an invalid result."), nil
	}

	result := contract.AgentResult{
		Status:             contract.StatusOK,
		Agent:              a.agentType,
		Response:           a.describe(pred),
		RequiresValidation: true,
		Confidence:         pred.Confidence,
		Finding: &contract.VisionFinding{
			Label:         pred.Label,
			Confidence:    pred.Confidence,
			Probabilities: pred.Probabilities,
		},
		ResultImage:     pred.Overlay,
		ResultImageMIME: pred.OverlayMIME,
	}

	if pred.Confidence < a.threshold {
		result.Response = fmt.Sprintf("⚠️ Low confidence result, please interpret with extra care.\n\n%s", result.Response)
	}
	return result, nil
}

func (a *Agent) describe(pred *medvision.Prediction) string {
	switch a.agentType {
	case contract.AgentBrainTumor:
		return describeBrain(pred)
	case contract.AgentChestXray:
		return describeChest(pred)
	default:
		return describeSkin(pred)
	}
}

func describeBrain(pred *medvision.Prediction) string {
	label := strings.ToLower(pred.Label)
	var b strings.Builder
	if label == "notumor" || label == "no tumor" || label == "normal" {
		fmt.Fprintf(&b, "Brain MRI analysis: NEGATIVE. No tumor was detected (confidence %.1f%%).\n", pred.Confidence*100)
	} else {
		fmt.Fprintf(&b, "Brain MRI analysis: POSITIVE. The scan is consistent with a %s tumor (confidence %.1f%%).\n", label, pred.Confidence*100)
	}
	writeProbabilities(&b, pred.Probabilities)
	b.WriteString("\nThis is a model prediction, not a diagnosis. Please consult a neurologist for confirmation.")
	return b.String()
}

func describeChest(pred *medvision.Prediction) string {
	label := strings.ToLower(pred.Label)
	var b strings.Builder
	if label == "normal" {
		fmt.Fprintf(&b, "Chest X-ray analysis: NEGATIVE. The radiograph appears normal (confidence %.1f%%).\n", pred.Confidence*100)
	} else {
		fmt.Fprintf(&b, "Chest X-ray analysis: POSITIVE. Findings are consistent with %s (confidence %.1f%%).\n", label, pred.Confidence*100)
	}
	writeProbabilities(&b, pred.Probabilities)
	b.WriteString("\nThis is a model prediction, not a diagnosis. Please consult a radiologist for confirmation.")
	return b.String()
}

func describeSkin(pred *medvision.Prediction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Skin lesion analysis: the model segmented a region consistent with %s (confidence %.1f%%).\n", strings.ToLower(pred.Label), pred.Confidence*100)
	if len(pred.Overlay) > 0 {
		b.WriteString("The attached image highlights the segmented lesion boundary.\n")
	}
	writeProbabilities(&b, pred.Probabilities)
	b.WriteString("\nThis is a model prediction, not a diagnosis. Please consult a dermatologist for confirmation.")
	return b.String()
}

func writeProbabilities(b *strings.Builder, probs map[string]float64) {
	if len(probs) == 0 {
		return
	}
	keys := make([]string, 0, len(probs))
	for k := range probs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return probs[keys[i]] > probs[keys[j]] })

	b.WriteString("Class probabilities:\n")
	for _, k := range keys {
		fmt.Fprintf(b, "  - %s: %.1f%%\n", k, probs[k]*100)
	}
}
