package contract

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	_ "image/jpeg"
	_ "image/png"
)

type AgentType string

const (
	AgentConversation AgentType = "CONVERSATION_AGENT"
	AgentRetrieval    AgentType = "RAG_AGENT"
	AgentSearch       AgentType = "WEB_SEARCH_AGENT"
	AgentBrainTumor   AgentType = "BRAIN_TUMOR_AGENT"
	AgentChestXray    AgentType = "CHEST_XRAY_AGENT"
	AgentSkinLesion   AgentType = "SKIN_LESION_AGENT"
)

// VisionAgents lists the diagnostic agents whose output passes the
// human-validation gate.
var VisionAgents = []AgentType{AgentBrainTumor, AgentChestXray, AgentSkinLesion}

func (a AgentType) IsVision() bool {
	switch a {
	case AgentBrainTumor, AgentChestXray, AgentSkinLesion:
		return true
	default:
		return false
	}
}

// Modality identifies the kind of medical image attached to a turn.
type Modality string

const (
	ModalityBrainMRI   Modality = "brain-mri"
	ModalityChestXray  Modality = "chest-xray"
	ModalitySkinLesion Modality = "skin-lesion"
	ModalityUnknown    Modality = "unknown"
)

// Agent returns the vision agent that handles this modality.
func (m Modality) Agent() (AgentType, bool) {
	switch m {
	case ModalityBrainMRI:
		return AgentBrainTumor, true
	case ModalityChestXray:
		return AgentChestXray, true
	case ModalitySkinLesion:
		return AgentSkinLesion, true
	default:
		return "", false
	}
}

// TurnInput is one inbound user turn: text, an image, or both.
type TurnInput struct {
	Text      string
	Image     []byte
	ImageMIME string
}

func (t TurnInput) HasImage() bool {
	return len(t.Image) > 0
}

// ValidateImage confirms the attached image is present and decodable.
// "Decodable" is the contract vision agents rely on before inference.
func (t TurnInput) ValidateImage() error {
	if len(t.Image) == 0 {
		return fmt.Errorf("%w: image is empty", ErrMalformedInput)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(t.Image)); err != nil {
		return fmt.Errorf("%w: image is not decodable: %v", ErrMalformedInput, err)
	}
	return nil
}

type ResultStatus string

const (
	StatusOK    ResultStatus = "ok"
	StatusError ResultStatus = "error"
)

// VisionFinding is the structured payload of a diagnostic agent.
type VisionFinding struct {
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
}

// Source records one document chunk or search hit an answer was grounded in.
type Source struct {
	Title string  `json:"title"`
	Ref   string  `json:"ref"`
	Score float64 `json:"score,omitempty"`
}

// AgentResult is the outcome of one agent invocation. Agents return error
// results for recoverable downstream failures instead of Go errors; the
// orchestrator alone writes results into session state.
type AgentResult struct {
	Status             ResultStatus
	Response           string
	Agent              AgentType
	RequiresValidation bool
	ResultImage        []byte
	ResultImageMIME    string
	Finding            *VisionFinding
	Sources            []Source
	Confidence         float64
}

// ErrorResult builds a recoverable failure result with a user-facing message.
func ErrorResult(agent AgentType, msg string) AgentResult {
	return AgentResult{
		Status:   StatusError,
		Agent:    agent,
		Response: msg,
	}
}

// Classification is the router's decision for one turn. Transient.
type Classification struct {
	Agent      AgentType
	Modality   Modality
	Confidence float64
	Rationale  string
}

var errNoAgent = errors.New("classification has no agent")

func (c Classification) Validate() error {
	if c.Agent == "" {
		return errNoAgent
	}
	return nil
}
