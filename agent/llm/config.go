package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/pkg/llmx"
)

// Config carries the shared chat endpoint plus per-agent model and
// temperature overrides. A negative temperature override means "use the
// shared default".
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.openai.com/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	EmbeddingModel     string        `envconfig:"EMBEDDING_MODEL" split_words:"true" default:"text-embedding-3-small"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`

	ConversationModel       string  `envconfig:"CONVERSATION_MODEL" split_words:"true"`
	RetrievalModel          string  `envconfig:"RETRIEVAL_MODEL" split_words:"true"`
	SearchModel             string  `envconfig:"SEARCH_MODEL" split_words:"true"`
	ConversationTemperature float32 `envconfig:"CONVERSATION_TEMPERATURE" split_words:"true" default:"0.7"`
	RetrievalTemperature    float32 `envconfig:"RETRIEVAL_TEMPERATURE" split_words:"true" default:"0.3"`
	SearchTemperature       float32 `envconfig:"SEARCH_TEMPERATURE" split_words:"true" default:"0.3"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: llm api key is required", contract.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contract.ErrValidation)
	}
	return nil
}

// For resolves the chat client configuration for one agent.
func (c Config) For(agentType contract.AgentType) llmx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch agentType {
	case contract.AgentConversation:
		if v := strings.TrimSpace(c.ConversationModel); v != "" {
			modelName = v
		}
		if c.ConversationTemperature >= 0 {
			temp = c.ConversationTemperature
		}
	case contract.AgentRetrieval:
		if v := strings.TrimSpace(c.RetrievalModel); v != "" {
			modelName = v
		}
		if c.RetrievalTemperature >= 0 {
			temp = c.RetrievalTemperature
		}
	case contract.AgentSearch:
		if v := strings.TrimSpace(c.SearchModel); v != "" {
			modelName = v
		}
		if c.SearchTemperature >= 0 {
			temp = c.SearchTemperature
		}
	}

	return llmx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		EmbeddingModel:     strings.TrimSpace(c.EmbeddingModel),
		MaxCompletionToken: c.MaxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
	}
}
