// Package retrieval implements the document-grounded answer agent. It
// embeds the question, pulls matching chunks from the vector store, and
// composes an answer restricted to those chunks.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/agent/state"
	"github.com/ngoclinhvu/medica/pkg/qdrant"
)

const (
	apology    = "I'm sorry, I couldn't search my medical documents just now. Please try again in a moment."
	noMatchMsg = "I couldn't find anything about that in my medical documents. You could try rephrasing, or ask me to search the web instead."

	insufficientMarker = "don't have enough information"
)

// Embedder turns one text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkSearcher finds the closest document chunks to a query vector.
type ChunkSearcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]qdrant.Chunk, error)
}

type Config struct {
	TopK          int `envconfig:"TOP_K" split_words:"true" default:"10"`
	RerankTopK    int `envconfig:"RERANK_TOP_K" split_words:"true" default:"3"`
	ContextWindow int `envconfig:"CONTEXT_WINDOW" split_words:"true" default:"20"`
}

type Agent struct {
	embedder     Embedder
	searcher     ChunkSearcher
	llm          contract.ChatCompleter
	systemPrompt string
	cfg          Config
}

func New(embedder Embedder, searcher ChunkSearcher, llm contract.ChatCompleter, systemPrompt string, cfg Config) *Agent {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.RerankTopK <= 0 {
		cfg.RerankTopK = 3
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 20
	}
	return &Agent{embedder: embedder, searcher: searcher, llm: llm, systemPrompt: systemPrompt, cfg: cfg}
}

func (a *Agent) Type() contract.AgentType {
	return contract.AgentRetrieval
}

func (a *Agent) Handle(ctx context.Context, in contract.TurnInput, history []state.Turn) (contract.AgentResult, error) {
	question := strings.TrimSpace(in.Text)
	if question == "" {
		return contract.ErrorResult(a.Type(), "Please ask a question so I can search my medical documents."), nil
	}

	vector, err := a.embedder.Embed(ctx, question)
	if err != nil {
		log.Error().Err(err).Msg("query embedding failed")
		return contract.ErrorResult(a.Type(), apology), nil
	}

	chunks, err := a.searcher.Search(ctx, vector, a.cfg.TopK)
	if err != nil {
		log.Error().Err(err).Msg("vector search failed")
		return contract.ErrorResult(a.Type(), apology), nil
	}

	// An empty index hit is a normal outcome, not a failure.
	if len(chunks) == 0 {
		return contract.AgentResult{
			Status:   contract.StatusOK,
			Agent:    a.Type(),
			Response: noMatchMsg,
		}, nil
	}

	top := rerank(chunks, a.cfg.RerankTopK)

	answer, err := a.llm.Complete(ctx, a.systemPrompt, composePrompt(question, top, history, a.cfg.ContextWindow))
	if err != nil {
		log.Error().Err(err).Msg("retrieval completion failed")
		return contract.ErrorResult(a.Type(), apology), nil
	}

	sources := make([]contract.Source, 0, len(top))
	for _, c := range top {
		sources = append(sources, contract.Source{
			Title: c.Source,
			Ref:   c.ID,
			Score: c.Score,
		})
	}

	confidence := top[0].Score
	if InsufficientInfo(answer) {
		confidence = 0
	}

	return contract.AgentResult{
		Status:     contract.StatusOK,
		Agent:      a.Type(),
		Response:   answer,
		Sources:    sources,
		Confidence: confidence,
	}, nil
}

// InsufficientInfo reports whether the model declined for lack of
// document coverage, which makes the turn a candidate for web search.
func InsufficientInfo(answer string) bool {
	return strings.Contains(strings.ToLower(answer), insufficientMarker)
}

func rerank(chunks []qdrant.Chunk, top int) []qdrant.Chunk {
	sorted := append([]qdrant.Chunk(nil), chunks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	if len(sorted) > top {
		sorted = sorted[:top]
	}
	return sorted
}

func composePrompt(question string, chunks []qdrant.Chunk, history []state.Turn, window int) string {
	var b strings.Builder

	b.WriteString("Document excerpts:\n")
	for i, c := range chunks {
		source := c.Source
		if source == "" {
			source = "unknown source"
		}
		fmt.Fprintf(&b, "[%d] (%s, score %.2f)\n%s\n\n", i+1, source, c.Score, strings.TrimSpace(c.Text))
	}

	if window > 0 && len(history) > 0 {
		start := len(history) - window
		if start < 0 {
			start = 0
		}
		b.WriteString("Conversation so far:\n")
		for _, t := range history[start:] {
			content := strings.TrimSpace(t.Content)
			if content == "" {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", t.Role, content)
		}
		b.WriteString("\n")
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
