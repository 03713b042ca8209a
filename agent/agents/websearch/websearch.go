// Package websearch implements the current-information agent. It fans out
// to a general web provider and a medical literature provider in parallel
// and synthesizes an answer from whatever came back; only total provider
// failure surfaces as an error result.
package websearch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/agent/state"
	"github.com/ngoclinhvu/medica/pkg/pubmed"
	"github.com/ngoclinhvu/medica/pkg/tavily"
)

const (
	apology       = "I'm sorry, I couldn't reach my search providers just now. Please try again in a moment."
	composeFailed = "I'm sorry, I found some sources but couldn't put an answer together. Please try again in a moment."
)

// WebSearcher is the general web search provider.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]tavily.Result, error)
}

// LiteratureSearcher is the medical literature provider.
type LiteratureSearcher interface {
	Search(ctx context.Context, term string) ([]pubmed.Article, error)
}

type Config struct {
	// Timeout bounds the whole provider fan-out.
	Timeout       time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"20s"`
	ContextWindow int           `envconfig:"CONTEXT_WINDOW" split_words:"true" default:"20"`
}

type Agent struct {
	web          WebSearcher
	literature   LiteratureSearcher
	llm          contract.ChatCompleter
	systemPrompt string
	cfg          Config
}

func New(web WebSearcher, literature LiteratureSearcher, llm contract.ChatCompleter, systemPrompt string, cfg Config) *Agent {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 20
	}
	return &Agent{web: web, literature: literature, llm: llm, systemPrompt: systemPrompt, cfg: cfg}
}

func (a *Agent) Type() contract.AgentType {
	return contract.AgentSearch
}

func (a *Agent) Handle(ctx context.Context, in contract.TurnInput, history []state.Turn) (contract.AgentResult, error) {
	query := strings.TrimSpace(in.Text)
	if query == "" {
		return contract.ErrorResult(a.Type(), "Please tell me what to search for."), nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	var (
		wg       sync.WaitGroup
		webHits  []tavily.Result
		webErr   error
		articles []pubmed.Article
		litErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if a.web == nil {
			webErr = fmt.Errorf("web provider not configured")
			return
		}
		webHits, webErr = a.web.Search(searchCtx, query)
	}()
	go func() {
		defer wg.Done()
		if a.literature == nil {
			litErr = fmt.Errorf("literature provider not configured")
			return
		}
		articles, litErr = a.literature.Search(searchCtx, query)
	}()
	wg.Wait()

	if webErr != nil {
		log.Warn().Err(webErr).Msg("web search provider failed")
	}
	if litErr != nil {
		log.Warn().Err(litErr).Msg("literature provider failed")
	}
	if webErr != nil && litErr != nil {
		return contract.ErrorResult(a.Type(), apology), nil
	}

	sources := mergeSources(webHits, articles)
	if len(sources) == 0 {
		return contract.AgentResult{
			Status:   contract.StatusOK,
			Agent:    a.Type(),
			Response: "I searched but found no relevant results for that. You could try rephrasing the question.",
		}, nil
	}

	answer, err := a.llm.Complete(ctx, a.systemPrompt, composePrompt(query, webHits, articles, history, a.cfg.ContextWindow))
	if err != nil {
		log.Error().Err(err).Msg("search completion failed")
		return contract.ErrorResult(a.Type(), composeFailed), nil
	}

	return contract.AgentResult{
		Status:   contract.StatusOK,
		Agent:    a.Type(),
		Response: answer,
		Sources:  sources,
	}, nil
}

// mergeSources orders web hits by score and appends literature hits after.
func mergeSources(webHits []tavily.Result, articles []pubmed.Article) []contract.Source {
	out := make([]contract.Source, 0, len(webHits)+len(articles))
	for _, h := range webHits {
		out = append(out, contract.Source{Title: h.Title, Ref: h.URL, Score: h.Score})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Score > out[j-1].Score; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	for _, a := range articles {
		out = append(out, contract.Source{Title: a.Title, Ref: a.URL})
	}
	return out
}

func composePrompt(query string, webHits []tavily.Result, articles []pubmed.Article, history []state.Turn, window int) string {
	var b strings.Builder

	if len(webHits) > 0 {
		b.WriteString("Web results:\n")
		for i, h := range webHits {
			fmt.Fprintf(&b, "[W%d] %s (%s)\n%s\n\n", i+1, h.Title, h.URL, strings.TrimSpace(h.Content))
		}
	}
	if len(articles) > 0 {
		b.WriteString("Literature results:\n")
		for i, art := range articles {
			fmt.Fprintf(&b, "[L%d] %s, %s (%s)\n", i+1, art.Title, art.Journal, art.URL)
		}
		b.WriteString("\n")
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
	b.WriteString(query)
	return b.String()
}
