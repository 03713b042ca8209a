package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/pkg/qdrant"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeSearcher struct {
	chunks    []qdrant.Chunk
	err       error
	lastLimit int
}

func (f *fakeSearcher) Search(ctx context.Context, vector []float32, limit int) ([]qdrant.Chunk, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

type fakeLLM struct {
	reply    string
	err      error
	lastUser string
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string) (string, error) {
	f.lastUser = user
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func TestHandleGroundedAnswer(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{chunks: []qdrant.Chunk{
		{ID: "c1", Score: 0.52, Text: "Potassium-rich foods help.", Source: "nutrition.pdf"},
		{ID: "c2", Score: 0.91, Text: "Reduce sodium intake.", Source: "hypertension.pdf"},
		{ID: "c3", Score: 0.30, Text: "Unrelated text.", Source: "misc.pdf"},
	}}
	llm := &fakeLLM{reply: "Reduce sodium and eat potassium-rich foods. (hypertension.pdf)"}
	agent := New(&fakeEmbedder{vector: []float32{0.1}}, searcher, llm, "answer from documents", Config{TopK: 10, RerankTopK: 2})

	result, err := agent.Handle(context.Background(), contract.TurnInput{Text: "what foods help lower blood pressure?"}, nil)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Status != contract.StatusOK {
		t.Fatalf("status = %s, want ok", result.Status)
	}
	if searcher.lastLimit != 10 {
		t.Fatalf("search limit = %d, want 10", searcher.lastLimit)
	}

	// Reranking keeps the best chunks and orders sources by score.
	if len(result.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(result.Sources))
	}
	if result.Sources[0].Title != "hypertension.pdf" {
		t.Fatalf("top source = %q, want hypertension.pdf", result.Sources[0].Title)
	}
	if result.Confidence != 0.91 {
		t.Fatalf("confidence = %v, want 0.91", result.Confidence)
	}
	if strings.Contains(llm.lastUser, "Unrelated text.") {
		t.Fatalf("low-ranked chunk leaked into prompt: %q", llm.lastUser)
	}
}

func TestHandleNoMatchesIsNormal(t *testing.T) {
	t.Parallel()

	agent := New(&fakeEmbedder{vector: []float32{0.1}}, &fakeSearcher{}, &fakeLLM{}, "", Config{})

	result, err := agent.Handle(context.Background(), contract.TurnInput{Text: "obscure question"}, nil)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Status != contract.StatusOK {
		t.Fatalf("status = %s, want ok", result.Status)
	}
	if len(result.Sources) != 0 {
		t.Fatalf("sources = %v, want none", result.Sources)
	}
	if !strings.Contains(result.Response, "couldn't find") {
		t.Fatalf("response = %q", result.Response)
	}
}

func TestHandleInsufficientInfoZeroesConfidence(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{chunks: []qdrant.Chunk{{ID: "c1", Score: 0.8, Text: "x", Source: "a.pdf"}}}
	llm := &fakeLLM{reply: "I don't have enough information in my documents to answer that."}
	agent := New(&fakeEmbedder{vector: []float32{0.1}}, searcher, llm, "", Config{})

	result, err := agent.Handle(context.Background(), contract.TurnInput{Text: "question"}, nil)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Confidence != 0 {
		t.Fatalf("confidence = %v, want 0 for insufficient info", result.Confidence)
	}
	if !InsufficientInfo(result.Response) {
		t.Fatal("InsufficientInfo did not flag the response")
	}
}

func TestHandleDependencyFailuresAreRecoverable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		agent *Agent
	}{
		{"embedder", New(&fakeEmbedder{err: errors.New("down")}, &fakeSearcher{}, &fakeLLM{}, "", Config{})},
		{"searcher", New(&fakeEmbedder{vector: []float32{0.1}}, &fakeSearcher{err: errors.New("down")}, &fakeLLM{}, "", Config{})},
		{"llm", New(&fakeEmbedder{vector: []float32{0.1}}, &fakeSearcher{chunks: []qdrant.Chunk{{ID: "c", Score: 0.9, Text: "t", Source: "s"}}}, &fakeLLM{err: errors.New("down")}, "", Config{})},
	}
	for _, tc := range cases {
		result, err := tc.agent.Handle(context.Background(), contract.TurnInput{Text: "question"}, nil)
		if err != nil {
			t.Fatalf("%s: handle returned hard error: %v", tc.name, err)
		}
		if result.Status != contract.StatusError {
			t.Errorf("%s: status = %s, want error", tc.name, result.Status)
		}
		if result.Response == "" {
			t.Errorf("%s: no user-facing message", tc.name)
		}
	}
}
