package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("client created without url")
	}
	if _, err := NewClient(Config{URL: "http://localhost:6333", Collection: " "}); err == nil {
		t.Fatal("client created without collection")
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/medical_docs/points/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("api-key"); got != "secret" {
			t.Errorf("api-key header = %q", got)
		}

		var req struct {
			Vector      []float32 `json:"vector"`
			Limit       int       `json:"limit"`
			WithPayload bool      `json:"with_payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Limit != 3 || !req.WithPayload || len(req.Vector) != 2 {
			t.Errorf("request = %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":[
			{"id":17,"score":0.92,"payload":{"text":"Reduce sodium.","source":"hypertension.pdf"}},
			{"id":"chunk-5","score":0.48,"payload":{"text":"Potassium helps."}}
		],"status":"ok"}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{URL: server.URL, APIKey: "secret", Collection: "medical_docs"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	chunks, err := client.Search(context.Background(), []float32{0.1, 0.2}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[0].ID != "17" || chunks[0].Source != "hypertension.pdf" || chunks[0].Score != 0.92 {
		t.Fatalf("chunk[0] = %+v", chunks[0])
	}
	if chunks[1].Text != "Potassium helps." || chunks[1].Source != "" {
		t.Fatalf("chunk[1] = %+v", chunks[1])
	}
}

func TestSearchHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewClient(Config{URL: server.URL, Collection: "missing"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Search(context.Background(), []float32{0.1}, 5); err == nil {
		t.Fatal("search succeeded against 404")
	}
}

func TestSearchEmptyVector(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{URL: "http://localhost:6333", Collection: "docs"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Search(context.Background(), nil, 5); err == nil {
		t.Fatal("search accepted empty vector")
	}
}
