package medvision

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInfer(t *testing.T) {
	t.Parallel()

	overlay := []byte{0x89, 0x50, 0x4E, 0x47}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/infer/chest-xray" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer vision-key" {
			t.Errorf("auth header = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "imagebytes" {
			t.Errorf("body = %q", body)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"label":"covid19",
			"confidence":0.91,
			"probabilities":{"covid19":0.91,"normal":0.09},
			"overlay_b64":%q
		}`, base64.StdEncoding.EncodeToString(overlay))
	}))
	defer server.Close()

	client, err := NewClient(Config{URL: server.URL, APIKey: "vision-key"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	pred, err := client.Infer(context.Background(), "chest-xray", []byte("imagebytes"), "image/png")
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if pred.Label != "covid19" || pred.Confidence != 0.91 {
		t.Fatalf("prediction = %+v", pred)
	}
	if len(pred.Probabilities) != 2 {
		t.Fatalf("probabilities = %+v", pred.Probabilities)
	}
	if string(pred.Overlay) != string(overlay) || pred.OverlayMIME != "image/png" {
		t.Fatalf("overlay = %v %q", pred.Overlay, pred.OverlayMIME)
	}
}

func TestInferBackendError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{URL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Infer(context.Background(), "brain-mri", []byte("img"), ""); err == nil {
		t.Fatal("infer succeeded on backend error")
	}
}

func TestDetectModality(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/modality" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"modality":"Brain-MRI","confidence":0.88}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{URL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	modality, confidence, err := client.DetectModality(context.Background(), []byte("img"), "image/png")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if modality != "brain-mri" || confidence != 0.88 {
		t.Fatalf("modality = %q confidence = %v", modality, confidence)
	}
}

func TestInferValidation(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{URL: "http://localhost:9000"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Infer(context.Background(), "", []byte("img"), ""); err == nil {
		t.Fatal("infer accepted empty task")
	}
	if _, err := client.Infer(context.Background(), "chest-xray", nil, ""); err == nil {
		t.Fatal("infer accepted empty image")
	}
}
