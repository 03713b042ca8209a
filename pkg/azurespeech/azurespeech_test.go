package azurespeech

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTranscribe(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Ocp-Apim-Subscription-Key"); got != "speech-key" {
			t.Errorf("subscription key = %q", got)
		}
		if got := r.URL.Query().Get("language"); got != "vi-VN" {
			t.Errorf("language = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"RecognitionStatus":"Success","DisplayText":"Xin chào bác sĩ."}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{Key: "speech-key", Region: "southeastasia", STTEndpoint: server.URL, TTSEndpoint: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	transcript, err := client.Transcribe(context.Background(), []byte("audio"), "audio/mpeg", "")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if transcript != "Xin chào bác sĩ." {
		t.Fatalf("transcript = %q", transcript)
	}
}

func TestTranscribeNoSpeech(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"RecognitionStatus":"NoMatch","DisplayText":""}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{Key: "speech-key", Region: "southeastasia", STTEndpoint: server.URL, TTSEndpoint: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Transcribe(context.Background(), []byte("audio"), "", ""); err == nil {
		t.Fatal("transcribe succeeded without recognized speech")
	}
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Microsoft-OutputFormat"); got != "audio-16khz-128kbitrate-mono-mp3" {
			t.Errorf("output format = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		ssml := string(body)
		if !strings.Contains(ssml, "en-US-JennyNeural") {
			t.Errorf("ssml voice wrong: %s", ssml)
		}
		if !strings.Contains(ssml, "Hello &amp; welcome") {
			t.Errorf("ssml text not escaped: %s", ssml)
		}
		w.Write([]byte("mp3bytes"))
	}))
	defer server.Close()

	client, err := NewClient(Config{Key: "speech-key", Region: "southeastasia", STTEndpoint: server.URL, TTSEndpoint: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	audio, err := client.Synthesize(context.Background(), "Hello & welcome", "en-US", "")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio) != "mp3bytes" {
		t.Fatalf("audio = %q", audio)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Key: "speech-key", Region: "southeastasia"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Synthesize(context.Background(), "  ", "", ""); err == nil {
		t.Fatal("synthesize accepted empty text")
	}
}
