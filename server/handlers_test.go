package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/agent/orchestrator"
)

type fakeCore struct {
	turnEnvelope     orchestrator.Envelope
	turnErr          error
	validateEnvelope orchestrator.Envelope
	validateErr      error

	lastSessionID string
	lastInput     contract.TurnInput
	lastOutcome   string
	lastComments  string
	cleared       []string
}

func (f *fakeCore) ProcessTurn(ctx context.Context, sessionID string, in contract.TurnInput) (orchestrator.Envelope, error) {
	f.lastSessionID = sessionID
	f.lastInput = in
	if f.turnErr != nil {
		return orchestrator.Envelope{}, f.turnErr
	}
	return f.turnEnvelope, nil
}

func (f *fakeCore) ProcessValidation(ctx context.Context, sessionID, rawOutcome, comments string) (orchestrator.Envelope, error) {
	f.lastSessionID = sessionID
	f.lastOutcome = rawOutcome
	f.lastComments = comments
	if f.validateErr != nil {
		return orchestrator.Envelope{}, f.validateErr
	}
	return f.validateEnvelope, nil
}

func (f *fakeCore) ClearSession(ctx context.Context, sessionID string) error {
	f.cleared = append(f.cleared, sessionID)
	return nil
}

type fakeSpeech struct {
	transcript string
	audio      []byte
	err        error
}

func (f *fakeSpeech) Transcribe(ctx context.Context, audio []byte, contentType, language string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.transcript, nil
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text, language, voice string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

func newTestServer(t *testing.T, core Core, speech SpeechService) *Server {
	t.Helper()
	srv, err := New(Config{
		SessionSecret: "test-secret",
		MaxUploadMB:   1,
	}, core, speech)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeCore{}, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "healthy" {
		t.Fatalf("body = %v", body)
	}
}

func TestNewDefaultsAllowedOrigins(t *testing.T) {
	t.Parallel()

	srv, err := New(Config{SessionSecret: "test-secret"}, &fakeCore{
		turnEnvelope: orchestrator.Envelope{Status: "success", Response: "hello"},
	}, nil)
	if err != nil {
		t.Fatalf("new server without origins: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"query":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost:3000")
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow-origin = %q", got)
	}
}

func TestChatIssuesSessionCookie(t *testing.T) {
	t.Parallel()

	core := &fakeCore{turnEnvelope: orchestrator.Envelope{
		Status:   "success",
		Response: "Hello!",
		Agent:    string(contract.AgentConversation),
	}}
	srv := newTestServer(t, core, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"query":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if core.lastInput.Text != "hi" {
		t.Fatalf("core received text %q", core.lastInput.Text)
	}
	if core.lastSessionID == "" {
		t.Fatal("no session id assigned")
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("session cookie not set")
	}

	// A second request with the cookie keeps the same session.
	first := core.lastSessionID
	req = httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"query":"again"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if core.lastSessionID != first {
		t.Fatalf("session changed: %q -> %q", first, core.lastSessionID)
	}
}

func TestChatPendingValidationConflict(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeCore{turnErr: contract.ErrValidationPending}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"query":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "pending_validation" {
		t.Fatalf("body = %v", body)
	}
}

func multipartImage(t *testing.T, field, filename string, data []byte, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for k, v := range extra {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestUploadForwardsImage(t *testing.T) {
	t.Parallel()

	core := &fakeCore{turnEnvelope: orchestrator.Envelope{
		Status:             "pending_validation",
		Response:           "Findings...",
		Agent:              string(contract.AgentChestXray),
		RequiresValidation: true,
		ResultImage:        []byte{1, 2, 3},
		ResultImageMIME:    "image/png",
	}}
	srv := newTestServer(t, core, nil)

	body, contentType := multipartImage(t, "image", "scan.png", []byte("pngdata"), map[string]string{"text": "my scan"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if core.lastInput.ImageMIME != "image/png" || string(core.lastInput.Image) != "pngdata" {
		t.Fatalf("core received %q %q", core.lastInput.ImageMIME, core.lastInput.Image)
	}
	if core.lastInput.Text != "my scan" {
		t.Fatalf("core received text %q", core.lastInput.Text)
	}

	respBody := decodeBody(t, rec)
	if respBody["requires_validation"] != true {
		t.Fatalf("body = %v", respBody)
	}
	img, _ := respBody["result_image"].(string)
	if !strings.HasPrefix(img, "data:image/png;base64,") {
		t.Fatalf("result_image = %q", img)
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeCore{}, nil)

	body, contentType := multipartImage(t, "image", "scan.gif", []byte("gifdata"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadRejectsOversizedImage(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeCore{}, nil)

	big := bytes.Repeat([]byte{0xAB}, 2<<20)
	body, contentType := multipartImage(t, "image", "scan.jpg", big, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if respBody := decodeBody(t, rec); respBody["status"] != "error" {
		t.Fatalf("body = %v", respBody)
	}
}

func TestValidateEndpoint(t *testing.T) {
	t.Parallel()

	core := &fakeCore{validateEnvelope: orchestrator.Envelope{
		Status:   "validated",
		Message:  "The result was confirmed and added to the conversation.",
		Response: "Findings...",
	}}
	srv := newTestServer(t, core, nil)

	form := "validation_result=yes&comments=looks+right"
	req := httptest.NewRequest(http.MethodPost, "/api/validate", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if core.lastOutcome != "yes" || core.lastComments != "looks right" {
		t.Fatalf("core received %q %q", core.lastOutcome, core.lastComments)
	}
	if respBody := decodeBody(t, rec); respBody["status"] != "validated" {
		t.Fatalf("body = %v", respBody)
	}
}

func TestValidateWithoutPending(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeCore{validateErr: contract.ErrNoPendingValidation}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/validate", strings.NewReader("validation_result=yes"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeCore{}, &fakeSpeech{transcript: "hello doctor"})

	body, contentType := multipartImage(t, "audio", "voice.mp3", []byte("mp3data"), map[string]string{"language": "en-US"})
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if respBody := decodeBody(t, rec); respBody["transcript"] != "hello doctor" {
		t.Fatalf("body = %v", respBody)
	}
}

func TestGenerateSpeech(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeCore{}, &fakeSpeech{audio: []byte("mp3bytes")})

	req := httptest.NewRequest(http.MethodPost, "/api/generate-speech", strings.NewReader(`{"text":"hello","language":"en-US"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Fatalf("content type = %q", got)
	}
	if rec.Body.String() != "mp3bytes" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestSpeechEndpointsWithoutService(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeCore{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/generate-speech", strings.NewReader(`{"text":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestClearSession(t *testing.T) {
	t.Parallel()

	core := &fakeCore{}
	srv := newTestServer(t, core, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/session", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(core.cleared) != 1 {
		t.Fatalf("cleared = %v", core.cleared)
	}
}
