package azurespeech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSizeBytes = 8 << 20

// Config carries Azure Cognitive Services speech credentials. STTEndpoint
// and TTSEndpoint override the region-derived URLs, mainly for tests.
type Config struct {
	Key         string        `envconfig:"KEY" split_words:"true" required:"true"`
	Region      string        `envconfig:"REGION" split_words:"true" required:"true"`
	VoiceName   string        `envconfig:"VOICE_NAME" split_words:"true" default:"vi-VN-HoaiMyNeural"`
	STTEndpoint string        `envconfig:"STT_ENDPOINT" split_words:"true"`
	TTSEndpoint string        `envconfig:"TTS_ENDPOINT" split_words:"true"`
	Timeout     time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

type Client struct {
	key         string
	voiceName   string
	sttEndpoint string
	ttsEndpoint string
	httpClient  *http.Client
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		return nil, errors.New("azure speech key is required")
	}
	region := strings.TrimSpace(cfg.Region)

	sttEndpoint := strings.TrimRight(strings.TrimSpace(cfg.STTEndpoint), "/")
	if sttEndpoint == "" {
		if region == "" {
			return nil, errors.New("azure speech region is required")
		}
		sttEndpoint = fmt.Sprintf("https://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1", region)
	}
	ttsEndpoint := strings.TrimRight(strings.TrimSpace(cfg.TTSEndpoint), "/")
	if ttsEndpoint == "" {
		if region == "" {
			return nil, errors.New("azure speech region is required")
		}
		ttsEndpoint = fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", region)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	voice := strings.TrimSpace(cfg.VoiceName)
	if voice == "" {
		voice = "vi-VN-HoaiMyNeural"
	}

	c := &Client{
		key:         key,
		voiceName:   voice,
		sttEndpoint: sttEndpoint,
		ttsEndpoint: ttsEndpoint,
		httpClient:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type transcriptionResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
}

// Transcribe converts one audio payload to text. The language is a locale
// tag such as "vi-VN" or "en-US".
func (c *Client) Transcribe(ctx context.Context, audio []byte, contentType, language string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("audio payload is empty")
	}
	if strings.TrimSpace(language) == "" {
		language = "vi-VN"
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "audio/mpeg"
	}

	params := url.Values{}
	params.Set("language", language)
	params.Set("format", "detailed")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sttEndpoint+"?"+params.Encode(), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute transcription request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return "", fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("azure stt http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}

	transcript := strings.TrimSpace(parsed.DisplayText)
	if transcript == "" {
		return "", fmt.Errorf("transcription failed: status=%s", parsed.RecognitionStatus)
	}
	return transcript, nil
}

// Synthesize renders text to mp3 audio. An empty voice falls back to the
// configured default, with an English voice substituted for en-US.
func (c *Client) Synthesize(ctx context.Context, text, language, voice string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("speech text is empty")
	}
	if strings.TrimSpace(language) == "" {
		language = "vi-VN"
	}
	if strings.TrimSpace(voice) == "" {
		voice = c.voiceName
		if language == "en-US" {
			voice = "en-US-JennyNeural"
		}
	}

	ssml := fmt.Sprintf(
		"<speak version='1.0' xml:lang='%s'><voice name='%s'><prosody rate='1.2'>%s</prosody></voice></speak>",
		language, voice, html.EscapeString(text),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ttsEndpoint, strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", "audio-16khz-128kbitrate-mono-mp3")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute synthesis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read synthesis response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("azure tts http status=%d body=%s", resp.StatusCode, string(raw))
	}
	if len(raw) == 0 {
		return nil, errors.New("synthesis returned empty audio")
	}
	return raw, nil
}
