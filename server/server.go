// Package server exposes the assistant over HTTP. Sessions are carried in
// a signed cookie; all conversation state lives server-side.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/agent/orchestrator"
)

type Config struct {
	Host           string        `envconfig:"HOST" split_words:"true" default:"0.0.0.0"`
	Port           int           `envconfig:"PORT" split_words:"true" default:"8080"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS" split_words:"true" default:"http://localhost:3000"`
	SessionSecret  string        `envconfig:"SESSION_SECRET" split_words:"true" required:"true"`
	SessionTTL     time.Duration `envconfig:"SESSION_TTL" split_words:"true" default:"720h"`
	MaxUploadMB    int           `envconfig:"MAX_UPLOAD_MB" split_words:"true" default:"5"`
	Debug          bool          `envconfig:"DEBUG" split_words:"true" default:"false"`
}

// Core is the orchestration surface the handlers call.
type Core interface {
	ProcessTurn(ctx context.Context, sessionID string, in contract.TurnInput) (orchestrator.Envelope, error)
	ProcessValidation(ctx context.Context, sessionID, rawOutcome, comments string) (orchestrator.Envelope, error)
	ClearSession(ctx context.Context, sessionID string) error
}

// SpeechService converts between audio and text for the voice endpoints.
type SpeechService interface {
	Transcribe(ctx context.Context, audio []byte, contentType, language string) (string, error)
	Synthesize(ctx context.Context, text, language, voice string) ([]byte, error)
}

type Server struct {
	engine *gin.Engine
	core   Core
	speech SpeechService
	tokens *sessionTokens
	cfg    Config
}

func New(cfg Config, core Core, speech SpeechService) (*Server, error) {
	if core == nil {
		return nil, errors.New("orchestrator core is required")
	}

	tokens, err := newSessionTokens(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}

	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 5
	}
	// cors.New panics when no origin is allowed, so an empty list falls
	// back to the same default the env tag carries.
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000"}
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		core:   core,
		speech: speech,
		tokens: tokens,
		cfg:    cfg,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	engine.GET("/health", s.handleHealth)

	api := engine.Group("/api", s.sessionMiddleware())
	api.POST("/chat", s.handleChat)
	api.POST("/upload", s.handleUpload)
	api.POST("/validate", s.handleValidate)
	api.POST("/transcribe", s.handleTranscribe)
	api.POST("/generate-speech", s.handleGenerateSpeech)
	api.DELETE("/session", s.handleClearSession)

	s.engine = engine
	return s, nil
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.engine
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
