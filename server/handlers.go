package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ngoclinhvu/medica/agent/contract"
	"github.com/ngoclinhvu/medica/agent/orchestrator"
)

const sessionCookie = "medica_session"

var imageMIMEByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, err := c.Cookie(sessionCookie); err == nil {
			if id, err := s.tokens.Parse(raw); err == nil {
				c.Set("session_id", id)
				c.Next()
				return
			}
		}

		id := uuid.NewString()
		token, err := s.tokens.Issue(id, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"status":   "error",
				"response": "Could not establish a session. Please try again.",
			})
			return
		}
		c.SetCookie(sessionCookie, token, int(s.tokens.ttl.Seconds()), "/", "", false, true)
		c.Set("session_id", id)
		c.Next()
	}
}

func sessionID(c *gin.Context) string {
	return c.GetString("session_id")
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

type chatRequest struct {
	Query string `json:"query" form:"query"`
	// ConversationHistory is accepted for backward compatibility but
	// ignored; the server-side session is authoritative.
	ConversationHistory []map[string]any `json:"conversation_history" form:"-"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBind(&req); err != nil {
		s.respondError(c, fmt.Errorf("%w: %v", contract.ErrValidation, err))
		return
	}

	envelope, err := s.core.ProcessTurn(c.Request.Context(), sessionID(c), contract.TurnInput{Text: req.Query})
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondEnvelope(c, envelope)
}

func (s *Server) handleUpload(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		s.respondError(c, fmt.Errorf("%w: an image file is required", contract.ErrValidation))
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	mime, ok := imageMIMEByExt[ext]
	if !ok {
		s.respondError(c, fmt.Errorf("%w: unsupported image type %q, use png or jpeg", contract.ErrMalformedInput, ext))
		return
	}

	maxBytes := int64(s.cfg.MaxUploadMB) << 20
	if file.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"status":   "error",
			"response": fmt.Sprintf("The image is too large. The limit is %d MB.", s.cfg.MaxUploadMB),
		})
		return
	}

	src, err := file.Open()
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxBytes+1))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if int64(len(data)) > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"status":   "error",
			"response": fmt.Sprintf("The image is too large. The limit is %d MB.", s.cfg.MaxUploadMB),
		})
		return
	}

	envelope, err := s.core.ProcessTurn(c.Request.Context(), sessionID(c), contract.TurnInput{
		Text:      c.PostForm("text"),
		Image:     data,
		ImageMIME: mime,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondEnvelope(c, envelope)
}

type validateRequest struct {
	ValidationResult string `json:"validation_result" form:"validation_result"`
	Comments         string `json:"comments" form:"comments"`
}

func (s *Server) handleValidate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBind(&req); err != nil {
		s.respondError(c, fmt.Errorf("%w: %v", contract.ErrValidation, err))
		return
	}

	envelope, err := s.core.ProcessValidation(c.Request.Context(), sessionID(c), req.ValidationResult, req.Comments)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   envelope.Status,
		"message":  envelope.Message,
		"response": envelope.Response,
	})
}

func (s *Server) handleClearSession(c *gin.Context) {
	if err := s.core.ClearSession(c.Request.Context(), sessionID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) handleTranscribe(c *gin.Context) {
	if s.speech == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "response": "Speech services are not configured."})
		return
	}

	file, err := c.FormFile("audio")
	if err != nil {
		s.respondError(c, fmt.Errorf("%w: an audio file is required", contract.ErrValidation))
		return
	}
	src, err := file.Open()
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer src.Close()

	audio, err := io.ReadAll(src)
	if err != nil {
		s.respondError(c, err)
		return
	}

	transcript, err := s.speech.Transcribe(c.Request.Context(), audio, file.Header.Get("Content-Type"), c.PostForm("language"))
	if err != nil {
		log.Error().Err(err).Msg("transcription failed")
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "response": "Could not transcribe the audio."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transcript": transcript})
}

type speechRequest struct {
	Text     string `json:"text" form:"text"`
	Language string `json:"language" form:"language"`
	VoiceID  string `json:"voice_id" form:"voice_id"`
}

func (s *Server) handleGenerateSpeech(c *gin.Context) {
	if s.speech == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "response": "Speech services are not configured."})
		return
	}

	var req speechRequest
	if err := c.ShouldBind(&req); err != nil {
		s.respondError(c, fmt.Errorf("%w: %v", contract.ErrValidation, err))
		return
	}

	audio, err := s.speech.Synthesize(c.Request.Context(), req.Text, req.Language, req.VoiceID)
	if err != nil {
		log.Error().Err(err).Msg("speech synthesis failed")
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "response": "Could not generate speech."})
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", audio)
}

func (s *Server) respondEnvelope(c *gin.Context, envelope orchestrator.Envelope) {
	body := gin.H{
		"status":              envelope.Status,
		"response":            envelope.Response,
		"agent":               envelope.Agent,
		"requires_validation": envelope.RequiresValidation,
	}
	if len(envelope.ResultImage) > 0 {
		mime := envelope.ResultImageMIME
		if mime == "" {
			mime = "image/png"
		}
		body["result_image"] = "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(envelope.ResultImage)
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, contract.ErrValidationPending):
		c.JSON(http.StatusConflict, gin.H{
			"status":   "pending_validation",
			"response": "A previous result is still waiting for your validation. Please confirm or reject it first.",
		})
	case errors.Is(err, contract.ErrNoPendingValidation):
		c.JSON(http.StatusBadRequest, gin.H{
			"status":   "error",
			"response": "There is nothing waiting for validation in this session.",
		})
	case errors.Is(err, contract.ErrMalformedInput):
		c.JSON(http.StatusBadRequest, gin.H{
			"status":   "error",
			"agent":    "System",
			"response": "The uploaded image could not be read. Please upload a valid PNG or JPEG image.",
		})
	case errors.Is(err, contract.ErrValidation),
		errors.Is(err, orchestrator.ErrInvalidMessage),
		errors.Is(err, orchestrator.ErrInvalidSession):
		c.JSON(http.StatusBadRequest, gin.H{
			"status":   "error",
			"response": err.Error(),
		})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":   "error",
			"response": "Something went wrong. Please try again.",
		})
	}
}
