package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aschepis/backscratcher/relay/chat"
	"github.com/aschepis/backscratcher/relay/llm"
)

// handleChat relays one chat request to the upstream gateway as a live
// event stream. Errors before the first event produce a JSON error
// response; later failures ride the stream itself.
func (s *Server) handleChat(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "type": string(llm.ErrorTypeInvalidRequest)})
		return
	}

	logger := requestLogger(c, s.logger)
	logger.Info().
		Str("user_id", req.UserID).
		Str("conversation_id", req.ConversationID).
		Str("model", req.Model).
		Int("history_len", len(req.History)).
		Int("message_len", len(req.Message)).
		Msg("Chat request received")

	w := newEventStream(c)
	if err := s.relay.Serve(c.Request.Context(), &req, w); err != nil {
		code, kind := statusForError(err)
		if retry := retryAfterSeconds(err); retry != "" {
			c.Header("Retry-After", retry)
		}
		logger.Error().Err(err).Int("status", code).Msg("Chat request failed")
		c.JSON(code, gin.H{"error": err.Error(), "type": kind})
		return
	}
}

// statusForError maps an upstream error category to an HTTP status.
func statusForError(err error) (int, string) {
	var lerr *llm.Error
	if !errors.As(err, &lerr) {
		return http.StatusInternalServerError, string(llm.ErrorTypeUnknown)
	}

	kind := string(lerr.Type)
	switch lerr.Type {
	case llm.ErrorTypeAuth:
		return http.StatusUnauthorized, kind
	case llm.ErrorTypeRateLimit:
		return http.StatusTooManyRequests, kind
	case llm.ErrorTypeInvalidRequest:
		return http.StatusBadRequest, kind
	case llm.ErrorTypeRequestTooLarge:
		return http.StatusRequestEntityTooLarge, kind
	case llm.ErrorTypeTimeout:
		return http.StatusGatewayTimeout, kind
	case llm.ErrorTypeProvider, llm.ErrorTypeNetwork:
		return http.StatusBadGateway, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

// retryAfterSeconds renders an error's retry hint as whole seconds for the
// Retry-After header, or "" when the error carries none.
func retryAfterSeconds(err error) string {
	retry := llm.ExtractRetryAfter(err)
	if retry == nil {
		return ""
	}
	secs := int(math.Ceil(retry.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
