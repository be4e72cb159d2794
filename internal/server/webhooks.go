package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallparish/offertory/internal/webhook/domain"
	"go.uber.org/zap"
)

// SignatureHeader carries the gateway's timestamped HMAC over the raw body.
const SignatureHeader = "Giving-Signature"

// HandleGivingWebhook accepts a gateway delivery. The body must reach the
// verifier untouched, so it is read raw and never bound through gin's JSON
// machinery. Response codes steer the gateway's retry loop: 2xx stops
// redelivery, 4xx marks the delivery bad, 5xx asks for another attempt.
func (s *Server) HandleGivingWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	outcome, err := s.webhookSvc.Ingest(c.Request.Context(), payload, c.GetHeader(SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, webhookdomain.ErrInvalidSignature):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		case errors.Is(err, webhookdomain.ErrInvalidPayload),
			errors.Is(err, webhookdomain.ErrInvalidEvent):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		case errors.Is(err, webhookdomain.ErrGatewayUnavailable):
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unavailable"})
		default:
			s.log.Error("webhook ingest failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "outcome": string(outcome)})
}
