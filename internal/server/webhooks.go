package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studioordo/backoffice/internal/job/store"
	"github.com/studioordo/backoffice/internal/jobhandlers"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// handleStripeWebhook accepts the raw event and enqueues it for async
// processing. Signature verification happens in the job handler, so intake
// stays fast and Stripe gets its 200 before any heavy work runs.
func (s *Server) handleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil || len(payload) == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	requestID := requestIDFrom(c)
	jobID, err := s.jobStore.Enqueue(c.Request.Context(), jobhandlers.TypeStripeWebhook, map[string]string{
		"payload":   string(payload),
		"signature": c.GetHeader("Stripe-Signature"),
		"requestId": requestID,
	}, store.EnqueueOptions{})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("stripe webhook enqueued",
		zap.String("job_id", jobID.String()),
		zap.String("request_id", requestID),
	)
	c.JSON(http.StatusOK, gin.H{"received": true})
}
