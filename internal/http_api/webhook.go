package http_api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/givehub/payments/internal/models"
)

// webhook receives provider event deliveries. Control flow here deviates
// from the rest of the API on purpose: once the signature verifies, the
// response is 200 no matter what happens inside, because a non-2xx answer
// makes the provider redeliver and a poison event would hammer us forever.
// The error field in the body is for humans reading delivery logs.
func (s *HTTPServer) webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		s.logger.Error("Failed to read webhook body ", "error ", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	event, err := s.gateway.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, models.ErrWebhookSignature) {
			s.logger.Warn("Webhook signature verification failed ", "error ", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
			return
		}
		// Authenticated but unparseable. Acknowledge so it is not redelivered.
		s.logger.Error("Failed to parse verified webhook event ", "error ", err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "unparseable event"})
		return
	}

	if err := s.reconciler.Apply(event); err != nil {
		s.logger.Error("Webhook processing failed ", "type ", event.RawType, " id ", event.ID, " error ", err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
