package server

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// webhookEvent is the gateway's callback envelope.
type webhookEvent struct {
	EventType string `json:"eventType"`
	EventData struct {
		PaymentReference     string `json:"paymentReference"`
		TransactionReference string `json:"transactionReference"`
		PaymentMethod        string `json:"paymentMethod"`
		// amountPaid arrives as a JSON number.
		AmountPaid json.Number `json:"amountPaid"`
	} `json:"eventData"`
}

// eventOutcomes maps gateway event types onto the provider's status
// vocabulary understood by reconciliation.
var eventOutcomes = map[string]string{
	"SUCCESSFUL_TRANSACTION": "PAID",
	"FAILED_TRANSACTION":     "FAILED",
	"EXPIRED_TRANSACTION":    "EXPIRED",
}

// gatewayWebhook ingests payment callbacks. Signature verification is
// mandatory in production; in development unsigned deliveries (e.g. from the
// gateway sandbox) are accepted. The handler always answers 200 for known-good
// payloads it chooses to ignore, so the gateway stops retrying.
func (s *Server) gatewayWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	if s.cfg.IsProduction() || c.GetHeader("monnify-signature") != "" {
		if !s.verifySignature(body, c.GetHeader("monnify-signature")) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	outcome, known := eventOutcomes[event.EventType]
	if !known {
		log.Printf("webhook: ignoring event type %q", event.EventType)
		c.JSON(http.StatusOK, gin.H{"message": "ignored"})
		return
	}
	if event.EventData.PaymentReference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing payment reference"})
		return
	}

	err = s.payments.Reconcile(
		c.Request.Context(),
		event.EventData.PaymentReference,
		outcome,
		event.EventData.TransactionReference,
		event.EventData.PaymentMethod,
		event.EventData.AmountPaid.String(),
	)
	if err != nil {
		// A 5xx makes the gateway redeliver, which is what we want on a
		// transient store failure.
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "processed"})
}

func (s *Server) verifySignature(body []byte, signature string) bool {
	if s.cfg.Gateway.WebhookSecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(s.cfg.Gateway.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
