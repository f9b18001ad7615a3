package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/catalog-classifier/internal/domain"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
	"github.com/jonesrussell/catalog-classifier/internal/processor"
)

const (
	// HmacHeader carries the base64-encoded HMAC-SHA256 of the raw body.
	HmacHeader = "X-Webhook-Hmac-SHA256"

	// maxWebhookBodySize bounds webhook payloads (1MB).
	maxWebhookBodySize = 1 << 20

	// webhookProcessTimeout bounds the detached processing of one delivery.
	webhookProcessTimeout = 2 * time.Minute
)

// ProductUpdated handles POST /webhooks/products/update. The delivery is
// acknowledged as soon as the signature and payload check out; processing
// runs detached so slow upstream calls never stall webhook retries.
func (h *Handler) ProductUpdated(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodySize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if len(body) > maxWebhookBodySize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}

	if !verifyWebhookSignature(c.GetHeader(HmacHeader), body, h.webhookSecret) {
		h.logger.Warn("Webhook signature mismatch",
			logger.String("client_ip", c.ClientIP()),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var product domain.Product
	if unmarshalErr := json.Unmarshal(body, &product); unmarshalErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}
	if product.ID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing product id"})
		return
	}

	h.logger.Info("Product update received",
		logger.Int64("product_id", product.ID),
		logger.String("updated_at", product.UpdatedAt),
	)

	go h.processDelivery(product)

	c.JSON(http.StatusOK, gin.H{"status": "accepted", "product_id": product.ID})
}

// processDelivery runs the merge pipeline for one webhook payload on its own
// timeout, detached from the request context.
func (h *Handler) processDelivery(product domain.Product) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
	defer cancel()

	outcome, err := h.processor.Process(ctx, &product, processor.Options{Source: "webhook"})
	if err != nil {
		h.logger.Error("Webhook processing failed",
			logger.Int64("product_id", product.ID),
			logger.Error(err),
		)
		return
	}
	h.logger.Info("Webhook processed",
		logger.Int64("product_id", product.ID),
		logger.String("status", outcome.Status),
	)
}

// verifyWebhookSignature checks the base64 HMAC-SHA256 digest of the raw
// body in constant time. An empty configured secret fails closed.
func verifyWebhookSignature(header string, body []byte, secret string) bool {
	if secret == "" || header == "" {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(expected, mac.Sum(nil))
}
