package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"creatorhub-platform/pkg/errutil"
	"creatorhub-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderWebhookSignature = "X-Webhook-Signature"

	signaturePrefix = "sha256="
	maxWebhookBody  = 1 << 20
)

// SignPayload returns the header value a provider sends for body:
// "sha256=" followed by the hex HMAC-SHA256 of body under secret.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// WebhookSignature rejects requests whose body is not signed with secret.
// An empty secret rejects everything.
func WebhookSignature(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if secret == "" {
			logger.Ctx(ctx).Error("webhook secret not configured", zap.String("path", c.FullPath()))
			_ = c.Error(errutil.Unauthorized("webhook signature cannot be verified", nil))
			c.Abort()
			return
		}

		signature := strings.TrimSpace(c.GetHeader(HeaderWebhookSignature))
		if signature == "" {
			_ = c.Error(errutil.Unauthorized(HeaderWebhookSignature+" header required", nil))
			c.Abort()
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			_ = c.Error(errutil.BadRequest("unreadable webhook body", err))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if !hmac.Equal([]byte(signature), []byte(SignPayload(secret, body))) {
			logger.Ctx(ctx).Warn("webhook signature mismatch", zap.String("path", c.FullPath()))
			_ = c.Error(errutil.Unauthorized("invalid webhook signature", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
