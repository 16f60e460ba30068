package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wphook/internal/config"
	"github.com/matheus3301/wphook/internal/ingest"
	"go.uber.org/zap"
)

// Ingester applies an extracted batch. Implemented by *ingest.Processor.
type Ingester interface {
	Ingest(ctx context.Context, batch ingest.Batch) (ingest.Result, error)
}

type Handler struct {
	ingester    Ingester
	verifyToken string
	appSecret   string
	logger      *zap.Logger
}

func NewHandler(ingester Ingester, cfg config.WebhookConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ingester:    ingester,
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		logger:      logger,
	}
}

// Verify answers the subscription handshake. The challenge is echoed only when
// mode is "subscribe" and the token matches the configured one.
func (h *Handler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	if mode != "subscribe" || h.verifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		h.logger.Warn("webhook verification rejected", zap.String("mode", mode))
		c.Status(http.StatusForbidden)
		return
	}

	h.logger.Info("webhook verified")
	c.String(http.StatusOK, challenge)
}

// Receive ingests one delivery. Once the envelope is recognized the provider
// gets 200 unless persisting failed, in which case 500 makes it redeliver.
func (h *Handler) Receive(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if h.appSecret != "" && !validSignature(body, h.appSecret, c.GetHeader(SignatureHeader)) {
		h.logger.Warn("webhook signature mismatch")
		c.Status(http.StatusUnauthorized)
		return
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		h.logger.Warn("malformed webhook payload", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	batch, err := env.Batch()
	if errors.Is(err, ErrUnrecognized) {
		h.logger.Info("ignoring webhook", zap.String("object", env.Object))
		c.Status(http.StatusNotFound)
		return
	}

	res, err := h.ingester.Ingest(c.Request.Context(), batch)
	if err != nil {
		h.logger.Error("webhook processing failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, res)
}
