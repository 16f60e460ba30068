package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wphook/internal/conversation"
	"github.com/matheus3301/wphook/internal/ranking"
	"github.com/matheus3301/wphook/internal/store"
	"go.uber.org/zap"
)

type MessageHandler struct {
	svc    *conversation.Service
	logger *zap.Logger
}

type messageText struct {
	Body string `json:"body"`
}

type messageResponse struct {
	ID            string      `json:"id"`
	CorrelationID string      `json:"correlationId"`
	WaID          string      `json:"wa_id"`
	Name          string      `json:"name"`
	Text          messageText `json:"text"`
	Type          string      `json:"type"`
	Direction     string      `json:"direction"`
	Status        string      `json:"status"`
	Timestamp     time.Time   `json:"timestamp"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func toMessageResponse(m *store.Message) messageResponse {
	return messageResponse{
		ID:            m.ExternalID,
		CorrelationID: m.CorrelationID,
		WaID:          m.ConversationKey,
		Name:          m.SenderName,
		Text:          messageText{Body: m.Body},
		Type:          m.MessageType,
		Direction:     string(m.Direction),
		Status:        string(m.Status),
		Timestamp:     time.UnixMilli(m.Timestamp).UTC(),
		CreatedAt:     time.UnixMilli(m.CreatedAt).UTC(),
		UpdatedAt:     time.UnixMilli(m.UpdatedAt).UTC(),
	}
}

// Conversations returns every conversation, ranked, without filters.
func (h *MessageHandler) Conversations(c *gin.Context) {
	convs, err := h.svc.ListConversations(c.Request.Context(), store.ContactFilter{})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if convs == nil {
		convs = []ranking.Conversation{}
	}
	c.JSON(http.StatusOK, convs)
}

// Conversation returns ?page (default 1) of ?limit (default 50) messages in
// chronological order and marks the conversation read.
func (h *MessageHandler) Conversation(c *gin.Context) {
	page, ok := intQuery(c, "page", 1)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", conversation.DefaultPageSize)
	if !ok {
		return
	}

	msgs, err := h.svc.ListMessages(c.Request.Context(), c.Param("waId"), page, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]messageResponse, len(msgs))
	for i := range msgs {
		out[i] = toMessageResponse(&msgs[i])
	}
	c.JSON(http.StatusOK, out)
}

func intQuery(c *gin.Context, key string, def int) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		badRequest(c, key+" must be a positive integer")
		return 0, false
	}
	return n, true
}

type sendRequest struct {
	WaID string `json:"wa_id"`
	Name string `json:"name"`
	Text string `json:"text"`
}

func (h *MessageHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	msg, err := h.svc.Send(c.Request.Context(), conversation.SendRequest{WaID: req.WaID, Name: req.Name, Text: req.Text})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toMessageResponse(msg))
}

type statusUpdate struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StatusUpdates returns outbound messages whose status changed after
// ?lastUpdate (RFC 3339), newest change first.
func (h *MessageHandler) StatusUpdates(c *gin.Context) {
	var since time.Time
	if v := c.Query("lastUpdate"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			badRequest(c, "lastUpdate must be an RFC 3339 timestamp")
			return
		}
		since = t
	}

	msgs, err := h.svc.StatusUpdates(c.Request.Context(), c.Param("waId"), since)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]statusUpdate, len(msgs))
	for i, m := range msgs {
		out[i] = statusUpdate{ID: m.ExternalID, Status: string(m.Status), UpdatedAt: time.UnixMilli(m.UpdatedAt).UTC()}
	}
	c.JSON(http.StatusOK, out)
}

type statsResponse struct {
	TotalMessages      int64 `json:"totalMessages"`
	TotalConversations int64 `json:"totalConversations"`
	SentCount          int64 `json:"sentCount"`
	DeliveredCount     int64 `json:"deliveredCount"`
	ReadCount          int64 `json:"readCount"`
}

func toStatsResponse(s *store.Stats) statsResponse {
	return statsResponse{
		TotalMessages:      s.TotalMessages,
		TotalConversations: s.TotalConversations,
		SentCount:          s.Sent,
		DeliveredCount:     s.Delivered,
		ReadCount:          s.Read,
	}
}

func (h *MessageHandler) Stats(c *gin.Context) {
	s, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toStatsResponse(s))
}
