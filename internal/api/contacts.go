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

type ContactHandler struct {
	svc    *conversation.Service
	logger *zap.Logger
}

// List returns the ranked conversation list, optionally filtered by
// ?archived, ?blocked, ?pinned (true/false) and ?search.
func (h *ContactHandler) List(c *gin.Context) {
	var f store.ContactFilter
	for key, dst := range map[string]**bool{
		"archived": &f.Archived,
		"blocked":  &f.Blocked,
		"pinned":   &f.Pinned,
	} {
		v, ok := c.GetQuery(key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, key+" must be true or false")
			return
		}
		*dst = &b
	}
	f.Search = c.Query("search")

	convs, err := h.svc.ListConversations(c.Request.Context(), f)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if convs == nil {
		convs = []ranking.Conversation{}
	}
	c.JSON(http.StatusOK, convs)
}

func (h *ContactHandler) Get(c *gin.Context) {
	contact, err := h.svc.GetContact(c.Request.Context(), c.Param("waId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

type createContactRequest struct {
	WaID           string   `json:"wa_id"`
	Name           string   `json:"name"`
	ProfilePicture string   `json:"profilePicture"`
	Notes          string   `json:"notes"`
	Labels         []string `json:"labels"`
}

func (h *ContactHandler) Create(c *gin.Context) {
	var req createContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	contact, err := h.svc.CreateContact(c.Request.Context(), conversation.CreateContactRequest{
		WaID:           req.WaID,
		Name:           req.Name,
		ProfilePicture: req.ProfilePicture,
		Notes:          req.Notes,
		Labels:         req.Labels,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, contact)
}

type updateContactRequest struct {
	Name           *string   `json:"name"`
	ProfilePicture *string   `json:"profilePicture"`
	Notes          *string   `json:"notes"`
	Labels         *[]string `json:"labels"`
}

// Update edits profile fields. A wa_id in the body is ignored.
func (h *ContactHandler) Update(c *gin.Context) {
	var req updateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	contact, err := h.svc.UpdateContact(c.Request.Context(), c.Param("waId"), store.ContactUpdate{
		Name:           req.Name,
		ProfilePicture: req.ProfilePicture,
		Notes:          req.Notes,
		Labels:         req.Labels,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (h *ContactHandler) Delete(c *gin.Context) {
	removed, err := h.svc.DeleteContact(c.Request.Context(), c.Param("waId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":         "contact and messages deleted",
		"deletedMessages": removed,
	})
}

type toggleRequest struct {
	Value     *bool      `json:"value"`
	MuteUntil *time.Time `json:"muteUntil"`
}

func (h *ContactHandler) Toggle(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Value == nil {
		badRequest(c, "value is required")
		return
	}
	contact, err := h.svc.Toggle(c.Request.Context(), c.Param("waId"), c.Param("action"), *req.Value, req.MuteUntil)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

type statusRequest struct {
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"lastSeen"`
}

func (h *ContactHandler) SetStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	contact, err := h.svc.SetPresence(c.Request.Context(), c.Param("waId"), req.Status, req.LastSeen)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (h *ContactHandler) DemoOnline(c *gin.Context) {
	contact, err := h.svc.GoOnline(c.Request.Context(), c.Param("waId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (h *ContactHandler) DemoOffline(c *gin.Context) {
	contact, err := h.svc.GoOffline(c.Request.Context(), c.Param("waId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}
