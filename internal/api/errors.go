package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wphook/internal/conversation"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps service errors onto HTTP status codes. Internal errors are
// logged and hidden from the caller.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, conversation.ErrInvalid):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, conversation.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, conversation.ErrConflict):
		c.JSON(http.StatusConflict, errorResponse{Error: "contact already exists"})
	default:
		logger.Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}
