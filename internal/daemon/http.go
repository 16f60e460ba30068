package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HTTPServer serves the gin router on the configured TCP address.
type HTTPServer struct {
	srv      *http.Server
	addr     string
	listener net.Listener
	logger   *zap.Logger
}

func NewHTTPServer(p Params, router *gin.Engine, logger *zap.Logger) *HTTPServer {
	return &HTTPServer{
		srv: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		addr:   p.Config.HTTP.Addr,
		logger: logger,
	}
}

// Start binds the address and serves in the background. Bind errors are
// returned so the daemon fails to start instead of running without HTTP.
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.addr, err)
	}
	h.listener = ln
	h.logger.Info("http server starting", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("http server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (h *HTTPServer) Addr() string {
	if h.listener == nil {
		return h.addr
	}
	return h.listener.Addr().String()
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("http server stopping")
	return h.srv.Shutdown(ctx)
}
