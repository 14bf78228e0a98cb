package daemon

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/config"
	"github.com/matheus3301/chatd/internal/gateway"
	"github.com/matheus3301/chatd/internal/httpapi"
	"github.com/matheus3301/chatd/internal/metrics"
)

// HTTPServer serves the REST API, the WebSocket endpoint and metrics.
type HTTPServer struct {
	srv      *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewHTTPServer binds the listen address so port conflicts fail startup.
func NewHTTPServer(cfg *config.Config, api *httpapi.API, gw *gateway.Gateway, m *metrics.Metrics, logger *zap.Logger) (*HTTPServer, error) {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	return &HTTPServer{
		srv: &http.Server{
			Handler:           api.Handler(gw, m.Handler()),
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: ln,
		logger:   logger,
	}, nil
}

// Addr returns the bound address.
func (s *HTTPServer) Addr() string {
	return s.listener.Addr().String()
}

// Start serves until Stop. Blocks.
func (s *HTTPServer) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.Addr()))
	return s.srv.Serve(s.listener)
}

func (s *HTTPServer) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown incomplete", zap.Error(err))
	}
}
