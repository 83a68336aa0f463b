package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/keytally/keytally/internal/config"

	"go.uber.org/zap"
)

type Server struct {
	config  *config.Config
	handler *Handler
	server  *http.Server
	log     *zap.Logger
}

// NewServer serves handler on cfg.WebAddr(), or on customPort when it is set.
func NewServer(cfg *config.Config, handler *Handler, customPort int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	handler.SetupRoutes(mux)

	addr := cfg.WebAddr()
	if customPort > 0 {
		addr = net.JoinHostPort(cfg.Web.Host, strconv.Itoa(customPort))
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     zap.NewStdLog(logger.Named("http")),
	}

	return &Server{
		config:  cfg,
		handler: handler,
		server:  httpServer,
		log:     logger,
	}
}

// Start listens on the configured address and blocks until Shutdown.
// It returns nil after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("web API listening", zap.String("addr", "http://"+ln.Addr().String()))
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	return s.server.Shutdown(ctx)
}

func (s *Server) GetAddress() string {
	return s.server.Addr
}
