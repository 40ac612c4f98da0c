// Package server implements the HTTP server for the relayd daemon.
package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/relay/chat"
)

// ChatRelay drives one inbound chat request against the upstream gateway.
// Implemented by chat.Relay.
type ChatRelay interface {
	Serve(ctx context.Context, req *chat.Request, w chat.EventWriter) error
}

// Server is the main HTTP server for relayd.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	relay  ChatRelay
	db     *sql.DB
	logger zerolog.Logger

	startedAt time.Time
}

// Config holds server configuration options.
type Config struct {
	Addr   string
	Logger zerolog.Logger
}

// New creates a new HTTP server.
func New(cfg Config, relay ChatRelay, db *sql.DB) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		engine: engine,
		relay:  relay,
		db:     db,
		logger: cfg.Logger.With().Str("component", "http-server").Logger(),
	}

	engine.Use(s.requestID(), s.accessLog(), gin.Recovery())
	engine.POST("/v1/chat", s.handleChat)
	engine.GET("/healthz", s.handleHealth)

	// No WriteTimeout: chat responses are long-lived event streams.
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Serve starts the HTTP server and blocks until it stops.
func (s *Server) Serve() error {
	s.startedAt = time.Now()
	s.logger.Info().Str("address", s.http.Addr).Msg("Starting HTTP server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, letting in-flight streams finish
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Gracefully stopping HTTP server")
	return s.http.Shutdown(ctx)
}
