// Package server implements the remote authority: the single source of
// truth the client reconciles against.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tend/internal/config"
	"tend/internal/discovery"
)

// Server bundles the authority's repo, HTTP listener and mDNS registration.
type Server struct {
	cfg      config.Server
	repo     *Repo
	log      *slog.Logger
	Token    string
	ServerID string
}

// New opens the authority database and loads (or creates) the bearer token
// and server identity.
func New(cfg config.Server, log *slog.Logger) (*Server, error) {
	repo, err := OpenRepo(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	token, err := LoadOrCreateToken(cfg.DataDir)
	if err != nil {
		repo.Close()
		return nil, err
	}
	serverID, err := LoadOrCreateServerID(cfg.DataDir)
	if err != nil {
		repo.Close()
		return nil, err
	}

	return &Server{cfg: cfg, repo: repo, log: log, Token: token, ServerID: serverID}, nil
}

// Close releases the underlying database.
func (s *Server) Close() error { return s.repo.Close() }

// Run serves until ctx is cancelled, then shuts down gracefully and
// unregisters from mDNS.
func (s *Server) Run(ctx context.Context) error {
	router := NewRouter(s.repo, s.Token, s.ServerID, s.log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var advertiser *discovery.Advertiser
	if s.cfg.MDNS {
		var err error
		advertiser, err = discovery.Advertise(s.cfg.Port, s.ServerID)
		if err != nil {
			// The server is still reachable by explicit endpoint.
			s.log.Warn("mdns registration failed", "error", err)
		} else {
			s.log.Info("mdns registered", "service", discovery.ServiceType, "port", s.cfg.Port)
		}
	}
	defer advertiser.Shutdown()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	s.log.Info("authority listening", "addr", httpServer.Addr, "server_id", s.ServerID)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("authority stopped")
	return nil
}
