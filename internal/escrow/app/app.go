// Package app assembles the escrow service: store, settlement gateway,
// engine, release coordinator, query side, and the HTTP server that
// fronts them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/lockupfinance/lockup/internal/escrow/api/web"
	"github.com/lockupfinance/lockup/internal/escrow/engine"
	"github.com/lockupfinance/lockup/internal/escrow/query"
	"github.com/lockupfinance/lockup/internal/escrow/release"
	"github.com/lockupfinance/lockup/internal/escrow/settlement"
	"github.com/lockupfinance/lockup/internal/escrow/storage/sqlite"
	"github.com/lockupfinance/lockup/internal/platform/timeouts"
)

// Config defines the inputs for the escrow server.
type Config struct {
	HTTPAddr      string
	DBPath        string
	SettlementURL string
}

// Server hosts the escrow HTTP API over its sqlite store.
type Server struct {
	store      *sqlite.Store
	httpServer *http.Server
}

// NewServer opens the store and wires every component.
func NewServer(cfg Config) (*Server, error) {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	gateway, err := settlement.NewHTTPGateway(cfg.SettlementURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("settlement gateway: %w", err)
	}

	eng := engine.New(store, gateway)
	coordinator := release.New(store, gateway, eng)
	reader := query.New(store)
	handler := web.NewHandler(eng, coordinator, reader)

	return &Server{
		store: store,
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler.Routes(),
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
	}, nil
}

// ListenAndServe blocks until the context is cancelled or the listener
// fails, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("http listening addr=%s", s.httpServer.Addr)
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	<-serveErr
	return nil
}

// Close releases the underlying store.
func (s *Server) Close() error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.Close()
}
