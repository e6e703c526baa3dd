// Package server hosts the board service: the JSON API over the review
// engine, the identity middleware, and the claim sweeper.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/inviteboard/internal/platform/timeouts"
	"github.com/louisbranch/inviteboard/internal/review/engine"
	"github.com/louisbranch/inviteboard/internal/review/storage/sqlite"
	"github.com/louisbranch/inviteboard/internal/services/board/api/httpapi"
	"github.com/louisbranch/inviteboard/internal/services/board/auth"
)

// DefaultSweepInterval is how often expired claims are returned to the
// pool when no interval is configured.
const DefaultSweepInterval = time.Minute

// Config holds everything the board server needs to start.
type Config struct {
	Port          int
	DBPath        string
	TokenSecret   []byte
	ClaimTTL      time.Duration
	SweepInterval time.Duration
}

// Server hosts the board service.
type Server struct {
	listener      net.Listener
	httpServer    *http.Server
	store         *sqlite.Store
	engine        *engine.Engine
	sweepInterval time.Duration
}

// New creates a configured board server listening on the provided port.
func New(cfg Config) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}
	store, err := openStore(cfg.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	eng, err := engine.New(engine.Config{Ledger: store, ClaimTTL: cfg.ClaimTTL})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, err
	}
	verifier, err := auth.NewVerifier(auth.Config{Secret: cfg.TokenSecret})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, err
	}

	apiMux := http.NewServeMux()
	httpapi.NewHandler(eng).Register(apiMux)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz)
	mux.Handle("/", verifier.Middleware(apiMux))

	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	return &Server{
		listener: listener,
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		store:         store,
		engine:        eng,
		sweepInterval: sweepInterval,
	}, nil
}

// Addr returns the listener address for the board server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a board server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	boardServer, err := New(cfg)
	if err != nil {
		return err
	}
	return boardServer.Serve(ctx)
}

// Serve starts the board server and blocks until it stops or the context
// ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStore()

	s.startSweeper(serverCtx, s.sweepInterval)

	log.Printf("board server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancelShutdown()
		_ = s.httpServer.Shutdown(shutdownCtx)
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// startSweeper returns expired review claims to the pool on an interval
// until the context ends.
func (s *Server) startSweeper(ctx context.Context, interval time.Duration) {
	if s == nil || s.engine == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepCtx, cancel := context.WithTimeout(ctx, timeouts.Storage)
				released, err := s.engine.ReleaseExpiredClaims(sweepCtx)
				cancel()
				if err != nil {
					log.Printf("sweep expired claims: %v", err)
					continue
				}
				if released > 0 {
					log.Printf("released %d expired review claims", released)
				}
			}
		}
	}()
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func openStore(path string) (*sqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "board.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open board sqlite store: %w", err)
	}
	return store, nil
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close board store: %v", err)
	}
}
