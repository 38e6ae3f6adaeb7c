package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mhamrah/hamrah-auth/internal/services/auth/api/web"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/ceremony"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/challenge"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/identity"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/oauthflow"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/session"
	authsqlite "github.com/mhamrah/hamrah-auth/internal/services/auth/storage/sqlite"
)

// cleanupInterval is how often expired challenges, flows, sessions, and token
// pairs are swept.
const cleanupInterval = 5 * time.Minute

// Server hosts the auth service.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *authsqlite.Store
	challenges *challenge.Store
	flows      *oauthflow.Manager
	sessions   *session.Service
}

// New creates a configured auth server listening on the provided address.
func New(httpAddr string) (*Server, error) {
	listener, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", httpAddr, err)
	}
	store, err := openAuthStore(os.Getenv("HAMRAH_AUTH_DB_PATH"))
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	challenges := challenge.NewStore(store)
	ceremonies, err := ceremony.NewManager(ceremony.LoadConfigFromEnv(), store, store, challenges)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build ceremony manager: %w", err)
	}
	flows := oauthflow.NewManager(oauthflow.LoadConfigFromEnv(), store)
	sessions := session.NewService(session.LoadConfigFromEnv(), store, store)
	resolver := identity.NewResolver(store, store)

	mux := http.NewServeMux()
	web.NewServer(ceremonies, flows, resolver, sessions, store).RegisterRoutes(mux)

	return &Server{
		listener:   listener,
		httpServer: &http.Server{Handler: mux},
		store:      store,
		challenges: challenges,
		flows:      flows,
		sessions:   sessions,
	}, nil
}

// Addr returns the listener address for the auth server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves an auth server until the context ends.
func Run(ctx context.Context, httpAddr string) error {
	server, err := New(httpAddr)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the auth server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStore()

	s.startCleanup(serverCtx, cleanupInterval)

	log.Printf("auth server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		_ = s.httpServer.Shutdown(shutdownCtx)
		if err := <-serveErr; err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve HTTP: %w", err)
		}
		return nil
	case err := <-serveErr:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// startCleanup sweeps expired transient records so abandoned ceremonies and
// flows do not accumulate.
func (s *Server) startCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
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
				s.sweepExpired(ctx)
			}
		}
	}()
}

func (s *Server) sweepExpired(ctx context.Context) {
	if err := s.challenges.DeleteExpired(ctx); err != nil {
		log.Printf("sweep challenges: %v", err)
	}
	if err := s.flows.DeleteExpired(ctx); err != nil {
		log.Printf("sweep oauth flows: %v", err)
	}
	if err := s.sessions.DeleteExpired(ctx); err != nil {
		log.Printf("sweep sessions: %v", err)
	}
}

func openAuthStore(path string) (*authsqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "auth.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := authsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open auth sqlite store: %w", err)
	}
	return store, nil
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close auth store: %v", err)
	}
}
