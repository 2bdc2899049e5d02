// Package app hosts the integrity service: the JSON HTTP API plus a gRPC
// health endpoint for orchestration probes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jobchain/integrity/internal/api/httpapi"
	fraudservice "github.com/jobchain/integrity/internal/fraud/service"
	"github.com/jobchain/integrity/internal/ledger"
	"github.com/jobchain/integrity/internal/ledger/jsonrpc"
	"github.com/jobchain/integrity/internal/ledger/ledgertest"
	paperservice "github.com/jobchain/integrity/internal/paper/service"
	"github.com/jobchain/integrity/internal/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Config defines the inputs for the integrity server.
type Config struct {
	GRPCPort  int
	HTTPAddr  string
	DBPath    string
	LedgerURL string
}

// Server hosts the integrity service.
type Server struct {
	grpcListener net.Listener
	grpcServer   *grpc.Server
	health       *health.Server
	httpListener net.Listener
	httpServer   *http.Server
	store        *sqlite.Store
}

// New creates a configured integrity server listening on the provided
// addresses. An empty ledger URL selects the in-memory recorder, which keeps
// local development working without a chain endpoint.
func New(cfg Config) (*Server, error) {
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", cfg.GRPCPort, err)
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		_ = grpcListener.Close()
		return nil, err
	}

	ledgerClient, err := newLedgerClient(cfg.LedgerURL)
	if err != nil {
		_ = grpcListener.Close()
		_ = store.Close()
		return nil, err
	}

	httpAddr := strings.TrimSpace(cfg.HTTPAddr)
	if httpAddr == "" {
		_ = grpcListener.Close()
		_ = store.Close()
		return nil, errors.New("http address is required")
	}
	httpListener, err := net.Listen("tcp", httpAddr)
	if err != nil {
		_ = grpcListener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("listen on http addr %s: %w", httpAddr, err)
	}

	paper := paperservice.New(store, ledgerClient)
	fraud := fraudservice.New(store, store, ledgerClient)
	httpServer := &http.Server{
		Handler:           httpapi.NewHandler(paper, fraud),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		grpcListener: grpcListener,
		grpcServer:   grpcServer,
		health:       healthServer,
		httpListener: httpListener,
		httpServer:   httpServer,
		store:        store,
	}, nil
}

// Addr returns the gRPC listener address.
func (s *Server) Addr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// HTTPAddr returns the HTTP listener address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Run creates and serves an integrity server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the integrity server and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeStore()

	log.Printf("integrity gRPC health listening at %v", s.grpcListener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.grpcListener)
	}()

	log.Printf("integrity HTTP API listening at %v", s.httpListener.Addr())
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- s.httpServer.Serve(s.httpListener)
	}()

	handleErr := func(err error) error {
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}

	shutdownGRPC := func() {
		if s.health != nil {
			s.health.Shutdown()
		}
		s.grpcServer.GracefulStop()
	}
	shutdownHTTP := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}

	select {
	case <-ctx.Done():
		shutdownGRPC()
		shutdownHTTP()
		return handleErr(<-serveErr)
	case err := <-serveErr:
		shutdownHTTP()
		return handleErr(err)
	case err := <-httpErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		shutdownGRPC()
		if handled := handleErr(<-serveErr); handled != nil {
			return handled
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

func openStore(path string) (*sqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "integrity.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open integrity sqlite store: %w", err)
	}
	return store, nil
}

func newLedgerClient(url string) (ledger.Client, error) {
	if strings.TrimSpace(url) == "" {
		log.Print("ledger endpoint not configured, using in-memory recorder")
		return &ledgertest.Recorder{}, nil
	}
	return jsonrpc.New(url)
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close integrity store: %v", err)
	}
}
