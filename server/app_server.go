package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/INLOpen/motionrelay/auth"
	"github.com/INLOpen/motionrelay/config"
	"github.com/INLOpen/motionrelay/store"
)

// AppServer wires the collector's components together: the durable store,
// the peer gate, the ingestion server and the optional debug server.
type AppServer struct {
	tcpLis   net.Listener
	ingest   *IngestionServer
	debug    *DebugServer
	store    *store.CSVStore
	registry *prometheus.Registry
	cfg      *config.Config
	logger   *slog.Logger
	cancel   context.CancelFunc
}

// NewAppServer creates and initializes a new collector application server.
func NewAppServer(cfg *config.Config, logger *slog.Logger) (*AppServer, error) {
	gate, err := buildGate(&cfg.Server, logger)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	tcpLis, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Server.ListenAddress, err)
	}

	appSrv := &AppServer{
		tcpLis:   tcpLis,
		ingest:   NewIngestionServer(st, gate, metrics, logger),
		store:    st,
		registry: registry,
		cfg:      cfg,
		logger:   logger.With("component", "AppServer"),
	}

	if cfg.Debug.Enabled {
		appSrv.debug = NewDebugServer(&cfg.Debug, registry, logger)
	}
	return appSrv, nil
}

// buildGate constructs the peer gate from configuration. An empty allowlist
// is a startup error unless allow_all_peers is set explicitly.
func buildGate(cfg *config.ServerConfig, logger *slog.Logger) (auth.PeerGate, error) {
	if len(cfg.AllowedPeers) > 0 {
		return auth.NewPeerAllowlist(cfg.AllowedPeers), nil
	}
	if cfg.AllowAllPeers {
		logger.Warn("Peer allowlist disabled; accepting connections from any address")
		return auth.AllowAll, nil
	}
	return nil, fmt.Errorf("no allowed_peers configured; set allow_all_peers to accept any address")
}

// Addr returns the address the ingestion server is listening on.
func (s *AppServer) Addr() net.Addr { return s.tcpLis.Addr() }

// Store returns the underlying record store. This is useful for tests.
func (s *AppServer) Store() *store.CSVStore { return s.store }

// Start runs the ingestion and debug servers in parallel. It blocks until
// both stop.
func (s *AppServer) Start() error {
	g, ctx := errgroup.WithContext(context.Background())
	var appCtx context.Context
	appCtx, s.cancel = context.WithCancel(ctx)

	g.Go(func() error {
		go func() {
			<-appCtx.Done()
			s.logger.Info("Context cancelled, stopping ingestion server...")
			s.ingest.Stop()
		}()
		s.logger.Info("Starting ingestion server...")
		return s.ingest.Start(s.tcpLis)
	})

	if s.debug != nil {
		g.Go(func() error {
			go func() {
				<-appCtx.Done()
				s.logger.Info("Context cancelled, stopping debug server...")
				s.debug.Stop()
			}()
			s.logger.Info("Starting debug server...")
			return s.debug.Start()
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("A server has failed, initiating shutdown.", "error", err)
		return fmt.Errorf("server group failed: %w", err)
	}

	s.logger.Info("All servers have stopped gracefully.")
	return nil
}

// Stop gracefully shuts down all servers.
func (s *AppServer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}
