package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/INLOpen/motionrelay/auth"
	"github.com/INLOpen/motionrelay/record"
	"github.com/INLOpen/motionrelay/store"
)

// readBufferSize is the per-connection read buffer, matching the original
// deployment's 1024-byte receive size.
const readBufferSize = 1024

// IngestionServer accepts connections from allowlisted peers and appends
// every valid wire record they send to the store. Each accepted connection
// gets its own handler goroutine; a handler failure never affects the
// accept loop or sibling handlers.
type IngestionServer struct {
	listener  net.Listener
	gate      auth.PeerGate
	store     *store.CSVStore
	metrics   *Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	connWg    sync.WaitGroup // Tracks active connections for graceful shutdown.
	isStarted bool
	quit      chan struct{}
	mu        sync.Mutex
}

// NewIngestionServer creates a new ingestion server instance.
func NewIngestionServer(st *store.CSVStore, gate auth.PeerGate, metrics *Metrics, logger *slog.Logger) *IngestionServer {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &IngestionServer{
		gate:    gate,
		store:   st,
		metrics: metrics,
		logger:  logger.With("component", "IngestionServer"),
		tracer:  otel.Tracer("motionrelay/server"),
		quit:    make(chan struct{}),
	}
}

// Start begins accepting and handling connections on lis. This is a
// blocking call; run it in a goroutine. It returns nil on graceful
// shutdown via Stop.
func (s *IngestionServer) Start(lis net.Listener) error {
	s.mu.Lock()
	if s.isStarted {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.listener = lis
	s.isStarted = true
	s.mu.Unlock()
	s.logger.Info("Ingestion server listening", "address", lis.Addr().String())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// When Stop() closes the listener, Accept() returns an error.
			// Check the quit channel to tell graceful shutdown apart from a
			// real failure.
			select {
			case <-s.quit:
				s.logger.Info("Server shutting down, stopping accept loop.")
				return nil
			default:
				s.logger.Error("Failed to accept connection", "error", err)
				return fmt.Errorf("failed to accept connection: %w", err)
			}
		}

		host := peerHost(conn.RemoteAddr())
		if !s.gate.IsAllowed(host) {
			// Rejected peers are closed before any data is read; no handler
			// is spawned and the store is never touched.
			s.logger.Warn("Connection attempt from unauthorized address", "remote_addr", conn.RemoteAddr().String())
			s.metrics.PeersRejected.Inc()
			conn.Close()
			continue
		}

		s.connWg.Add(1)
		go s.handleConnection(conn)
	}
}

// Stop gracefully shuts down the server: it stops accepting new
// connections first, then waits for in-flight handlers to drain.
func (s *IngestionServer) Stop() {
	s.mu.Lock()
	if !s.isStarted {
		s.mu.Unlock()
		return
	}
	s.isStarted = false
	s.mu.Unlock()

	s.logger.Info("Stopping ingestion server...")
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}

	s.logger.Info("Waiting for active connections to drain...")
	s.connWg.Wait()
	s.logger.Info("All connections closed. Server stopped.")
}

// handleConnection reads newline-delimited wire records from one peer until
// it disconnects. Malformed lines are dropped and logged; the connection
// stays open. Only this handler's own failure closes its connection.
func (s *IngestionServer) handleConnection(conn net.Conn) {
	defer s.connWg.Done()
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered from panic in connection handler",
				"remote_addr", conn.RemoteAddr().String(), "panic", r)
		}
	}()

	remote := conn.RemoteAddr().String()
	s.logger.Info("Accepted new connection", "remote_addr", remote)
	s.metrics.ActiveConnections.Inc()
	defer s.metrics.ActiveConnections.Dec()

	ctx, span := s.tracer.Start(context.Background(), "IngestionServer.handleConnection",
		trace.WithAttributes(attribute.String("peer.address", remote)))
	defer span.End()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, readBufferSize), readBufferSize)

	// Shutdown does not cut handlers short: Stop drains them via connWg, so
	// every line already read off the wire is appended before the handler
	// exits.
	for scanner.Scan() {
		line := scanner.Text()
		rec, err := record.Decode(line)
		if err != nil {
			// Drop-and-log: a single malformed frame must not take down the
			// connection or reach the store.
			s.logger.Warn("Dropping malformed record", "remote_addr", remote, "error", err)
			s.metrics.DecodeFailures.Inc()
			span.AddEvent("record dropped")
			continue
		}

		if err := s.appendRecord(ctx, rec); err != nil {
			// The failed append is surfaced here and nowhere else; the store
			// stays usable for sibling handlers.
			s.logger.Error("Failed to persist record", "remote_addr", remote, "error", err)
			continue
		}
		s.metrics.RecordsAppended.Inc()
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) &&
		!strings.Contains(err.Error(), "use of closed network connection") {
		s.logger.Warn("Connection read failed, closing", "remote_addr", remote, "error", err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	s.logger.Info("Peer closed connection", "remote_addr", remote)
}

func (s *IngestionServer) appendRecord(ctx context.Context, rec record.Record) error {
	_, span := s.tracer.Start(ctx, "CSVStore.Append")
	defer span.End()

	if err := s.store.Append(rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return err
	}
	return nil
}

// peerHost extracts the host portion of a peer address for the gate check.
func peerHost(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
