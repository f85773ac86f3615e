// Package client owns the single outbound link an edge node keeps to the
// collector. Sends are strictly sequential; a transmission failure is
// answered with one synchronous reconnect and one retry, after which the
// record is dropped. Reconnection backs off according to the RetryBudget
// and ends in a terminal Aborted state when a bounded budget runs out.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/INLOpen/motionrelay/record"
	"github.com/INLOpen/motionrelay/sensor"
	"github.com/INLOpen/motionrelay/status"
)

// State is the client's connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAborted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAborted:
		return "aborted"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

var (
	// ErrAborted means the reconnect budget is exhausted. The client makes
	// no further attempts until externally restarted.
	ErrAborted = errors.New("client aborted: reconnect budget exhausted")
	// ErrStopped means an operator requested a graceful stop.
	ErrStopped = errors.New("client stopped")
)

// SendError reports a non-fatal failure to deliver a single record. The
// record is dropped; the client remains usable.
type SendError struct {
	Err error
}

func (e *SendError) Error() string { return fmt.Sprintf("record dropped after retry: %v", e.Err) }
func (e *SendError) Unwrap() error { return e.Err }

// Options holds configuration for the client.
type Options struct {
	Address     string
	SourceID    string
	Budget      RetryBudget
	Indicator   status.Indicator
	Logger      *slog.Logger
	DialTimeout time.Duration
}

// Client maintains one outbound TCP connection to the collector. All
// operations except Stop must be called from a single goroutine.
type Client struct {
	addr      string
	sourceID  string
	budget    RetryBudget
	indicator status.Indicator
	logger    *slog.Logger

	// dial and sleep are swappable in tests.
	dial  func() (net.Conn, error)
	sleep func(d time.Duration) bool

	conn     net.Conn
	state    atomic.Int32
	attempts atomic.Int32
	quit     chan struct{}
	stopOnce sync.Once
}

// New creates a client. It does not connect; the first Send (or an explicit
// Connect) establishes the link.
func New(opts Options) (*Client, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Indicator == nil {
		opts.Indicator = status.Nop
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	c := &Client{
		addr:      opts.Address,
		sourceID:  opts.SourceID,
		budget:    opts.Budget,
		indicator: opts.Indicator,
		logger:    opts.Logger.With("component", "Client"),
		quit:      make(chan struct{}),
	}
	dialer := net.Dialer{Timeout: opts.DialTimeout}
	c.dial = func() (net.Conn, error) {
		return dialer.Dial("tcp", c.addr)
	}
	c.sleep = c.interruptibleSleep
	return c, nil
}

// State returns the current lifecycle state.
func (c *Client) State() State { return State(c.state.Load()) }

// Attempts returns the count of consecutive failed connection attempts. It
// resets to zero on every successful connect.
func (c *Client) Attempts() int { return int(c.attempts.Load()) }

// Connect establishes the initial connection, applying the same
// backoff-retry protocol as a reconnect.
func (c *Client) Connect() error {
	return c.Reconnect()
}

// Send delivers one record as a single newline-terminated frame. If the
// link is down it reconnects first. On a transmission error it performs
// exactly one reconnect and one retry; if the retry also fails the record
// is dropped and a *SendError is returned.
func (c *Client) Send(rec record.Record) error {
	switch c.State() {
	case StateAborted:
		return ErrAborted
	case StateStopped:
		return ErrStopped
	}

	if c.conn == nil {
		if err := c.Reconnect(); err != nil {
			return err
		}
	}

	frame := rec.Encode() + "\n"
	err := c.writeFrame(frame)
	if err == nil {
		return nil
	}

	c.logger.Warn("Send failed, attempting to reconnect", "error", err)
	if rerr := c.Reconnect(); rerr != nil {
		return rerr
	}
	if err := c.writeFrame(frame); err != nil {
		c.closeConn()
		c.state.Store(int32(StateDisconnected))
		c.logger.Warn("Failed to send record after reconnecting", "error", err)
		return &SendError{Err: err}
	}
	return nil
}

// Reconnect closes any existing connection and dials until it succeeds, the
// retry budget is exhausted (ErrAborted), or Stop is called (ErrStopped).
// The attempt counter resets to zero on success.
func (c *Client) Reconnect() error {
	c.state.Store(int32(StateConnecting))
	c.indicator.ShowStatus(status.PhaseConnecting, status.ColorBlue)
	c.closeConn()

	for {
		select {
		case <-c.quit:
			return ErrStopped
		default:
		}

		conn, err := c.dial()
		if err == nil {
			// Stop may have landed while the dial was in flight. Stop wins:
			// discard the fresh connection rather than reviving a stopped
			// client.
			select {
			case <-c.quit:
				conn.Close()
				return ErrStopped
			default:
			}
			c.conn = conn
			c.attempts.Store(0)
			c.state.Store(int32(StateConnected))
			c.indicator.ShowStatus(status.PhaseConnected, status.ColorGreen)
			c.logger.Info("Connected to collector", "address", c.addr)
			return nil
		}

		n := int(c.attempts.Add(1))
		c.logger.Warn("Failed to connect to collector", "address", c.addr, "attempt", n, "error", err)
		c.indicator.ShowStatus(status.PhaseRetry, status.ColorRed)

		if c.budget.Exhausted(n) {
			c.state.Store(int32(StateAborted))
			c.indicator.ShowStatus(status.PhaseAborted, status.ColorRed)
			c.logger.Error("Reconnect budget exhausted, giving up", "attempts", n)
			return ErrAborted
		}

		wait := c.budget.Delay(n)
		c.logger.Info("Waiting before next connection attempt", "wait", wait.String())
		if !c.sleep(wait) {
			return ErrStopped
		}
	}
}

// Stop requests a graceful shutdown. It is safe to call from any goroutine
// and interrupts an in-progress backoff sleep. Stop is intentional and
// distinct from the Aborted failure state.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.quit)
		c.state.Store(int32(StateStopped))
		c.indicator.ShowStatus(status.PhaseStopped, status.ColorBlue)
		c.logger.Info("Client stopped by request")
	})
}

// Close releases the connection. Call it from the goroutine that owns the
// client, after Stop.
func (c *Client) Close() error {
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// Run samples src every interval and sends each record until ctx is
// cancelled, Stop is called, or the client aborts. Dropped records are
// logged and skipped; only Aborted ends the loop with an error.
func (c *Client) Run(ctx context.Context, src sensor.Source, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sends := 0
	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return nil
		case <-c.quit:
			return nil
		case <-ticker.C:
		}

		rec := record.New(time.Now(), c.sourceID,
			src.ReadOrientation(), src.ReadAngularRate(), src.ReadLinearAcceleration())

		err := c.Send(rec)
		var sendErr *SendError
		switch {
		case err == nil:
			sends++
			// Periodic visual heartbeat while the link is healthy.
			if sends%10 == 0 {
				c.indicator.ShowStatus(status.PhaseConnected, status.ColorGreen)
			}
		case errors.Is(err, ErrStopped):
			return nil
		case errors.Is(err, ErrAborted):
			return ErrAborted
		case errors.As(err, &sendErr):
			c.logger.Warn("Record dropped", "error", err)
		default:
			c.logger.Warn("Send failed", "error", err)
		}
	}
}

func (c *Client) writeFrame(frame string) error {
	if _, err := c.conn.Write([]byte(frame)); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// closeConn discards the current connection. Close errors are logged, never
// propagated.
func (c *Client) closeConn() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("Error closing connection", "error", err)
	}
	c.conn = nil
}

// interruptibleSleep waits for d, returning false if Stop arrives first.
func (c *Client) interruptibleSleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.quit:
		return false
	}
}
