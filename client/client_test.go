package client

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/motionrelay/record"
	"github.com/INLOpen/motionrelay/status"
)

// scriptConn is a net.Conn whose writes can be made to fail.
type scriptConn struct {
	mu       sync.Mutex
	wrote    bytes.Buffer
	writeErr error
	closed   bool
}

func (c *scriptConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	return c.wrote.Write(p)
}

func (c *scriptConn) Read([]byte) (int, error) { return 0, io.EOF }
func (c *scriptConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
func (c *scriptConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (c *scriptConn) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (c *scriptConn) SetDeadline(time.Time) error        { return nil }
func (c *scriptConn) SetReadDeadline(time.Time) error    { return nil }
func (c *scriptConn) SetWriteDeadline(time.Time) error   { return nil }
func (c *scriptConn) written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wrote.String()
}

// recordingIndicator captures every phase transition.
type recordingIndicator struct {
	mu     sync.Mutex
	phases []status.Phase
}

func (r *recordingIndicator) ShowStatus(phase status.Phase, _ status.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, phase)
}

func (r *recordingIndicator) seen() []status.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]status.Phase(nil), r.phases...)
}

func newTestClient(t *testing.T, budget RetryBudget, ind status.Indicator) *Client {
	t.Helper()
	c, err := New(Options{
		Address:   "127.0.0.1:0",
		SourceID:  "rpi01",
		Budget:    budget,
		Indicator: ind,
	})
	require.NoError(t, err)
	return c
}

func testRecord() record.Record {
	return record.New(time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC), "rpi01",
		record.Orientation{Roll: 1, Pitch: 2, Yaw: 3},
		record.Vec3{X: 0.1, Y: 0.2, Z: 0.3},
		record.Vec3{X: 0.01, Y: 0.02, Z: 0.03})
}

func TestNew_RequiresAddress(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestReconnect_ResetsAttemptCounterOnSuccess(t *testing.T) {
	c := newTestClient(t, Bounded(10), nil)

	dials := 0
	c.dial = func() (net.Conn, error) {
		dials++
		if dials < 4 {
			return nil, errors.New("connection refused")
		}
		return &scriptConn{}, nil
	}
	var waits []time.Duration
	c.sleep = func(d time.Duration) bool {
		waits = append(waits, d)
		return true
	}

	require.NoError(t, c.Reconnect())
	assert.Equal(t, 0, c.Attempts(), "counter must reset to zero on success")
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, waits)
}

func TestReconnect_AbortsAfterExactlyNAttempts(t *testing.T) {
	ind := &recordingIndicator{}
	c := newTestClient(t, Bounded(2), ind)

	dials := 0
	c.dial = func() (net.Conn, error) {
		dials++
		return nil, errors.New("connection refused")
	}
	var waits []time.Duration
	c.sleep = func(d time.Duration) bool {
		waits = append(waits, d)
		return true
	}

	err := c.Reconnect()
	require.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, 2, dials, "no third attempt after the budget is exhausted")
	assert.Equal(t, []time.Duration{1 * time.Second}, waits, "exactly one backoff wait between the two attempts")
	assert.Equal(t, StateAborted, c.State())

	phases := ind.seen()
	assert.Equal(t, []status.Phase{
		status.PhaseConnecting,
		status.PhaseRetry,
		status.PhaseRetry,
		status.PhaseAborted,
	}, phases)

	// A terminal client refuses further sends.
	assert.ErrorIs(t, c.Send(testRecord()), ErrAborted)
}

func TestSend_WritesOneFrame(t *testing.T) {
	c := newTestClient(t, Bounded(3), nil)
	conn := &scriptConn{}
	c.dial = func() (net.Conn, error) { return conn, nil }

	rec := testRecord()
	require.NoError(t, c.Send(rec))
	assert.Equal(t, rec.Encode()+"\n", conn.written())
	assert.Equal(t, StateConnected, c.State())
}

func TestSend_RetriesOnceAfterReconnect(t *testing.T) {
	c := newTestClient(t, Bounded(3), nil)

	broken := &scriptConn{writeErr: errors.New("broken pipe")}
	healthy := &scriptConn{}
	conns := []net.Conn{broken, healthy}
	c.dial = func() (net.Conn, error) {
		conn := conns[0]
		conns = conns[1:]
		return conn, nil
	}
	c.sleep = func(time.Duration) bool { return true }

	rec := testRecord()
	require.NoError(t, c.Send(rec))
	assert.True(t, broken.closed, "failed connection must be closed before redialing")
	assert.Equal(t, rec.Encode()+"\n", healthy.written())
}

func TestSend_DropsRecordWhenRetryFails(t *testing.T) {
	c := newTestClient(t, Bounded(3), nil)

	first := &scriptConn{writeErr: errors.New("broken pipe")}
	second := &scriptConn{writeErr: errors.New("still broken")}
	conns := []net.Conn{first, second}
	c.dial = func() (net.Conn, error) {
		conn := conns[0]
		conns = conns[1:]
		return conn, nil
	}
	c.sleep = func(time.Duration) bool { return true }

	err := c.Send(testRecord())
	require.Error(t, err)

	var sendErr *SendError
	require.True(t, errors.As(err, &sendErr), "a dropped record is a non-fatal SendError")
	assert.Equal(t, StateDisconnected, c.State())

	// The client recovers on the next send.
	recovered := &scriptConn{}
	c.dial = func() (net.Conn, error) { return recovered, nil }
	require.NoError(t, c.Send(testRecord()))
	assert.NotEmpty(t, recovered.written())
}

func TestStop_InterruptsBackoffSleep(t *testing.T) {
	c := newTestClient(t, Bounded(10), nil)
	c.dial = func() (net.Conn, error) { return nil, errors.New("connection refused") }

	errCh := make(chan error, 1)
	go func() { errCh <- c.Reconnect() }()

	time.Sleep(50 * time.Millisecond) // let the loop reach its first backoff sleep
	c.Stop()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("Reconnect did not return after Stop")
	}
	assert.Equal(t, StateStopped, c.State())
	assert.ErrorIs(t, c.Send(testRecord()), ErrStopped, "stopped is graceful but final")
}

func TestStop_DuringDialDiscardsConnection(t *testing.T) {
	c := newTestClient(t, Bounded(10), nil)

	conn := &scriptConn{}
	dialing := make(chan struct{})
	release := make(chan struct{})
	c.dial = func() (net.Conn, error) {
		close(dialing)
		<-release
		return conn, nil
	}

	errCh := make(chan error, 1)
	go func() { errCh <- c.Reconnect() }()

	<-dialing
	c.Stop()
	close(release)

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrStopped, "a stopped client must not report a successful connect")
	case <-time.After(2 * time.Second):
		t.Fatal("Reconnect did not return after Stop")
	}
	assert.Equal(t, StateStopped, c.State())
	assert.True(t, conn.closed, "the late-arriving connection must be closed, not kept")
	assert.ErrorIs(t, c.Send(testRecord()), ErrStopped, "no sends after stop")
}

func TestStop_IsDistinctFromAborted(t *testing.T) {
	c := newTestClient(t, Bounded(1), nil)
	c.dial = func() (net.Conn, error) { return nil, errors.New("connection refused") }
	c.sleep = func(time.Duration) bool { return true }

	require.ErrorIs(t, c.Reconnect(), ErrAborted)
	assert.Equal(t, StateAborted, c.State())

	c.Stop()
	assert.Equal(t, StateStopped, c.State(), "operator stop overrides the failure state")
}

func TestSend_ConnectsWhenDisconnected(t *testing.T) {
	c := newTestClient(t, Bounded(3), nil)
	conn := &scriptConn{}
	dials := 0
	c.dial = func() (net.Conn, error) {
		dials++
		return conn, nil
	}

	require.NoError(t, c.Send(testRecord()))
	require.NoError(t, c.Send(testRecord()))
	assert.Equal(t, 1, dials, "an established link is reused across sends")
}
