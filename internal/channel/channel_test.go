package channel

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventpick/seatsync/internal/seatmap"
)

type readResult struct {
	data []byte
	err  error
}

// fakeConn scripts what the transport delivers; closing the frames channel
// models a clean server-side close.
type fakeConn struct {
	frames chan readResult

	mu     sync.Mutex
	closes int
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan readResult, 16)}
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r, ok := <-f.frames:
		if !ok {
			return nil, io.EOF
		}
		return r.data, r.err
	}
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeConn) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	conn := d.conns[d.dials%len(d.conns)]
	d.dials++
	return conn, nil
}

// recvDeltas collects one OnDelta callback with a timeout so tests never hang.
func recvDeltas(t *testing.T, ch <-chan []seatmap.StatusUpdate, within time.Duration) []seatmap.StatusUpdate {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(within):
		t.Fatalf("timed out waiting for delta")
		return nil // unreachable
	}
}

func recvNoDelta(t *testing.T, ch <-chan []seatmap.StatusUpdate, within time.Duration) {
	t.Helper()
	select {
	case d := <-ch:
		t.Fatalf("expected no delta within %v, got %+v", within, d)
	case <-time.After(within):
	}
}

func TestOpen_MissingCredentialIsTerminal(t *testing.T) {
	c := New(&fakeDialer{conns: []*fakeConn{newFakeConn()}}, nil)

	err := c.Open(context.Background(), "http://api.local", "ev-1", "", Handler{})
	require.ErrorIs(t, err, ErrAuthRequired)
	assert.Equal(t, StateClosed, c.State())
}

func TestOpen_DialFailure(t *testing.T) {
	c := New(&fakeDialer{err: errors.New("refused")}, nil)

	err := c.Open(context.Background(), "http://api.local", "ev-1", "tok", Handler{})
	require.Error(t, err)
	assert.Equal(t, StateClosed, c.State())
}

func TestOpen_DeliversDeltasInArrivalOrder(t *testing.T) {
	conn := newFakeConn()
	c := New(&fakeDialer{conns: []*fakeConn{conn}}, nil)
	defer c.Close()

	got := make(chan []seatmap.StatusUpdate, 4)
	require.NoError(t, c.Open(context.Background(), "http://api.local", "ev-1", "tok", Handler{
		OnDelta: func(u []seatmap.StatusUpdate) { got <- u },
	}))
	assert.Equal(t, StateOpen, c.State())

	conn.frames <- readResult{data: []byte(`[{"seat_number":"A1","status":"booked"}]`)}
	conn.frames <- readResult{data: []byte(`[{"seat_number":"A1","status":"available"},{"seat_number":"B2","status":"reserved"}]`)}

	first := recvDeltas(t, got, time.Second)
	require.Len(t, first, 1)
	assert.Equal(t, seatmap.StatusUpdate{SeatID: "A1", Status: seatmap.StatusBooked}, first[0])

	second := recvDeltas(t, got, time.Second)
	require.Len(t, second, 2)
	assert.Equal(t, "A1", second[0].SeatID)
	assert.Equal(t, seatmap.StatusReserved, second[1].Status)
}

func TestMalformedPayloadIsDroppedNotFatal(t *testing.T) {
	conn := newFakeConn()
	c := New(&fakeDialer{conns: []*fakeConn{conn}}, nil)
	defer c.Close()

	got := make(chan []seatmap.StatusUpdate, 4)
	require.NoError(t, c.Open(context.Background(), "http://api.local", "ev-1", "tok", Handler{
		OnDelta: func(u []seatmap.StatusUpdate) { got <- u },
	}))

	conn.frames <- readResult{data: []byte(`{{{not json`)}
	conn.frames <- readResult{data: []byte(`[{"seat_number":"A1","status":"selected"}]`)} // server never sends local status
	conn.frames <- readResult{data: []byte(`[{"seat_number":"A1","status":"booked"}]`)}

	delta := recvDeltas(t, got, time.Second)
	require.Len(t, delta, 1)
	assert.Equal(t, "A1", delta[0].SeatID)
	assert.Equal(t, StateOpen, c.State(), "channel survives malformed payloads")
}

func TestUncleanClose_SurfacesErrorOnceAndCloses(t *testing.T) {
	conn := newFakeConn()
	c := New(&fakeDialer{conns: []*fakeConn{conn}}, nil)

	errs := make(chan error, 2)
	require.NoError(t, c.Open(context.Background(), "http://api.local", "ev-1", "tok", Handler{
		OnError: func(err error) { errs <- err },
	}))

	conn.frames <- readResult{err: errors.New("connection reset")}

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "connection reset")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel error")
	}

	assert.Eventually(t, func() bool { return c.State() == StateClosed },
		time.Second, 10*time.Millisecond)

	select {
	case err := <-errs:
		t.Fatalf("OnError fired twice: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	// The failed connection is released, once.
	assert.Equal(t, 1, conn.closeCount())
}

func TestCleanClose_EndsQuietly(t *testing.T) {
	conn := newFakeConn()
	c := New(&fakeDialer{conns: []*fakeConn{conn}}, nil)

	errs := make(chan error, 1)
	require.NoError(t, c.Open(context.Background(), "http://api.local", "ev-1", "tok", Handler{
		OnError: func(err error) { errs <- err },
	}))

	close(conn.frames) // server says goodbye

	assert.Eventually(t, func() bool { return c.State() == StateClosed },
		time.Second, 10*time.Millisecond)
	select {
	case err := <-errs:
		t.Fatalf("clean close must not surface an error, got %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 1, conn.closeCount())
}

func TestClose_IsIdempotent(t *testing.T) {
	conn := newFakeConn()
	c := New(&fakeDialer{conns: []*fakeConn{conn}}, nil)

	require.NoError(t, c.Open(context.Background(), "http://api.local", "ev-1", "tok", Handler{}))

	c.Close()
	c.Close()
	c.Close()

	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 1, conn.closeCount(), "exactly one close on the connection")
}

func TestReopen_ClosesPriorConnectionFirst(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	c := New(&fakeDialer{conns: []*fakeConn{conn1, conn2}}, nil)
	defer c.Close()

	require.NoError(t, c.Open(context.Background(), "http://api.local", "ev-1", "tok", Handler{}))
	require.NoError(t, c.Open(context.Background(), "http://api.local", "ev-2", "tok", Handler{}))

	assert.Equal(t, StateOpen, c.State())
	assert.Equal(t, 1, conn1.closeCount(), "prior connection must be torn down")
	assert.Equal(t, 0, conn2.closeCount())
}

func TestTeardownLeavesNoErrorCallback(t *testing.T) {
	conn := newFakeConn()
	c := New(&fakeDialer{conns: []*fakeConn{conn}}, nil)

	got := make(chan []seatmap.StatusUpdate, 1)
	errs := make(chan error, 1)
	require.NoError(t, c.Open(context.Background(), "http://api.local", "ev-1", "tok", Handler{
		OnDelta: func(u []seatmap.StatusUpdate) { got <- u },
		OnError: func(err error) { errs <- err },
	}))

	c.Close()

	recvNoDelta(t, got, 100*time.Millisecond)
	select {
	case err := <-errs:
		t.Fatalf("our own teardown must not surface an error, got %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBuildAddr(t *testing.T) {
	assert.Equal(t,
		"ws://api.local/events/ev-1/live?token=tok",
		BuildAddr("http://api.local", "ev-1", "tok"))
	assert.Equal(t,
		"wss://api.local/events/ev-1/live?token=tok",
		BuildAddr("https://api.local/", "ev-1", "tok"))
}
