package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/eventpick/seatsync/internal/seatmap"
	"github.com/eventpick/seatsync/pkg/types"
)

var ErrAuthRequired = errors.New("auth credential required")
var ErrMalformedDelta = errors.New("malformed delta payload")

type State string

const (
	StateClosed     State = "closed"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
)

// Conn is the minimal surface the channel needs from a live connection.
// Read returns io.EOF on a clean server-side close; anything else is an
// unclean close.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer establishes a connection to the push endpoint. Abstracted so the
// state machine is testable without a live socket.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// Handler receives what the channel produces. OnDelta is called in arrival
// order with already-parsed updates; OnError is called at most once per
// session, after an unclean close, with the channel already back in Closed.
// The channel never retries on its own; reconnection is the caller's
// policy (see Reconnector).
type Handler struct {
	OnDelta func([]seatmap.StatusUpdate)
	OnError func(error)
}

// Channel manages the lifecycle of one push connection:
// Closed -> Connecting -> Open -> Closed. At most one live connection
// exists at a time; opening a new one tears down the prior one first, and
// teardown is idempotent no matter how many triggers fire.
type Channel struct {
	dialer Dialer
	log    *zap.Logger

	mu    sync.Mutex
	state State
	conn  Conn
	stop  context.CancelFunc
	gen   int // read loops from stale generations must not touch state
}

func New(dialer Dialer, log *zap.Logger) *Channel {
	if log == nil {
		log = zap.NewNop()
	}
	return &Channel{dialer: dialer, log: log, state: StateClosed}
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// BuildAddr derives the push endpoint from the backend base address. The
// bearer credential rides as a query parameter, the way the backend's
// handshake expects it.
func BuildAddr(base, eventID, token string) string {
	ws := base
	switch {
	case strings.HasPrefix(base, "https://"):
		ws = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		ws = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return fmt.Sprintf("%s/events/%s/live?token=%s",
		strings.TrimRight(ws, "/"), url.PathEscape(eventID), url.QueryEscape(token))
}

// Open connects to the push endpoint for one event. A missing credential is
// terminal for this attempt: ErrAuthRequired, state stays Closed. Any prior
// connection is closed first.
func (c *Channel) Open(ctx context.Context, base, eventID, token string, h Handler) error {
	if token == "" {
		return ErrAuthRequired
	}

	c.mu.Lock()
	c.teardownLocked()
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, BuildAddr(base, eventID, token))

	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		// Closed (or reopened) while the handshake was in flight.
		c.mu.Unlock()
		if err == nil {
			_ = conn.Close()
		}
		return nil
	}
	if err != nil {
		c.state = StateClosed
		c.mu.Unlock()
		return fmt.Errorf("dial push channel: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.stop = cancel
	c.state = StateOpen
	c.mu.Unlock()

	c.log.Info("push channel open", zap.String("event_id", eventID))
	go c.readLoop(readCtx, conn, gen, h)
	return nil
}

// Close tears the connection down unconditionally. Safe to call from any
// state and any number of times; concurrent triggers still issue exactly
// one close on the underlying connection.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

func (c *Channel) teardownLocked() {
	if c.state == StateClosed {
		return
	}
	c.state = StateClosing
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.gen++ // invalidate any in-flight handshake or read loop
	c.state = StateClosed
}

func (c *Channel) readLoop(ctx context.Context, conn Conn, gen int, h Handler) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			c.finish(conn, gen, err, h)
			return
		}

		updates, perr := parseDelta(data)
		if perr != nil {
			// One lost update, not a session-ending fault.
			c.log.Warn("dropping malformed delta", zap.Error(perr))
			continue
		}
		if len(updates) > 0 && h.OnDelta != nil {
			h.OnDelta(updates)
		}
	}
}

// finish transitions to Closed after the read loop ends. Only an unclean
// close from the current generation is surfaced; teardown-initiated and
// clean closes end quietly.
func (c *Channel) finish(conn Conn, gen int, err error, h Handler) {
	c.mu.Lock()
	current := c.gen == gen
	if current {
		c.conn = nil
		if c.stop != nil {
			c.stop()
			c.stop = nil
		}
		c.state = StateClosed
	}
	c.mu.Unlock()

	if !current {
		// Teardown already closed this connection.
		return
	}

	// The server side ended the session; still release our half.
	_ = conn.Close()
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		c.log.Info("push channel closed")
		return
	}
	c.log.Warn("push channel closed uncleanly", zap.Error(err))
	if h.OnError != nil {
		h.OnError(fmt.Errorf("push channel: %w", err))
	}
}

func parseDelta(data []byte) ([]seatmap.StatusUpdate, error) {
	var raw []types.SeatStatusUpdate
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDelta, err)
	}
	updates := make([]seatmap.StatusUpdate, 0, len(raw))
	for _, u := range raw {
		st, ok := seatmap.ParseStatus(u.Status)
		if !ok || u.SeatID == "" {
			return nil, fmt.Errorf("%w: seat %q status %q", ErrMalformedDelta, u.SeatID, u.Status)
		}
		updates = append(updates, seatmap.StatusUpdate{SeatID: u.SeatID, Status: st})
	}
	return updates, nil
}
