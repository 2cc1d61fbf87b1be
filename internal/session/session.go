package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eventpick/seatsync/internal/backend"
	"github.com/eventpick/seatsync/internal/channel"
	"github.com/eventpick/seatsync/internal/seatmap"
	"github.com/eventpick/seatsync/internal/selection"
	"github.com/eventpick/seatsync/pkg/types"
)

// Callbacks is what the surrounding screen hears from a picker session.
type Callbacks struct {
	// OnSeatsSelected fires exactly once per confirm with the finalized,
	// non-empty, revalidated selection.
	OnSeatsSelected func(seats []seatmap.Seat)
	// OnClose fires when the picker is dismissed without confirming.
	OnClose func()
	// OnChannelError reports a lost or refused push channel. Non-fatal:
	// the last-known seat statuses stay displayed and selection keeps
	// working; only real-time freshness is gone.
	OnChannelError func(err error)
}

// Picker owns everything for one open seat picker: the seat-map store, the
// pending selection, and the push channel. All of it is created on Open and
// discarded on Close; nothing is shared across sessions.
type Picker struct {
	backend  *backend.Client
	ch       *channel.Channel
	log      *zap.Logger
	maxSeats int
	cb       Callbacks

	mu        sync.Mutex
	store     *seatmap.Store
	pending   selection.Pending
	eventID   string
	opened    bool
	confirmed bool
}

func New(bc *backend.Client, dialer channel.Dialer, log *zap.Logger, cb Callbacks) *Picker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Picker{
		backend:  bc,
		ch:       channel.New(dialer, log),
		log:      log,
		maxSeats: selection.DefaultMaxSeats,
		cb:       cb,
		store:    seatmap.NewStore(),
	}
}

// SetMaxSeats overrides the selection bound. Must be called before Open.
func (p *Picker) SetMaxSeats(n int) {
	if n > 0 {
		p.maxSeats = n
	}
}

// Open fetches the seat map and connects the push channel. A fetch failure
// is fatal to opening the picker; the caller surfaces it with a retry
// affordance. A channel failure (including a missing credential) is not:
// it is reported through OnChannelError and the picker opens with the
// fetched statuses frozen.
func (p *Picker) Open(ctx context.Context, eventID string) error {
	resp, err := p.backend.FetchSeatMap(ctx, eventID)
	if err != nil {
		return fmt.Errorf("open picker: %w", err)
	}

	store := seatmap.NewStore()
	if err := store.Initialize(seatmap.FromResponse(resp)); err != nil {
		// Nothing opened; Close must stay a no-op after this.
		return fmt.Errorf("open picker: %w", err)
	}

	p.mu.Lock()
	p.store = store
	p.pending = nil
	p.eventID = eventID
	p.opened = true
	p.confirmed = false
	p.mu.Unlock()

	p.connect(ctx, eventID)
	return nil
}

func (p *Picker) connect(ctx context.Context, eventID string) {
	err := p.ch.Open(ctx, p.backend.BaseURL(), eventID, p.backend.Token(), channel.Handler{
		OnDelta: p.applyDelta,
		OnError: func(err error) {
			if p.cb.OnChannelError != nil {
				p.cb.OnChannelError(err)
			}
		},
	})
	if err != nil {
		// Picker stays usable without freshness.
		p.log.Warn("picker opened without live updates",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		if p.cb.OnChannelError != nil {
			p.cb.OnChannelError(err)
		}
	}
}

// Reconnect reopens the push channel for the current event, for callers
// that pair it with a channel.Reconnector after OnChannelError.
func (p *Picker) Reconnect(ctx context.Context) error {
	p.mu.Lock()
	if !p.opened {
		p.mu.Unlock()
		return fmt.Errorf("picker is not open")
	}
	eventID := p.eventID
	p.mu.Unlock()
	return p.ch.Open(ctx, p.backend.BaseURL(), eventID, p.backend.Token(), channel.Handler{
		OnDelta: p.applyDelta,
		OnError: func(err error) {
			if p.cb.OnChannelError != nil {
				p.cb.OnChannelError(err)
			}
		},
	})
}

func (p *Picker) applyDelta(updates []seatmap.StatusUpdate) {
	p.mu.Lock()
	applied := p.store.ApplyDelta(updates)
	p.mu.Unlock()
	if applied < len(updates) {
		p.log.Debug("delta had unknown seats",
			zap.Int("received", len(updates)),
			zap.Int("applied", applied),
		)
	}
}

// EventChanged tears the session down and reopens it for a new event. The
// old channel is closed before anything else happens, so at most one live
// channel ever exists.
func (p *Picker) EventChanged(ctx context.Context, eventID string) error {
	p.ch.Close()
	return p.Open(ctx, eventID)
}

// Toggle adds or removes a seat from the pending selection. Rejections come
// back as the selection package's sentinel errors; SeatUnavailable and
// SelectionLimit are distinct and must stay that way in user messaging.
func (p *Picker) Toggle(seatID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, err := selection.Toggle(p.store, seatID, p.pending, p.maxSeats)
	if err != nil {
		return err
	}
	p.pending = next
	return nil
}

// Pending returns the current pending seat ids in insertion order.
func (p *Picker) Pending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.pending))
	copy(out, p.pending)
	return out
}

// Confirm finalizes the selection. Every pending seat is revalidated
// against current server status first, so a seat lost to another user
// since it was selected fails here instead of double-booking at submit
// time. On success OnSeatsSelected fires once and the pending set clears.
func (p *Picker) Confirm() ([]seatmap.Seat, error) {
	p.mu.Lock()
	final, err := selection.Confirm(p.pending)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if err := selection.Revalidate(p.store, final); err != nil {
		p.mu.Unlock()
		return nil, err
	}

	seats := make([]seatmap.Seat, 0, len(final))
	for _, id := range final {
		seat, _ := p.store.Seat(id)
		seats = append(seats, seat)
	}
	p.pending = nil
	p.confirmed = true
	p.mu.Unlock()

	if p.cb.OnSeatsSelected != nil {
		p.cb.OnSeatsSelected(seats)
	}
	return seats, nil
}

// Close discards the session: channel down, store and pending gone.
// Idempotent. OnClose fires only if the picker was open and never
// confirmed.
func (p *Picker) Close() {
	p.ch.Close()

	p.mu.Lock()
	wasOpen := p.opened
	confirmed := p.confirmed
	p.opened = false
	p.pending = nil
	p.store = seatmap.NewStore()
	p.mu.Unlock()

	if wasOpen && !confirmed && p.cb.OnClose != nil {
		p.cb.OnClose()
	}
}

// Rows returns the grid with effective statuses overlaid, ready to render.
func (p *Picker) Rows() []seatmap.Row {
	p.mu.Lock()
	defer p.mu.Unlock()
	rows := p.store.Rows()
	out := make([]seatmap.Row, len(rows))
	for i, row := range rows {
		or := seatmap.Row{ID: row.ID, Label: row.Label, Seats: make([]seatmap.Seat, len(row.Seats))}
		for j, seat := range row.Seats {
			seat.Status = seatmap.EffectiveStatus(seat, p.pending)
			or.Seats[j] = seat
		}
		out[i] = or
	}
	return out
}

// AvailableCount counts server-available seats, ignoring local selection.
func (p *Picker) AvailableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.AvailableCount()
}

// ChannelState exposes the push channel's lifecycle state.
func (p *Picker) ChannelState() channel.State {
	return p.ch.State()
}

// BookingRequest shapes a confirmed selection for SubmitBooking.
func BookingRequest(eventID string, seats []seatmap.Seat) types.BookingRequest {
	req := types.BookingRequest{EventID: eventID}
	for _, s := range seats {
		req.Seats = append(req.Seats, types.BookingSeat{
			SeatID:     s.ID,
			SeatNumber: s.Number,
			Type:       s.Type,
			Price:      s.Price,
		})
		req.Total += s.Price
	}
	return req
}
