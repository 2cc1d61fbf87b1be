package sim

import (
	"context"
	"errors"
	"math/rand"

	"github.com/eventpick/seatsync/pkg/types"
)

var ErrSeatTaken = errors.New("seat already taken")
var ErrNoSuchSeat = errors.New("no such seat")

// Msg is a message into a room's inbox.
type Msg interface{ isRoomMsg() }

type Join struct {
	ClientID string
	Outbox   chan []types.SeatStatusUpdate // where this client receives deltas
}

func (Join) isRoomMsg() {}

type Leave struct{ ClientID string }

func (Leave) isRoomMsg() {}

// Book marks the given seats booked if every one of them is still
// available; on success the change is broadcast as a delta.
type Book struct {
	SeatIDs []string
	Reply   chan error
}

func (Book) isRoomMsg() {}

// Release returns booked seats to available (cancellation path).
type Release struct {
	SeatIDs []string
	Reply   chan error
}

func (Release) isRoomMsg() {}

// Churn flips one random seat between available and reserved, so demo
// clients see live movement.
type Churn struct{}

func (Churn) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

// View reflects room internals for tests without data races.
type View struct {
	NumClients int
	SeatMap    types.SeatMapResponse
}

// Room is the actor owning one event's seat grid. All mutation happens in
// its loop; subscribed clients get status deltas, and slow clients are
// dropped rather than blocking the room.
type Room struct {
	inbox   chan Msg
	grid    types.SeatMapResponse
	clients map[string]chan []types.SeatStatusUpdate
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRoom(parent context.Context, grid types.SeatMapResponse) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		inbox:   make(chan Msg, 64),
		grid:    grid,
		clients: make(map[string]chan []types.SeatStatusUpdate),
		ctx:     ctx,
		cancel:  cancel,
	}

	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.clients[msg.ClientID] = msg.Outbox
				// Send the full current state as one delta so a client
				// joining mid-session starts in sync.
				msg.Outbox <- r.fullDelta()

			case Leave:
				// Closing the outbox is what ends the client's writer;
				// a client already dropped by broadcast is gone from the
				// map, so there is no double close here.
				if ch, ok := r.clients[msg.ClientID]; ok {
					close(ch)
					delete(r.clients, msg.ClientID)
				}

			case Book:
				msg.Reply <- r.setStatus(msg.SeatIDs, types.SeatAvailable, types.SeatBooked)

			case Release:
				msg.Reply <- r.setStatus(msg.SeatIDs, types.SeatBooked, types.SeatAvailable)

			case Churn:
				if delta := r.churnOne(); delta != nil {
					r.broadcast(delta)
				}

			case GetState:
				msg.Reply <- View{NumClients: len(r.clients), SeatMap: r.snapshot()}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Room) broadcast(delta []types.SeatStatusUpdate) {
	for id, ch := range r.clients {
		select {
		case ch <- delta:
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(r.clients, id)
		}
	}
}

// setStatus moves every listed seat from `from` to `to`, atomically with
// respect to the room: if any seat is missing or not in `from`, nothing
// changes.
func (r *Room) setStatus(seatIDs []string, from, to string) error {
	locs := make([]*types.SeatResponse, 0, len(seatIDs))
	for _, id := range seatIDs {
		seat := r.findSeat(id)
		if seat == nil {
			return ErrNoSuchSeat
		}
		if seat.Status != from {
			return ErrSeatTaken
		}
		locs = append(locs, seat)
	}

	delta := make([]types.SeatStatusUpdate, 0, len(locs))
	for _, seat := range locs {
		seat.Status = to
		delta = append(delta, types.SeatStatusUpdate{SeatID: seat.ID, Status: to})
	}
	r.broadcast(delta)
	return nil
}

func (r *Room) findSeat(id string) *types.SeatResponse {
	for ri := range r.grid.Rows {
		row := &r.grid.Rows[ri]
		for si := range row.Seats {
			if row.Seats[si].ID == id {
				return &row.Seats[si]
			}
		}
	}
	return nil
}

func (r *Room) churnOne() []types.SeatStatusUpdate {
	var candidates []*types.SeatResponse
	for ri := range r.grid.Rows {
		row := &r.grid.Rows[ri]
		for si := range row.Seats {
			s := &row.Seats[si]
			if s.Status == types.SeatAvailable || s.Status == types.SeatReserved {
				candidates = append(candidates, s)
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	seat := candidates[rand.Intn(len(candidates))]
	if seat.Status == types.SeatAvailable {
		seat.Status = types.SeatReserved
	} else {
		seat.Status = types.SeatAvailable
	}
	return []types.SeatStatusUpdate{{SeatID: seat.ID, Status: seat.Status}}
}

// snapshot deep-copies the grid. Replies cross the actor boundary, so
// they must not share backing arrays with seats the loop keeps mutating.
func (r *Room) snapshot() types.SeatMapResponse {
	out := types.SeatMapResponse{
		EventID: r.grid.EventID,
		Rows:    make([]types.RowResponse, len(r.grid.Rows)),
	}
	for i, row := range r.grid.Rows {
		seats := make([]types.SeatResponse, len(row.Seats))
		copy(seats, row.Seats)
		out.Rows[i] = row
		out.Rows[i].Seats = seats
	}
	return out
}

func (r *Room) fullDelta() []types.SeatStatusUpdate {
	var delta []types.SeatStatusUpdate
	for _, row := range r.grid.Rows {
		for _, seat := range row.Seats {
			delta = append(delta, types.SeatStatusUpdate{SeatID: seat.ID, Status: seat.Status})
		}
	}
	return delta
}
