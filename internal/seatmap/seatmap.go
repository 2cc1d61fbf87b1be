package seatmap

import (
	"errors"

	"github.com/eventpick/seatsync/pkg/types"
)

var ErrDuplicateSeat = errors.New("duplicate seat id in seat map")

// Status is a seat's display status. The server only ever reports
// Available/Booked/Reserved; Selected is derived locally by overlaying the
// pending selection and never appears in wire payloads.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBooked    Status = "booked"
	StatusReserved  Status = "reserved"
	StatusSelected  Status = "selected"
)

// ParseStatus maps a wire status string to a Status. Unknown strings are
// rejected so a bad delta entry can be skipped instead of poisoning a seat.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case types.SeatAvailable:
		return StatusAvailable, true
	case types.SeatBooked:
		return StatusBooked, true
	case types.SeatReserved:
		return StatusReserved, true
	default:
		return "", false
	}
}

type Seat struct {
	ID     string
	Number string
	Type   string
	Price  int64
	Status Status // server-reported, never StatusSelected
}

type Row struct {
	ID    string
	Label string
	Seats []Seat
}

type SeatMap struct {
	EventID string
	Rows    []Row
}

// StatusUpdate is one entry of an incoming delta.
type StatusUpdate struct {
	SeatID string
	Status Status
}

// Store holds the server-reported grid for one picker session. It performs
// no I/O and is owned by a single session; deltas mutate server status in
// place and never touch selection state, which lives in the selection
// package.
type Store struct {
	grid   SeatMap
	loaded bool
}

func NewStore() *Store {
	return &Store{}
}

// Initialize replaces the grid wholesale. An empty map is a no-op so callers
// can distinguish "not yet loaded" (Loaded() == false) from a genuinely
// empty venue; duplicate seat ids reject the whole map.
func (s *Store) Initialize(m SeatMap) error {
	if len(m.Rows) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	for _, row := range m.Rows {
		for _, seat := range row.Seats {
			if seen[seat.ID] {
				return ErrDuplicateSeat
			}
			seen[seat.ID] = true
		}
	}
	s.grid = m
	s.loaded = true
	return nil
}

func (s *Store) Loaded() bool { return s.loaded }

func (s *Store) EventID() string { return s.grid.EventID }

// Rows exposes the grid for rendering and for the selection policy.
func (s *Store) Rows() []Row { return s.grid.Rows }

// ApplyDelta overwrites server statuses in place. Entries whose seat id
// matches nothing are ignored; the layout is immutable after Initialize, so
// a delta can never create or remove a seat. Returns how many entries
// actually landed, for logging.
func (s *Store) ApplyDelta(updates []StatusUpdate) int {
	applied := 0
	for _, u := range updates {
		// Naive scan; maps are tens to low hundreds of seats.
		for ri := range s.grid.Rows {
			row := &s.grid.Rows[ri]
			for si := range row.Seats {
				if row.Seats[si].ID == u.SeatID {
					row.Seats[si].Status = u.Status
					applied++
				}
			}
		}
	}
	return applied
}

// Seat looks up a seat by id across all rows.
func (s *Store) Seat(id string) (Seat, bool) {
	for _, row := range s.grid.Rows {
		for _, seat := range row.Seats {
			if seat.ID == id {
				return seat, true
			}
		}
	}
	return Seat{}, false
}

// AvailableCount counts seats the server currently reports as available,
// regardless of any local selection.
func (s *Store) AvailableCount() int {
	n := 0
	for _, row := range s.grid.Rows {
		for _, seat := range row.Seats {
			if seat.Status == StatusAvailable {
				n++
			}
		}
	}
	return n
}

// EffectiveStatus overlays the local pending selection on a seat's server
// status: Selected iff the seat is pending AND the server still says
// available; every other combination is the server status untouched.
func EffectiveStatus(seat Seat, pending []string) Status {
	if seat.Status != StatusAvailable {
		return seat.Status
	}
	for _, id := range pending {
		if id == seat.ID {
			return StatusSelected
		}
	}
	return seat.Status
}

// FromResponse converts the REST seat-map payload into the store's model.
func FromResponse(r types.SeatMapResponse) SeatMap {
	m := SeatMap{EventID: r.EventID}
	for _, row := range r.Rows {
		mr := Row{ID: row.ID, Label: row.Label}
		for _, seat := range row.Seats {
			st, ok := ParseStatus(seat.Status)
			if !ok {
				// Unknown status must not become sellable.
				st = StatusReserved
			}
			mr.Seats = append(mr.Seats, Seat{
				ID:     seat.ID,
				Number: seat.Number,
				Type:   seat.Type,
				Price:  seat.Price,
				Status: st,
			})
		}
		m.Rows = append(m.Rows, mr)
	}
	return m
}
