package selection

import (
	"errors"

	"github.com/eventpick/seatsync/internal/seatmap"
)

var ErrUnknownSeat = errors.New("unknown seat")
var ErrSeatUnavailable = errors.New("seat is not available")
var ErrSelectionLimit = errors.New("selection limit reached")
var ErrEmptySelection = errors.New("no seats selected")

// DefaultMaxSeats bounds how many seats one booking may hold.
const DefaultMaxSeats = 4

// Grid is the read surface the policy needs from the seat-map store.
type Grid interface {
	Seat(id string) (seatmap.Seat, bool)
}

// Pending is the ordered set of seat ids the user has tentatively chosen.
// Insertion order is preserved so summaries render deterministically.
type Pending []string

func (p Pending) Contains(id string) bool {
	for _, s := range p {
		if s == id {
			return true
		}
	}
	return false
}

// Toggle adds or removes a seat from the pending selection. It is pure: the
// input slice is never mutated and on failure it is returned unchanged.
//
// Deselection always succeeds, even if the seat has since been reported
// booked. Selection requires the seat to exist, be server-available, and
// the pending set to be under maxSeats. The two failure modes are distinct
// so the UI never conflates "taken" with "you have too many".
func Toggle(grid Grid, seatID string, pending Pending, maxSeats int) (Pending, error) {
	seat, ok := grid.Seat(seatID)
	if !ok {
		return pending, ErrUnknownSeat
	}

	if pending.Contains(seatID) {
		out := make(Pending, 0, len(pending)-1)
		for _, id := range pending {
			if id != seatID {
				out = append(out, id)
			}
		}
		return out, nil
	}

	if seat.Status != seatmap.StatusAvailable {
		return pending, ErrSeatUnavailable
	}
	if len(pending) >= maxSeats {
		return pending, ErrSelectionLimit
	}

	out := make(Pending, 0, len(pending)+1)
	out = append(out, pending...)
	out = append(out, seatID)
	return out, nil
}

// Confirm finalizes the pending selection. The returned slice is the
// core's output boundary; handing it to booking/payment is the caller's
// business.
func Confirm(pending Pending) (Pending, error) {
	if len(pending) == 0 {
		return nil, ErrEmptySelection
	}
	out := make(Pending, len(pending))
	copy(out, pending)
	return out, nil
}

// Revalidate re-checks every pending seat against current server status.
// A seat another user won while it sat in our pending set fails here with
// ErrSeatUnavailable instead of slipping into a double booking at submit
// time. Callers must run this before handing a confirmed selection to the
// booking flow.
func Revalidate(grid Grid, pending Pending) error {
	for _, id := range pending {
		seat, ok := grid.Seat(id)
		if !ok {
			return ErrUnknownSeat
		}
		if seat.Status != seatmap.StatusAvailable {
			return ErrSeatUnavailable
		}
	}
	return nil
}
