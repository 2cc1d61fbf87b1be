package sim

import (
	"fmt"

	"github.com/eventpick/seatsync/pkg/types"
)

// MakeSeatMap builds a demo grid: `rows` lettered rows of `perRow` seats.
// The first two rows are VIP at a higher price.
func MakeSeatMap(eventID string, rows, perRow int) types.SeatMapResponse {
	m := types.SeatMapResponse{EventID: eventID}
	for r := 0; r < rows; r++ {
		label := string(rune('A' + r))
		row := types.RowResponse{ID: "row-" + label, Label: label}

		seatType := "standard"
		price := int64(4500)
		if r < 2 {
			seatType = "vip"
			price = 9000
		}

		for n := 1; n <= perRow; n++ {
			number := fmt.Sprintf("%s%d", label, n)
			row.Seats = append(row.Seats, types.SeatResponse{
				ID:     number,
				Number: number,
				Type:   seatType,
				Price:  price,
				Status: types.SeatAvailable,
			})
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

// DemoEvents seeds a small catalogue; one event deliberately has no seat
// map so clients can exercise the not-configured path.
func DemoEvents(srv *Server) {
	srv.AddEvent(types.Event{
		ID: "ev-rock-night", Name: "Rock Night", Venue: "City Arena",
		StartsAt: "2026-09-12T20:00:00Z", HasSeats: true,
	}, MakeSeatMap("ev-rock-night", 6, 10))

	srv.AddEvent(types.Event{
		ID: "ev-jazz-eve", Name: "Jazz Evening", Venue: "Blue Hall",
		StartsAt: "2026-09-20T19:30:00Z", HasSeats: true,
	}, MakeSeatMap("ev-jazz-eve", 4, 8))

	srv.AddEvent(types.Event{
		ID: "ev-open-air", Name: "Open Air Festival", Venue: "River Park",
		StartsAt: "2026-10-03T15:00:00Z", HasSeats: false,
	}, types.SeatMapResponse{})
}
