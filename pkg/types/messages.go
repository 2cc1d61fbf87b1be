package types

// Wire contract shared by the client packages and the dev simulator.
//
// Push channel (server -> client only):
//   a text frame is a JSON array of SeatStatusUpdate. The backend keys
//   deltas by seat number, which doubles as the seat's unique identifier
//   within one event's map.
//
// REST:
//   GET    /events                -> []Event
//   GET    /events/{id}           -> Event
//   GET    /events/{id}/seatmap   -> SeatMapResponse (404 if none configured)
//   POST   /bookings              -> BookingRecord
//   GET    /bookings              -> []BookingRecord
//   DELETE /bookings/{id}         -> 204
//   POST   /bookings/{id}/payment -> BookingRecord (status paid)

const (
	SeatAvailable = "available"
	SeatBooked    = "booked"
	SeatReserved  = "reserved"
)

// SeatStatusUpdate is one entry of a push-channel delta frame.
type SeatStatusUpdate struct {
	SeatID string `json:"seat_number"`
	Status string `json:"status"`
}

type Event struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Venue    string `json:"venue"`
	StartsAt string `json:"starts_at"`
	HasSeats bool   `json:"has_seats"`
}

type SeatResponse struct {
	ID     string `json:"id"`
	Number string `json:"number"`
	Type   string `json:"type,omitempty"`
	Price  int64  `json:"price"` // minor currency units
	Status string `json:"status"`
}

type RowResponse struct {
	ID    string         `json:"id"`
	Label string         `json:"label"`
	Seats []SeatResponse `json:"seats"`
}

type SeatMapResponse struct {
	EventID string        `json:"event_id"`
	Rows    []RowResponse `json:"rows"`
}

// BookingSeat is one line item of a booking submission.
type BookingSeat struct {
	SeatID     string `json:"seatId"`
	SeatNumber string `json:"seatNumber"`
	Type       string `json:"type,omitempty"`
	Price      int64  `json:"price"`
}

type BookingRequest struct {
	EventID string        `json:"event_id"`
	Seats   []BookingSeat `json:"seats"`
	Total   int64         `json:"total"`
}

type BookingRecord struct {
	ID           string        `json:"id"`
	EventID      string        `json:"event_id"`
	TicketNumber string        `json:"ticket_number"`
	Seats        []BookingSeat `json:"seats"`
	Total        int64         `json:"total"`
	Status       string        `json:"status"` // pending | paid | cancelled
}

type PaymentRequest struct {
	Method string `json:"method"`
}
