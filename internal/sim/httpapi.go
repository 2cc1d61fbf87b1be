package sim

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventpick/seatsync/pkg/types"
)

// Server is the in-memory dev stand-in for the ticketing backend. It
// exists so the client stack can be exercised end to end without the real
// platform; it is not that platform.
type Server struct {
	hub    *Hub
	secret string
	log    *zap.Logger

	mu       sync.Mutex
	events   []types.Event
	bookings map[string]types.BookingRecord
}

func NewServer(hub *Hub, secret string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		hub:      hub,
		secret:   secret,
		log:      log,
		bookings: make(map[string]types.BookingRecord),
	}
}

// AddEvent registers an event; a non-empty grid also gets a live room.
func (s *Server) AddEvent(ev types.Event, grid types.SeatMapResponse) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()

	if len(grid.Rows) > 0 {
		reply := make(chan *Room, 1)
		s.hub.Inbox() <- EnsureRoom{EventID: ev.ID, Grid: grid, Reply: reply}
		<-reply
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/auth/token", s.issueToken)
	r.Get("/events", s.listEvents)
	r.Get("/events/{id}", s.getEvent)
	r.Get("/events/{id}/seatmap", s.getSeatMap)
	r.Get("/events/{id}/live", WSHandler(s.hub, s.secret, s.log))

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(s.secret))
		r.Post("/bookings", s.createBooking)
		r.Get("/bookings", s.listBookings)
		r.Delete("/bookings/{id}", s.cancelBooking)
		r.Post("/bookings/{id}/payment", s.confirmPayment)
	})

	return r
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	token, err := IssueToken(s.secret, "demo-user", time.Hour)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) listEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	events := make([]types.Event, len(s.events))
	copy(events, s.events)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id {
			writeJSON(w, http.StatusOK, ev)
			return
		}
	}
	http.Error(w, "event not found", http.StatusNotFound)
}

func (s *Server) getSeatMap(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	room := s.room(id)
	if room == nil {
		http.Error(w, "no seat map for event", http.StatusNotFound)
		return
	}

	reply := make(chan View, 1)
	room.Inbox() <- GetState{Reply: reply}
	view := <-reply
	writeJSON(w, http.StatusOK, view.SeatMap)
}

func (s *Server) createBooking(w http.ResponseWriter, r *http.Request) {
	var req types.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if req.EventID == "" || len(req.Seats) == 0 {
		http.Error(w, "event id and seats are required", http.StatusBadRequest)
		return
	}

	room := s.room(req.EventID)
	if room == nil {
		http.Error(w, "event not found", http.StatusNotFound)
		return
	}

	seatIDs := make([]string, 0, len(req.Seats))
	for _, seat := range req.Seats {
		seatIDs = append(seatIDs, seat.SeatID)
	}

	reply := make(chan error, 1)
	room.Inbox() <- Book{SeatIDs: seatIDs, Reply: reply}
	if err := <-reply; err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	rec := types.BookingRecord{
		ID:           uuid.New().String(),
		EventID:      req.EventID,
		TicketNumber: "TKT-" + randID(8),
		Seats:        req.Seats,
		Total:        req.Total,
		Status:       "pending",
	}
	s.mu.Lock()
	s.bookings[rec.ID] = rec
	s.mu.Unlock()

	s.log.Info("booking created",
		zap.String("booking_id", rec.ID),
		zap.String("event_id", rec.EventID),
		zap.Int("seats", len(rec.Seats)),
	)
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) listBookings(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	recs := make([]types.BookingRecord, 0, len(s.bookings))
	for _, rec := range s.bookings {
		recs = append(recs, rec)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) cancelBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	rec, ok := s.bookings[id]
	if ok && rec.Status != "cancelled" {
		rec.Status = "cancelled"
		s.bookings[id] = rec
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}

	if room := s.room(rec.EventID); room != nil {
		seatIDs := make([]string, 0, len(rec.Seats))
		for _, seat := range rec.Seats {
			seatIDs = append(seatIDs, seat.SeatID)
		}
		reply := make(chan error, 1)
		room.Inbox() <- Release{SeatIDs: seatIDs, Reply: reply}
		<-reply
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) confirmPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.bookings[id]
	if !ok {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}
	if rec.Status != "pending" {
		http.Error(w, "booking is not pending", http.StatusConflict)
		return
	}
	rec.Status = "paid"
	s.bookings[id] = rec
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) room(eventID string) *Room {
	reply := make(chan *Room, 1)
	s.hub.Inbox() <- GetRoom{EventID: eventID, Reply: reply}
	return <-reply
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
