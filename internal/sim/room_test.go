package sim

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/eventpick/seatsync/pkg/types"
)

// helper: receive one delta with a timeout so tests never hang
func recvDelta(t *testing.T, ch <-chan []types.SeatStatusUpdate, within time.Duration) []types.SeatStatusUpdate {
	t.Helper()
	select {
	case d, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return d
	case <-time.After(within):
		t.Fatalf("timed out waiting for delta")
		return nil // unreachable
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func TestRoom_JoinSendsFullState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, MakeSeatMap("ev-1", 2, 3))

	out := make(chan []types.SeatStatusUpdate, 2)
	r.Inbox() <- Join{ClientID: "c1", Outbox: out}

	first := recvDelta(t, out, 100*time.Millisecond)
	if len(first) != 6 {
		t.Fatalf("join should deliver every seat once, got %d entries", len(first))
	}
	for _, u := range first {
		if u.Status != types.SeatAvailable {
			t.Fatalf("seeded grid should be all available, got %+v", u)
		}
	}

	r.Inbox() <- Shutdown{}
}

func TestRoom_BookBroadcastsDelta(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, MakeSeatMap("ev-1", 1, 4))

	out := make(chan []types.SeatStatusUpdate, 4)
	r.Inbox() <- Join{ClientID: "c1", Outbox: out}
	_ = recvDelta(t, out, 100*time.Millisecond) // drain join state

	reply := make(chan error, 1)
	r.Inbox() <- Book{SeatIDs: []string{"A1", "A2"}, Reply: reply}
	if err := <-reply; err != nil {
		t.Fatalf("book failed: %v", err)
	}

	delta := recvDelta(t, out, 100*time.Millisecond)
	if len(delta) != 2 {
		t.Fatalf("want 2 updates, got %+v", delta)
	}
	for _, u := range delta {
		if u.Status != types.SeatBooked {
			t.Fatalf("want booked, got %+v", u)
		}
	}
}

func TestRoom_BookTakenSeatChangesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, MakeSeatMap("ev-1", 1, 4))

	reply := make(chan error, 1)
	r.Inbox() <- Book{SeatIDs: []string{"A1"}, Reply: reply}
	if err := <-reply; err != nil {
		t.Fatalf("first book failed: %v", err)
	}

	// Second booking includes one taken seat; the whole request must fail
	// and the untouched seat must stay available.
	r.Inbox() <- Book{SeatIDs: []string{"A2", "A1"}, Reply: reply}
	if err := <-reply; err == nil {
		t.Fatalf("expected ErrSeatTaken")
	}

	stateReply := make(chan View, 1)
	r.Inbox() <- GetState{Reply: stateReply}
	view := recvView(t, stateReply, 100*time.Millisecond)

	for _, seat := range view.SeatMap.Rows[0].Seats {
		switch seat.ID {
		case "A1":
			if seat.Status != types.SeatBooked {
				t.Fatalf("A1 should stay booked, got %s", seat.Status)
			}
		case "A2":
			if seat.Status != types.SeatAvailable {
				t.Fatalf("failed booking must not touch A2, got %s", seat.Status)
			}
		}
	}
}

func TestRoom_ReleaseReturnsSeats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, MakeSeatMap("ev-1", 1, 2))

	reply := make(chan error, 1)
	r.Inbox() <- Book{SeatIDs: []string{"A1"}, Reply: reply}
	if err := <-reply; err != nil {
		t.Fatalf("book failed: %v", err)
	}
	r.Inbox() <- Release{SeatIDs: []string{"A1"}, Reply: reply}
	if err := <-reply; err != nil {
		t.Fatalf("release failed: %v", err)
	}

	stateReply := make(chan View, 1)
	r.Inbox() <- GetState{Reply: stateReply}
	view := recvView(t, stateReply, 100*time.Millisecond)
	if got := view.SeatMap.Rows[0].Seats[0].Status; got != types.SeatAvailable {
		t.Fatalf("released seat should be available, got %s", got)
	}
}

func TestRoom_DropSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, MakeSeatMap("ev-1", 1, 2))

	// Buffer of 1 fills with the join state; the next broadcast drops us.
	out := make(chan []types.SeatStatusUpdate, 1)
	r.Inbox() <- Join{ClientID: "c1", Outbox: out}

	reply := make(chan error, 1)
	r.Inbox() <- Book{SeatIDs: []string{"A1"}, Reply: reply}
	<-reply

	stateReply := make(chan View, 1)
	r.Inbox() <- GetState{Reply: stateReply}
	view := recvView(t, stateReply, 100*time.Millisecond)

	if view.NumClients != 0 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", view.NumClients)
	}
}

func TestRoom_LeaveClosesOutbox(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, MakeSeatMap("ev-1", 1, 2))

	out := make(chan []types.SeatStatusUpdate, 2)
	r.Inbox() <- Join{ClientID: "c1", Outbox: out}
	_ = recvDelta(t, out, 100*time.Millisecond)

	r.Inbox() <- Leave{ClientID: "c1"}

	// The writer draining this outbox only exits when the room closes
	// it; a delete without a close would leak that goroutine.
	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("expected closed outbox after leave, got a delta")
		}
	case <-time.After(time.Second):
		t.Fatalf("outbox not closed after leave")
	}
}

func TestRoom_ViewIsDetachedFromLiveGrid(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, MakeSeatMap("ev-1", 2, 4))

	stateReply := make(chan View, 1)
	r.Inbox() <- GetState{Reply: stateReply}
	view := recvView(t, stateReply, 100*time.Millisecond)

	// Encode the view while the room keeps mutating seats. A view that
	// aliased the room's grid would trip the race detector here.
	done := make(chan error, 1)
	go func() {
		for i := 0; i < 100; i++ {
			if _, err := json.Marshal(view.SeatMap); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	for i := 0; i < 100; i++ {
		r.Inbox() <- Churn{}
	}
	if err := <-done; err != nil {
		t.Fatalf("marshal view: %v", err)
	}

	// The snapshot must not move no matter how much the room churned.
	for _, row := range view.SeatMap.Rows {
		for _, seat := range row.Seats {
			if seat.Status != types.SeatAvailable {
				t.Fatalf("snapshot mutated by the room: %s is %s", seat.ID, seat.Status)
			}
		}
	}
}

func TestRoom_ChurnFlipsOneSeat(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, MakeSeatMap("ev-1", 1, 3))

	out := make(chan []types.SeatStatusUpdate, 4)
	r.Inbox() <- Join{ClientID: "c1", Outbox: out}
	_ = recvDelta(t, out, 100*time.Millisecond)

	r.Inbox() <- Churn{}
	delta := recvDelta(t, out, 100*time.Millisecond)
	if len(delta) != 1 {
		t.Fatalf("churn should touch exactly one seat, got %+v", delta)
	}
	if delta[0].Status != types.SeatReserved {
		t.Fatalf("all-available grid can only churn to reserved, got %s", delta[0].Status)
	}
}
