package sim

import (
	"context"

	"github.com/eventpick/seatsync/pkg/types"
)

type HubMsg interface{ isHubMsg() }

type GetRoom struct {
	EventID string
	Reply   chan *Room
}

// EnsureRoom creates the event's room on first use and replies with it;
// the grid is ignored when the room already exists.
type EnsureRoom struct {
	EventID string
	Grid    types.SeatMapResponse
	Reply   chan *Room
}

type RemoveRoom struct {
	EventID string
}

type ShutdownHub struct{}

func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// Hub is the registry of rooms, one per event with a configured seat map.
type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*Room
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*Room),
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetRoom:
				msg.Reply <- h.rooms[msg.EventID] // May be nil

			case EnsureRoom:
				msg.Reply <- h.ensure(msg.EventID, msg.Grid)

			case RemoveRoom:
				delete(h.rooms, msg.EventID)

			case ShutdownHub:
				for _, room := range h.rooms {
					room.Inbox() <- Shutdown{}
				}
				clear(h.rooms)
				h.cancel()
			}
		}
	}
}

func (h *Hub) ensure(eventID string, grid types.SeatMapResponse) *Room {
	if room := h.rooms[eventID]; room != nil {
		return room
	}
	room := NewRoom(h.ctx, grid)
	h.rooms[eventID] = room
	return room
}
