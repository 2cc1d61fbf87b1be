package sim

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eventpick/seatsync/pkg/types"
)

// WSHandler serves the push channel: GET /events/{id}/live?token=...
// The stream is server-to-client only; inbound frames are read just to
// notice the close.
func WSHandler(h *Hub, secret string, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "id")
		if eventID == "" {
			http.Error(w, "missing event id", http.StatusBadRequest)
			return
		}
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		if _, err := VerifyToken(secret, token); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		reply := make(chan *Room, 1)
		h.Inbox() <- GetRoom{EventID: eventID, Reply: reply}
		room := <-reply
		if room == nil {
			http.Error(w, "event not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan []types.SeatStatusUpdate, 8)
		clientID := randID(6)

		room.Inbox() <- Join{ClientID: clientID, Outbox: out}
		defer func() { room.Inbox() <- Leave{ClientID: clientID} }()

		log.Info("push client joined",
			zap.String("event_id", eventID),
			zap.String("client_id", clientID),
		)

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for delta := range out {
				payload, _ := json.Marshal(delta)
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop: clients send nothing; a read error means they left.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}
}

func randID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
