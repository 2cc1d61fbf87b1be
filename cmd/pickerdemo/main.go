package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eventpick/seatsync/internal/backend"
	"github.com/eventpick/seatsync/internal/channel"
	"github.com/eventpick/seatsync/internal/config"
	"github.com/eventpick/seatsync/internal/seatmap"
	"github.com/eventpick/seatsync/internal/session"
)

// pickerdemo walks the whole client stack against a running seatsim (or a
// real backend): discover events, open a picker, watch live deltas, select
// seats, confirm, book, pay.
func main() {
	cfg := config.Load()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	token, err := fetchToken(ctx, cfg.BackendURL)
	if err != nil {
		log.Fatal("fetch token", zap.Error(err))
	}

	client := backend.NewClient(nil, cfg.BackendURL, token)

	events, err := client.ListEvents(ctx)
	if err != nil {
		log.Fatal("list events", zap.Error(err))
	}
	for _, ev := range events {
		log.Info("event", zap.String("id", ev.ID), zap.String("name", ev.Name), zap.Bool("has_seats", ev.HasSeats))
	}

	reconnect := channel.NewReconnector(log)
	var picker *session.Picker
	picker = session.New(client, &channel.WebsocketDialer{}, log, session.Callbacks{
		OnSeatsSelected: func(seats []seatmap.Seat) {
			log.Info("selection confirmed", zap.Int("seats", len(seats)))
		},
		OnClose: func() {
			log.Info("picker dismissed without confirming")
		},
		OnChannelError: func(err error) {
			log.Warn("live updates lost, reconnecting", zap.Error(err))
			go func() {
				if rerr := reconnect.Run(ctx, picker.Reconnect); rerr != nil {
					log.Warn("gave up reconnecting", zap.Error(rerr))
				}
			}()
		},
	})
	picker.SetMaxSeats(cfg.MaxSeats)

	if err := picker.Open(ctx, cfg.EventID); err != nil {
		log.Fatal("open picker", zap.Error(err))
	}
	defer picker.Close()

	log.Info("picker open",
		zap.String("event_id", cfg.EventID),
		zap.Int("available", picker.AvailableCount()),
	)

	// Let a few live deltas land before choosing.
	time.Sleep(3 * time.Second)

	picked := 0
	for _, row := range picker.Rows() {
		for _, seat := range row.Seats {
			if picked == 2 {
				break
			}
			if seat.Status != seatmap.StatusAvailable {
				continue
			}
			if err := picker.Toggle(seat.ID); err != nil {
				log.Warn("toggle rejected", zap.String("seat", seat.ID), zap.Error(err))
				continue
			}
			log.Info("seat selected", zap.String("seat", seat.Number))
			picked++
		}
	}

	seats, err := picker.Confirm()
	if err != nil {
		log.Fatal("confirm selection", zap.Error(err))
	}

	booking, err := client.SubmitBooking(ctx, session.BookingRequest(cfg.EventID, seats))
	if err != nil {
		log.Fatal("submit booking", zap.Error(err))
	}
	log.Info("booked",
		zap.String("booking_id", booking.ID),
		zap.String("ticket", booking.TicketNumber),
		zap.Int64("total", booking.Total),
	)

	paid, err := client.ConfirmPayment(ctx, booking.ID, "card")
	if err != nil {
		log.Fatal("confirm payment", zap.Error(err))
	}
	log.Info("paid", zap.String("status", paid.Status))
}

func fetchToken(ctx context.Context, base string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/auth/token", nil)
	if err != nil {
		return "", err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %s", res.Status)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}
