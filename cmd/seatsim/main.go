package main

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eventpick/seatsync/internal/config"
	"github.com/eventpick/seatsync/internal/sim"
)

func main() {
	cfg := config.Load()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()
	hub := sim.NewHub(ctx)
	srv := sim.NewServer(hub, cfg.JWTSecret, log)
	sim.DemoEvents(srv)

	if cfg.ChurnInterval > 0 {
		go churn(ctx, hub, cfg.ChurnInterval)
	}

	log.Info("seatsim listening", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, srv.Routes()); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

// churn nudges every seeded room on a timer so connected pickers see live
// status movement.
func churn(ctx context.Context, hub *sim.Hub, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	eventIDs := []string{"ev-rock-night", "ev-jazz-eve"}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range eventIDs {
				reply := make(chan *sim.Room, 1)
				hub.Inbox() <- sim.GetRoom{EventID: id, Reply: reply}
				if room := <-reply; room != nil {
					room.Inbox() <- sim.Churn{}
				}
			}
		}
	}
}
