package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-ridetrack/internal/config"
	"backend-ridetrack/internal/routing"
	"backend-ridetrack/internal/viewer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.Load(), os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// run follows the configured trip until the context ends, printing each
// remaining-path recomputation together with the fresh co-rider roster.
func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	directions := routing.NewClient(cfg.DirectionsURL, time.Duration(cfg.DirectionsTimeoutSec)*time.Second)
	session := viewer.NewSessionFromConfig(cfg, directions)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case path := <-session.Updates():
				fmt.Fprintf(out, "trip %s: remaining path has %d points\n", cfg.TripID, len(path))
				for _, r := range session.Riders() {
					fmt.Fprintf(out, "  rider %s at %.5f,%.5f\n", r.RiderID, r.Position.Lat, r.Position.Lng)
				}
			}
		}
	}()

	return session.Run(ctx)
}
