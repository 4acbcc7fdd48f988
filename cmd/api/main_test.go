package main

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"backend-ridetrack/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func TestRunShutsDownOnSignal(t *testing.T) {
	signals := make(chan os.Signal, 1)
	started := make(chan struct{})

	listen := func(app *fiber.App, addr string) error {
		close(started)
		<-context.Background().Done()
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), config.Config{ServerPort: ":0"}, nil, nil, signals, listen)
	}()

	<-started
	signals <- syscall.SIGTERM

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("timeout waiting for shutdown")
	}
}

func TestRunReturnsListenError(t *testing.T) {
	listenErr := errors.New("listen failed")
	listen := func(app *fiber.App, addr string) error { return listenErr }

	err := Run(context.Background(), config.Config{ServerPort: ":0"}, nil, nil, make(chan os.Signal), listen)
	if !errors.Is(err, listenErr) {
		t.Fatalf("expected listen error, got %v", err)
	}
}

func TestRealMainUsesInjectedDeps(t *testing.T) {
	ranWith := make(chan config.Config, 1)

	deps := mainDeps{
		loadConfig:      func() config.Config { return config.Config{ServerPort: ":1234"} },
		connectPostgres: func(config.Config) (*pgxpool.Pool, error) { return nil, errors.New("no db") },
		connectRedis:    func(config.Config) *redis.Client { return nil },
		notify:          func(chan<- os.Signal, ...os.Signal) {},
		run: func(_ context.Context, cfg config.Config, _ *pgxpool.Pool, _ *redis.Client, _ <-chan os.Signal, _ ListenFunc) error {
			ranWith <- cfg
			return nil
		},
	}

	realMain(deps)

	select {
	case cfg := <-ranWith:
		if cfg.ServerPort != ":1234" {
			t.Fatalf("unexpected config: %+v", cfg)
		}
	default:
		t.Fatalf("run was not invoked")
	}
}
