package db

import (
	"testing"

	"backend-ridetrack/internal/config"
)

func TestConnectRedisNilWhenUnconfigured(t *testing.T) {
	client := ConnectRedis(config.Config{})
	if client != nil {
		t.Fatalf("expected nil client without redis addr")
	}
}

func TestConnectRedisReturnsClient(t *testing.T) {
	client := ConnectRedis(config.Config{RedisAddr: "localhost:6379"})
	if client == nil {
		t.Fatalf("expected redis client")
	}
	_ = client.Close()
}

func TestConnectPostgresInvalidURL(t *testing.T) {
	_, err := ConnectPostgres(config.Config{PostgresURL: "not-a-url"})
	if err == nil {
		t.Fatalf("expected error for invalid url")
	}
}
