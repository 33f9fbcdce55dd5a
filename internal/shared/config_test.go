package shared_test

import (
	"testing"
	"time"

	"wb_reviews/internal/shared"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SQLITE_PATH", "/tmp/reviews.db")

	c, err := shared.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.CheckInterval != 30*time.Minute {
		t.Fatalf("interval: got %s", c.CheckInterval)
	}
	if c.Lookback != 72*time.Hour {
		t.Fatalf("lookback: got %s", c.Lookback)
	}
	if c.Workers != 1 || c.StoreDriver != "mysql" || c.RedeliverPending {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("CHECK_INTERVAL", "90s")
	t.Setenv("TELEGRAM_CHAT_IDS", "11,22")
	t.Setenv("WORKERS", "0")

	c, err := shared.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.StoreDSN() != "/tmp/x.db" {
		t.Fatalf("dsn: %s", c.StoreDSN())
	}
	if c.CheckInterval != 90*time.Second {
		t.Fatalf("interval: %s", c.CheckInterval)
	}
	if len(c.ChatIDs) != 2 || c.ChatIDs[1] != 22 {
		t.Fatalf("chat ids: %v", c.ChatIDs)
	}
	if c.Workers != 1 {
		t.Fatalf("workers should be clamped to 1, got %d", c.Workers)
	}
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	if _, err := shared.Load(); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
