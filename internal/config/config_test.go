package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DB.Driver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %q", cfg.DB.Driver)
	}
	if cfg.Gateway.Timeout != 15*time.Second {
		t.Fatalf("expected 15s gateway timeout, got %s", cfg.Gateway.Timeout)
	}
	if got := cfg.ActiveGateway().MerchantID; got != "PGTESTPAYUAT" {
		t.Fatalf("expected test merchant, got %q", got)
	}
}

func TestLoadSelectsLiveKeysFromEnv(t *testing.T) {
	t.Setenv("GATEWAY_PRODUCTION", "true")
	t.Setenv("GATEWAY_LIVE_MERCHANT_ID", "M22LIVE")
	t.Setenv("GATEWAY_LIVE_SALT_KEY", "live-salt")
	t.Setenv("GATEWAY_LIVE_SALT_INDEX", "3")
	t.Setenv("PORT", "9090")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	keys := cfg.ActiveGateway()
	if keys.MerchantID != "M22LIVE" || keys.SaltKey != "live-salt" || keys.SaltIndex != 3 {
		t.Fatalf("unexpected live keys: %+v", keys)
	}
	if salt := keys.Salt(); salt.Key != "live-salt" || salt.Index != 3 {
		t.Fatalf("unexpected salt: %+v", salt)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("expected PORT override, got %q", cfg.Server.Addr)
	}
}

func TestLoadRejectsLiveWithoutKeys(t *testing.T) {
	t.Setenv("GATEWAY_PRODUCTION", "true")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error when live keys are missing")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
db:
  driver: bolt
  path: /tmp/orders.bolt
public:
  base_url: https://natureofthedivine.com/
reconcile:
  window: 10m
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DB.Driver != "bolt" || cfg.DB.Path != "/tmp/orders.bolt" {
		t.Fatalf("unexpected db config: %+v", cfg.DB)
	}
	if cfg.Public.BaseURL != "https://natureofthedivine.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Public.BaseURL)
	}
	if cfg.Reconcile.Window != 10*time.Minute {
		t.Fatalf("expected 10m window, got %s", cfg.Reconcile.Window)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
