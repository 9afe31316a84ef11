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
	if cfg.Server.Addr != ":9600" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Storage.DBPath != "./chatsync-db" {
		t.Fatalf("db path = %q", cfg.Storage.DBPath)
	}
	if cfg.SendBackoff() != 3*time.Second {
		t.Fatalf("send backoff = %v", cfg.SendBackoff())
	}
	if cfg.RetentionMaxAge() != 30*24*time.Hour {
		t.Fatalf("retention max age = %v", cfg.RetentionMaxAge())
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  addr: ":7000"
storage:
  db_path: "/var/lib/chatsync"
remote:
  base_url: "https://chat.example.com/api"
  ws_url: "wss://chat.example.com/events"
sync:
  send_backoff: "500ms"
  rate_per_sec: 5
  burst: 2
retention:
  enabled: true
  cron: "0 4 * * *"
  max_age: "72h"
user:
  id: "u1"
  name: "Pat"
logging:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7000" || cfg.Storage.DBPath != "/var/lib/chatsync" {
		t.Fatalf("core fields wrong: %+v", cfg)
	}
	if cfg.Remote.BaseURL != "https://chat.example.com/api" || cfg.Remote.WSURL != "wss://chat.example.com/events" {
		t.Fatalf("remote fields wrong: %+v", cfg.Remote)
	}
	if cfg.SendBackoff() != 500*time.Millisecond || cfg.Sync.RatePerSec != 5 || cfg.Sync.Burst != 2 {
		t.Fatalf("sync fields wrong: %+v", cfg.Sync)
	}
	if !cfg.Retention.Enabled || cfg.Retention.Cron != "0 4 * * *" || cfg.RetentionMaxAge() != 72*time.Hour {
		t.Fatalf("retention fields wrong: %+v", cfg.Retention)
	}
	if cfg.User.ID != "u1" || cfg.Logging.Level != "debug" {
		t.Fatalf("user/logging fields wrong")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("missing explicit config should fail")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHATSYNC_ADDR", ":8111")
	t.Setenv("CHATSYNC_DB_PATH", "/tmp/db")
	t.Setenv("CHATSYNC_REMOTE_URL", "https://override.example.com")
	t.Setenv("CHATSYNC_LOG_LEVEL", "warn")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8111" || cfg.Storage.DBPath != "/tmp/db" {
		t.Fatalf("env overrides ignored: %+v", cfg)
	}
	if cfg.Remote.BaseURL != "https://override.example.com" || cfg.Logging.Level != "warn" {
		t.Fatalf("env overrides ignored: %+v", cfg)
	}
}

func TestInvalidDurationsFallBack(t *testing.T) {
	cfg := &Config{}
	cfg.Sync.SendBackoff = "soon"
	cfg.Retention.MaxAge = "-5h"
	if cfg.SendBackoff() != 3*time.Second {
		t.Fatalf("bad backoff did not fall back")
	}
	if cfg.RetentionMaxAge() != 30*24*time.Hour {
		t.Fatalf("bad max age did not fall back")
	}
}
