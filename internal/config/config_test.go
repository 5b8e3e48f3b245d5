package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Board.VirtualWidth != 2000 || cfg.Board.VirtualHeight != 1500 {
		t.Errorf("virtual size = %dx%d, want 2000x1500", cfg.Board.VirtualWidth, cfg.Board.VirtualHeight)
	}
	if cfg.Relay.PongWait != 60*time.Second {
		t.Errorf("PongWait = %v", cfg.Relay.PongWait)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blackboard.yaml")
	yaml := "server:\n  port: 9090\nboard:\n  theme: white\n  commit_quality: 0.5\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BLACKBOARD_SERVER_PORT", "9191")
	t.Setenv("BLACKBOARD_RELAY_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("env should win over file: port = %d", cfg.Server.Port)
	}
	if cfg.Board.Theme != "white" || cfg.Board.CommitQuality != 0.5 {
		t.Errorf("file values not applied: %+v", cfg.Board)
	}
	if len(cfg.Relay.AllowedOrigins) != 2 || cfg.Relay.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.Relay.AllowedOrigins)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad theme", func(c *Config) { c.Board.Theme = "purple" }},
		{"quality above one", func(c *Config) { c.Board.SyncQuality = 1.5 }},
		{"unknown bus", func(c *Config) { c.Bus.Backend = "kafka" }},
		{"nats without url", func(c *Config) { c.Bus.Backend = "nats"; c.Bus.NATSURL = "" }},
		{"no storage path", func(c *Config) { c.Storage.Path = "" }},
		{"embedded port below -1", func(c *Config) { c.Bus.EmbeddedPort = -2 }},
		{"no pages", func(c *Config) { c.Board.MaxPages = 0 }},
		{"pages past the wire limit", func(c *Config) { c.Board.MaxPages = 10001 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
	if err := Defaults().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}

	random := Defaults()
	random.Bus.EmbeddedPort = -1
	if err := random.Validate(); err != nil {
		t.Errorf("embedded_port -1 rejected: %v", err)
	}
}

func TestEnvTransform(t *testing.T) {
	tests := map[string]string{
		"BLACKBOARD_SERVER_PORT":         "server.port",
		"BLACKBOARD_BOARD_VIRTUAL_WIDTH": "board.virtual_width",
		"BLACKBOARD_SECURITY_JWT_SECRET": "security.jwt_secret",
	}
	for in, want := range tests {
		if got := envTransform(in); got != want {
			t.Errorf("envTransform(%q) = %q, want %q", in, got, want)
		}
	}
}
