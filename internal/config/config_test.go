package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.ListenAddr = "127.0.0.1:9000"
	cfg.Auth.JWTSecret = "s3cret"
	cfg.Typing.Timeout = Duration{1500 * time.Millisecond}
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("ListenAddr = %q", loaded.ListenAddr)
	}
	if loaded.Typing.Timeout.Duration != 1500*time.Millisecond {
		t.Errorf("Typing.Timeout = %v, want 1.5s", loaded.Typing.Timeout)
	}
	if len(loaded.Kafka.Brokers) != 1 || loaded.Kafka.Brokers[0] != "localhost:9092" {
		t.Errorf("Kafka.Brokers = %v", loaded.Kafka.Brokers)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "data_dir = \"/tmp/chatd\"\n\n[auth]\njwt_secret = \"x\"\n\n[typing]\ntimeout = \"2s\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.Auth.CookieName != "auth_token" {
		t.Errorf("CookieName = %q, want auth_token", cfg.Auth.CookieName)
	}
	if cfg.Typing.Timeout.Duration != 2*time.Second {
		t.Errorf("Typing.Timeout = %v, want 2s", cfg.Typing.Timeout)
	}
	if cfg.Limits.StatusTTL.Duration != 24*time.Hour {
		t.Errorf("StatusTTL = %v, want 24h", cfg.Limits.StatusTTL)
	}
	if cfg.DBPath() != "/tmp/chatd/chatd.db" {
		t.Errorf("DBPath = %q", cfg.DBPath())
	}
	if !strings.HasSuffix(cfg.LogPath(), filepath.Join("logs", "chatd.log")) {
		t.Errorf("LogPath = %q", cfg.LogPath())
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[typing]\ntimeout = \"soon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid duration")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); !errors.Is(err, ErrNoSecret) {
		t.Errorf("Validate() = %v, want ErrNoSecret", err)
	}
	cfg.Auth.JWTSecret = "x"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestEnsureDirs(t *testing.T) {
	cfg := Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(cfg.LogDir()); err != nil {
		t.Errorf("log dir missing: %v", err)
	}
}
