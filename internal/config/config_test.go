package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	home := t.TempDir()

	cfg, err := Load(New(home), home)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("Backend = %q, want sqlite", cfg.Store.Backend)
	}
	if cfg.Store.Path != filepath.Join(home, "items.db") {
		t.Errorf("Path = %q", cfg.Store.Path)
	}
	if cfg.Store.Timeout != 5*time.Second || cfg.Store.Debounce != 100*time.Millisecond {
		t.Errorf("Timeout/Debounce = %v/%v", cfg.Store.Timeout, cfg.Store.Debounce)
	}
	if cfg.Broadcast.Mode != BroadcastLocal || cfg.Hub.Port != 7733 {
		t.Errorf("Broadcast/Hub = %+v/%+v", cfg.Broadcast, cfg.Hub)
	}
	if len(cfg.Autofill.Groups) != 2 || cfg.Autofill.Groups[0] != "question answers" {
		t.Errorf("Groups = %v", cfg.Autofill.Groups)
	}
}

func TestConfigFileAndEnv(t *testing.T) {
	home := t.TempDir()
	content := `
[store]
backend = "file"
timeout = "2s"

[broadcast]
mode = "websocket"
url = "ws://relay:9000/ws"
`
	if err := os.WriteFile(filepath.Join(home, FileName), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("FORMPAL_HUB_PORT", "9100")

	cfg, err := Load(New(home), home)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Backend != BackendFile || cfg.Store.Path != filepath.Join(home, "items") {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Store.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v", cfg.Store.Timeout)
	}
	if cfg.Broadcast.Mode != BroadcastWebSocket || cfg.Broadcast.URL != "ws://relay:9000/ws" {
		t.Errorf("Broadcast = %+v", cfg.Broadcast)
	}
	if cfg.Hub.Port != 9100 {
		t.Errorf("Hub.Port = %d, want 9100 from env", cfg.Hub.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  interface{}
	}{
		{"backend", "store.backend", "redis"},
		{"mode", "broadcast.mode", "carrier-pigeon"},
		{"timeout", "store.timeout", "0s"},
		{"port", "hub.port", 70000},
		{"websocket url", "broadcast.url", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			v := New(home)
			v.Set(tt.key, tt.val)
			if tt.key == "broadcast.url" {
				v.Set("broadcast.mode", BroadcastWebSocket)
			}

			_, err := Load(v, home)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	home := t.TempDir()
	cfg, err := Load(New(home), home)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Store.Backend = BackendMemory
	cfg.Log.Verbose = true

	path := filepath.Join(home, FileName)
	if err := cfg.WriteFile(path, false); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := cfg.WriteFile(path, false); err == nil {
		t.Error("Expected error overwriting without force")
	}
	if err := cfg.WriteFile(path, true); err != nil {
		t.Errorf("WriteFile with force failed: %v", err)
	}

	reloaded, err := Load(New(home), home)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if reloaded.Store.Backend != BackendMemory || !reloaded.Log.Verbose {
		t.Errorf("Reloaded config = %+v", reloaded)
	}
	if reloaded.Store.Path != cfg.Store.Path {
		t.Errorf("Path = %q, want %q", reloaded.Store.Path, cfg.Store.Path)
	}
}
