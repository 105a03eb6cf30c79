package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "console.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SendInterval != 200*time.Millisecond {
		t.Fatalf("default send interval = %v", cfg.SendInterval)
	}
	if cfg.BufferCeiling != 256_000 {
		t.Fatalf("default buffer ceiling = %d", cfg.BufferCeiling)
	}
	if cfg.StickyWindow != 600*time.Millisecond {
		t.Fatalf("default sticky window = %v", cfg.StickyWindow)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
server_url: http://infer.example:9000
send_interval: 100ms
cameras:
  - id: cam-1
    name: Hallway
    mode: live
    device: 0
    auto_start: true
`)
	t.Setenv("INFER_SERVER_URL", "http://env-wins.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "http://env-wins.example" {
		t.Fatalf("server URL = %q, env must override the file", cfg.ServerURL)
	}
	if cfg.SendInterval != 100*time.Millisecond {
		t.Fatalf("send interval = %v, want the file's 100ms", cfg.SendInterval)
	}
	if len(cfg.Cameras) != 1 || !cfg.Cameras[0].AutoStart {
		t.Fatalf("cameras = %+v", cfg.Cameras)
	}
}

func TestLoadRejectsBadCameras(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing id", "cameras:\n  - mode: live\n"},
		{"bad mode", "cameras:\n  - id: cam-1\n    mode: webrtc\n"},
		{"upload without file", "cameras:\n  - id: cam-1\n    mode: upload\n"},
		{"duplicate id", "cameras:\n  - id: cam-1\n    mode: live\n  - id: cam-1\n    mode: live\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatalf("invalid config accepted")
			}
		})
	}
}

func TestLoadRejectsNonPositiveIntervals(t *testing.T) {
	if _, err := Load(writeConfig(t, "send_interval: -1s\n")); err == nil {
		t.Fatalf("negative send interval accepted")
	}
}
