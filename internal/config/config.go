package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Camera describes one camera tile the console watches.
type Camera struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Mode      string `yaml:"mode"`   // "live" or "upload"
	Device    int    `yaml:"device"` // capture device index (live mode)
	File      string `yaml:"file"`   // video file path (upload mode)
	AutoStart bool   `yaml:"auto_start"`
}

// Config defines the runtime configuration for the streaming console.
// Values load from the YAML file first, then environment variables override.
type Config struct {
	ServerURL string `yaml:"server_url" env:"INFER_SERVER_URL"` // http(s) base of the inference service
	Token     string `yaml:"token" env:"INFER_TOKEN"`           // pre-issued bearer credential
	Username  string `yaml:"username" env:"INFER_USERNAME"`     // sign-in fallback when no token is set
	Password  string `yaml:"password" env:"INFER_PASSWORD"`

	HTTPAddr string `yaml:"http_addr" env:"CONSOLE_HTTP_ADDR"`

	SendInterval   time.Duration `yaml:"send_interval" env:"SEND_INTERVAL"`
	TickInterval   time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`
	SendWidth      int           `yaml:"send_width" env:"SEND_WIDTH"`
	JPEGQuality    int           `yaml:"jpeg_quality" env:"JPEG_QUALITY"`
	BufferCeiling  int64         `yaml:"buffer_ceiling" env:"BUFFER_CEILING"`
	StickyWindow   time.Duration `yaml:"sticky_window" env:"STICKY_WINDOW"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" env:"RECONNECT_DELAY"`

	AlertCooldown time.Duration `yaml:"alert_cooldown" env:"ALERT_COOLDOWN"`
	SirenCeiling  time.Duration `yaml:"siren_ceiling" env:"SIREN_CEILING"`
	SirenCommand  string        `yaml:"siren_command" env:"SIREN_COMMAND"`

	EventCooldown time.Duration `yaml:"event_cooldown" env:"EVENT_COOLDOWN"`

	CanvasWidth  int `yaml:"canvas_width" env:"CANVAS_WIDTH"`
	CanvasHeight int `yaml:"canvas_height" env:"CANVAS_HEIGHT"`

	Cameras []Camera `yaml:"cameras"`
}

// Default returns a config aligned with the inference service's expected
// client behavior.
func Default() Config {
	return Config{
		ServerURL:      "http://localhost:8000",
		HTTPAddr:       ":8080",
		SendInterval:   200 * time.Millisecond,
		TickInterval:   33 * time.Millisecond,
		SendWidth:      640,
		JPEGQuality:    70,
		BufferCeiling:  256_000,
		StickyWindow:   600 * time.Millisecond,
		ReconnectDelay: 600 * time.Millisecond,
		AlertCooldown:  8 * time.Second,
		SirenCeiling:   10 * time.Second,
		EventCooldown:  5 * time.Second,
		CanvasWidth:    800,
		CanvasHeight:   450,
	}
}

// Load reads the YAML config file (optional) and applies environment
// variable overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.SendInterval <= 0 || c.TickInterval <= 0 {
		return fmt.Errorf("send_interval and tick_interval must be positive")
	}
	if c.BufferCeiling <= 0 {
		return fmt.Errorf("buffer_ceiling must be positive")
	}
	seen := make(map[string]bool, len(c.Cameras))
	for _, cam := range c.Cameras {
		if cam.ID == "" {
			return fmt.Errorf("camera entry missing id")
		}
		if seen[cam.ID] {
			return fmt.Errorf("duplicate camera id %q", cam.ID)
		}
		seen[cam.ID] = true
		switch cam.Mode {
		case "live", "upload":
		default:
			return fmt.Errorf("camera %q: mode must be live or upload", cam.ID)
		}
		if cam.Mode == "upload" && cam.File == "" {
			return fmt.Errorf("camera %q: upload mode requires file", cam.ID)
		}
	}
	return nil
}
