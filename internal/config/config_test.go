package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Recognition.Tolerance != 0.6 {
		t.Errorf("Tolerance = %v, want 0.6", cfg.Recognition.Tolerance)
	}
	if cfg.Recognition.Model != ModelHOG {
		t.Errorf("Model = %q, want %q", cfg.Recognition.Model, ModelHOG)
	}
	if cfg.Recognition.Scale != 0.25 {
		t.Errorf("Scale = %v, want 0.25", cfg.Recognition.Scale)
	}
	if cfg.Recognition.FrameSkip != 2 {
		t.Errorf("FrameSkip = %d, want 2", cfg.Recognition.FrameSkip)
	}
	if cfg.Recognition.Cooldown() != 30*time.Second {
		t.Errorf("Cooldown() = %v, want 30s", cfg.Recognition.Cooldown())
	}
	if cfg.Sinks.Timeout() != 5*time.Second {
		t.Errorf("Sinks.Timeout() = %v, want 5s", cfg.Sinks.Timeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ROLLCALL_TOLERANCE", "0.45")
	t.Setenv("ROLLCALL_MODEL", "cnn")
	t.Setenv("ROLLCALL_FRAME_SKIP", "5")
	t.Setenv("ROLLCALL_COOLDOWN", "not-a-number")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/rollcall")
	t.Setenv("WEB_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("ADS_ENABLED", "true")
	t.Setenv("ADS_WINDOW_DAYS", "7")

	cfg := Load()

	if !cfg.Ads.Enabled || cfg.Ads.Window() != 7*24*time.Hour {
		t.Errorf("Ads = %+v, want enabled with a 7 day window", cfg.Ads)
	}

	if cfg.Recognition.Tolerance != 0.45 {
		t.Errorf("Tolerance = %v, want 0.45", cfg.Recognition.Tolerance)
	}
	if cfg.Recognition.Model != ModelCNN {
		t.Errorf("Model = %q, want cnn", cfg.Recognition.Model)
	}
	if cfg.Recognition.FrameSkip != 5 {
		t.Errorf("FrameSkip = %d, want 5", cfg.Recognition.FrameSkip)
	}
	if cfg.Recognition.CooldownSeconds != 30 {
		t.Errorf("invalid env value should keep default, got %d", cfg.Recognition.CooldownSeconds)
	}
	if cfg.Database.URL != "postgres://u:p@localhost/rollcall" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if len(cfg.Web.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v", cfg.Web.AllowedOrigins)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollcall.yaml")
	content := `
device:
  id: gate-1
recognition:
  tolerance: 0.5
  cooldown_seconds: 10
mqtt:
  broker: tcp://broker:1883
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ROLLCALL_DEVICE_ID", "gate-2")

	cfg, found, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if !found {
		t.Error("found = false, want true")
	}
	if cfg.Device.ID != "gate-2" {
		t.Errorf("Device.ID = %q, env should win over file", cfg.Device.ID)
	}
	if cfg.Recognition.Tolerance != 0.5 {
		t.Errorf("Tolerance = %v, want 0.5", cfg.Recognition.Tolerance)
	}
	if cfg.Recognition.Scale != 0.25 {
		t.Errorf("Scale = %v, fields absent from the file should keep defaults", cfg.Recognition.Scale)
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" || cfg.MQTT.Topic != "rollcall/attendance" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg, found, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if found {
		t.Error("found = true for a missing file")
	}
	if cfg.Recognition.Tolerance != 0.6 {
		t.Errorf("Tolerance = %v, want default 0.6", cfg.Recognition.Tolerance)
	}
}

func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("recognition: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestCooldownMinimum(t *testing.T) {
	r := RecognitionConfig{CooldownSeconds: 0}
	if r.Cooldown() != time.Second {
		t.Errorf("Cooldown() = %v, want 1s", r.Cooldown())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero tolerance", func(c *Config) { c.Recognition.Tolerance = 0 }, "tolerance"},
		{"unknown model", func(c *Config) { c.Recognition.Model = "dlib" }, "model"},
		{"negative cooldown", func(c *Config) { c.Recognition.CooldownSeconds = -1 }, "cooldown"},
		{"no gallery", func(c *Config) { c.Gallery.Path = "" }, "gallery.path"},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, "qos"},
		{"bad port", func(c *Config) { c.Web.Port = 70000 }, "port"},
		{"ads without window", func(c *Config) { c.Ads = AdsConfig{Enabled: true} }, "ads.window_days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestWebAddr(t *testing.T) {
	w := WebConfig{Host: "0.0.0.0", Port: 9000}
	if w.Addr() != "0.0.0.0:9000" {
		t.Errorf("Addr() = %q", w.Addr())
	}
}
