package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Model variants understood by the embedding service.
const (
	ModelHOG = "hog"
	ModelCNN = "cnn"
)

type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Camera      CameraConfig      `yaml:"camera"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Gallery     GalleryConfig     `yaml:"gallery"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Sinks       SinksConfig       `yaml:"sinks"`
	Ads         AdsConfig         `yaml:"ads"`
	Web         WebConfig         `yaml:"web"`
}

type DeviceConfig struct {
	ID string `yaml:"id"` // reported as device_id in the attendance log
}

type CameraConfig struct {
	Input  string `yaml:"input"`  // device, file or URL handed to ffmpeg, or an image directory
	Format string `yaml:"format"` // ffmpeg input format (e.g. v4l2), empty for autodetect
	FPS    int    `yaml:"fps"`    // decode rate limit, 0 keeps the source rate
}

type RecognitionConfig struct {
	Tolerance           float64 `yaml:"tolerance"`
	Model               string  `yaml:"model"`
	Scale               float64 `yaml:"scale"`
	FrameSkip           int     `yaml:"frame_skip"`
	CooldownSeconds     int     `yaml:"cooldown_seconds"`
	ValidationTolerance float64 `yaml:"validation_tolerance"` // duplicate check during registration, 0 disables
}

// Cooldown returns the dedup window. Windows shorter than a second are
// raised to one second.
func (r RecognitionConfig) Cooldown() time.Duration {
	return time.Duration(max(r.CooldownSeconds, 1)) * time.Second
}

type GalleryConfig struct {
	Path       string `yaml:"path"`
	DatasetDir string `yaml:"dataset_dir"` // where registration stores captured images
}

type EmbeddingConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"` // postgres:// URL or MySQL DSN, empty disables the database sink
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"` // e.g. tcp://localhost:1883, empty disables the MQTT sink
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
	QoS      int    `yaml:"qos"`
}

type SinksConfig struct {
	QueueSize      int `yaml:"queue_size"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
	RecentEvents   int `yaml:"recent_events"`
}

// Timeout returns the per-delivery timeout.
func (s SinksConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// AdsConfig controls targeted ads for recognized members. Ads need the
// database.
type AdsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WindowDays int    `yaml:"window_days"` // purchase history considered for preferences
	Location   string `yaml:"location"`    // display_location, defaults to the device ID
}

// Window returns the purchase history window.
func (a AdsConfig) Window() time.Duration {
	return time.Duration(a.WindowDays) * 24 * time.Hour
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	APIToken       string   `yaml:"api_token"` // required for mutating endpoints when set
}

// Addr returns the listen address of the operator API.
func (w WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// envInt reads an environment variable and parses it as a non-negative
// integer. Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load returns the built-in defaults overridden by environment variables.
func Load() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

// LoadFile overlays the YAML file at path on the defaults and then applies
// environment variables. An empty path or a missing file is not an error;
// found reports whether the file was read.
func LoadFile(path string) (cfg *Config, found bool, err error) {
	cfg = defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, false, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, false, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			found = true
		}
	}
	cfg.applyEnv()
	return cfg, found, nil
}

func (c *Config) applyEnv() {
	c.Device.ID = envString("ROLLCALL_DEVICE_ID", c.Device.ID)
	c.Camera.Input = envString("ROLLCALL_CAMERA", c.Camera.Input)
	c.Camera.Format = envString("ROLLCALL_CAMERA_FORMAT", c.Camera.Format)

	c.Recognition.Tolerance = envFloat("ROLLCALL_TOLERANCE", c.Recognition.Tolerance)
	c.Recognition.Model = envString("ROLLCALL_MODEL", c.Recognition.Model)
	c.Recognition.Scale = envFloat("ROLLCALL_SCALE", c.Recognition.Scale)
	c.Recognition.FrameSkip = envInt("ROLLCALL_FRAME_SKIP", c.Recognition.FrameSkip)
	c.Recognition.CooldownSeconds = envInt("ROLLCALL_COOLDOWN", c.Recognition.CooldownSeconds)

	c.Gallery.Path = envString("ROLLCALL_GALLERY", c.Gallery.Path)
	c.Gallery.DatasetDir = envString("ROLLCALL_DATASET_DIR", c.Gallery.DatasetDir)

	c.Embedding.URL = envString("EMBEDDING_URL", c.Embedding.URL)

	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	c.MQTT.Broker = envString("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Topic = envString("MQTT_TOPIC", c.MQTT.Topic)
	c.MQTT.Username = envString("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = envString("MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.ClientID = envString("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.QoS = envInt("MQTT_QOS", c.MQTT.QoS)

	c.Sinks.QueueSize = envInt("SINK_QUEUE_SIZE", c.Sinks.QueueSize)
	c.Sinks.TimeoutSeconds = envInt("SINK_TIMEOUT", c.Sinks.TimeoutSeconds)

	c.Ads.Enabled = envBool("ADS_ENABLED", c.Ads.Enabled)
	c.Ads.WindowDays = envInt("ADS_WINDOW_DAYS", c.Ads.WindowDays)
	c.Ads.Location = envString("ADS_LOCATION", c.Ads.Location)

	c.Web.Host = envString("WEB_HOST", c.Web.Host)
	c.Web.Port = envInt("WEB_PORT", c.Web.Port)
	c.Web.APIToken = envString("WEB_API_TOKEN", c.Web.APIToken)
	if origins := os.Getenv("WEB_ALLOWED_ORIGINS"); origins != "" {
		c.Web.AllowedOrigins = strings.Split(origins, ",")
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	r := c.Recognition
	if r.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("recognition.tolerance must be positive, got %v", r.Tolerance))
	}
	if r.Model != ModelHOG && r.Model != ModelCNN {
		errs = append(errs, fmt.Errorf("recognition.model must be %q or %q, got %q", ModelHOG, ModelCNN, r.Model))
	}
	if r.Scale <= 0 {
		errs = append(errs, fmt.Errorf("recognition.scale must be positive, got %v", r.Scale))
	}
	if r.CooldownSeconds < 0 {
		errs = append(errs, fmt.Errorf("recognition.cooldown_seconds must not be negative, got %d", r.CooldownSeconds))
	}
	if r.ValidationTolerance < 0 {
		errs = append(errs, fmt.Errorf("recognition.validation_tolerance must not be negative, got %v", r.ValidationTolerance))
	}
	if c.Gallery.Path == "" {
		errs = append(errs, errors.New("gallery.path is required"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.Ads.Enabled && c.Ads.WindowDays <= 0 {
		errs = append(errs, fmt.Errorf("ads.window_days must be positive, got %d", c.Ads.WindowDays))
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		errs = append(errs, fmt.Errorf("web.port out of range: %d", c.Web.Port))
	}
	return errors.Join(errs...)
}
