package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/mariadb"
	"github.com/kozaktomas/rollcall/internal/database/postgres"
	"github.com/kozaktomas/rollcall/internal/dispatch"
	"github.com/kozaktomas/rollcall/internal/emitter"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/fingerprint"
	"github.com/kozaktomas/rollcall/internal/frames"
)

func init() {
	postgres.Register()
	mariadb.Register()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newEmbeddingClient(cfg *config.Config) *fingerprint.Client {
	timeout := time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second
	return fingerprint.NewClient(cfg.Embedding.URL, cfg.Recognition.Model, timeout)
}

// newDetector creates the HTTP detector for cfg.
func newDetector(cfg *config.Config) facematch.Detector {
	return fingerprint.NewDetector(newEmbeddingClient(cfg), 0, slog.Default())
}

// checkEmbedding fails early when the embedding server does not answer.
func checkEmbedding(ctx context.Context, cfg *config.Config) error {
	if err := newEmbeddingClient(cfg).Health(ctx); err != nil {
		return fmt.Errorf("embedding server unreachable at %s: %w", cfg.Embedding.URL, err)
	}
	return nil
}

// openStore connects to the configured database. It returns nil without an
// error when no database is configured or when the connection fails and
// required is false.
func openStore(ctx context.Context, cfg *config.Config, required bool) (database.Store, error) {
	store, err := database.Open(ctx, &cfg.Database)
	switch {
	case err == nil:
		slog.Info("database connected", "backend", database.BackendFor(cfg.Database.URL))
		return store, nil
	case errors.Is(err, database.ErrNotConfigured) && !required:
		return nil, nil
	case required:
		return nil, err
	default:
		slog.Warn("database unavailable, attendance will not be stored", "error", err)
		return nil, nil
	}
}

// sinkSet is the configured output of the recognizer.
type sinkSet struct {
	sinks  []dispatch.Sink
	store  database.Store
	mqtt   *emitter.MQTTEmitter
	recent *dispatch.Recent
}

// sinkOptions selects the optional outputs of buildSinks.
type sinkOptions struct {
	useDB   bool
	useMQTT bool
	useAds  bool
	onAd    func(memberID int64, ad database.Advertisement)
}

// buildSinks creates every configured sink. Unavailable sinks become
// NopSinks so the dispatcher and the stats keep a stable shape.
func buildSinks(ctx context.Context, cfg *config.Config, opts sinkOptions) *sinkSet {
	set := &sinkSet{recent: dispatch.NewRecent(cfg.Sinks.RecentEvents)}

	if opts.useDB {
		set.store, _ = openStore(ctx, cfg, false)
	}
	if set.store != nil {
		set.sinks = append(set.sinks, database.NewSink(set.store, cfg.Device.ID))
	} else {
		set.sinks = append(set.sinks, dispatch.NopSink{SinkName: "database"})
	}

	if opts.useMQTT && cfg.MQTT.Broker != "" {
		e, err := emitter.Connect(ctx, cfg.MQTT, slog.Default())
		if err != nil {
			slog.Warn("mqtt unavailable, events will not be published", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			set.mqtt = e
		}
	}
	if set.mqtt != nil {
		set.sinks = append(set.sinks, set.mqtt)
	} else {
		set.sinks = append(set.sinks, dispatch.NopSink{SinkName: "mqtt"})
	}

	if opts.useAds && cfg.Ads.Enabled {
		if set.store != nil {
			location := cfg.Ads.Location
			if location == "" {
				location = cfg.Device.ID
			}
			set.sinks = append(set.sinks, database.NewAdSink(set.store, database.AdSinkOptions{
				Location:  location,
				Window:    cfg.Ads.Window(),
				OnDisplay: opts.onAd,
				Logger:    slog.Default(),
			}))
		} else {
			slog.Warn("ads need a database, no ads will be shown")
			set.sinks = append(set.sinks, dispatch.NopSink{SinkName: "ads"})
		}
	}

	set.sinks = append(set.sinks, set.recent)
	return set
}

// openSource opens input as an image directory or through ffmpeg.
func openSource(ctx context.Context, input string, cfg config.CameraConfig) (frames.Source, error) {
	if input == "" {
		return nil, errors.New("no camera input configured")
	}
	if info, err := os.Stat(input); err == nil && info.IsDir() {
		src, err := frames.OpenDir(input)
		if err != nil {
			return nil, err
		}
		slog.Info("replaying image directory", "dir", input, "images", src.Len())
		return src, nil
	}

	src, err := frames.OpenFFmpeg(ctx, input, frames.FFmpegOptions{
		InputFormat: cfg.Format,
		FPS:         cfg.FPS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", input, err)
	}
	slog.Info("capturing frames", "input", input, "format", cfg.Format)
	return src, nil
}
