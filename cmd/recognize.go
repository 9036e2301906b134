package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/cooldown"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/dispatch"
	"github.com/kozaktomas/rollcall/internal/frames"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/recognizer"
	"github.com/kozaktomas/rollcall/internal/web"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Recognize faces in a camera stream and report attendance",
	Long: `Recognize faces in a live camera stream, a video file or a directory of
images. Every processed frame is sent to the embedding server, the returned
faces are matched against the gallery and each recognized person is reported
at most once per cooldown window. With ads enabled, a recognized member is also
shown an ad targeted by gender, age group and recent purchases.

The input is a capture device, file or URL decoded by ffmpeg, or a directory
of .jpg/.png/.bmp images replayed in name order.

Examples:
  rollcall recognize
  rollcall recognize --input /dev/video1 --frame-skip 3
  rollcall recognize --input ./recording.mp4 --no-db --print
  rollcall recognize --input ./frames/ --listen`,
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().String("input", "", "Camera device, video file, URL or image directory (overrides config)")
	recognizeCmd.Flags().String("format", "", "ffmpeg input format, e.g. v4l2 (overrides config)")
	recognizeCmd.Flags().Int("fps", 0, "Limit decoded frames per second (overrides config)")
	recognizeCmd.Flags().Int("frame-skip", 0, "Process every Nth frame (overrides config)")
	recognizeCmd.Flags().Int("cooldown", 0, "Seconds before the same person is reported again (overrides config)")
	addRecognitionFlags(recognizeCmd)
	recognizeCmd.Flags().Bool("no-db", false, "Do not write attendance to the database")
	recognizeCmd.Flags().Bool("no-mqtt", false, "Do not publish events over MQTT")
	recognizeCmd.Flags().Bool("no-ads", false, "Do not show targeted ads even if enabled in config")
	recognizeCmd.Flags().Bool("print", false, "Print every recognized face")
	recognizeCmd.Flags().Bool("listen", false, "Serve the operator API while recognizing")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("input") {
		cfg.Camera.Input = mustGetString(cmd, "input")
	}
	if cmd.Flags().Changed("format") {
		cfg.Camera.Format = mustGetString(cmd, "format")
	}
	if cmd.Flags().Changed("fps") {
		cfg.Camera.FPS = mustGetInt(cmd, "fps")
	}
	if err := applyRecognitionFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if err := checkEmbedding(ctx, cfg); err != nil {
		return err
	}

	g, err := gallery.Load(cfg.Gallery.Path, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to load gallery: %w", err)
	}
	if g.IsEmpty() {
		fmt.Printf("Warning: gallery %s is empty, every face will be reported as Unknown\n", cfg.Gallery.Path)
	}

	sinkOpts := sinkOptions{
		useDB:   !mustGetBool(cmd, "no-db"),
		useMQTT: !mustGetBool(cmd, "no-mqtt"),
		useAds:  !mustGetBool(cmd, "no-ads"),
	}
	if mustGetBool(cmd, "print") {
		sinkOpts.onAd = printAd
	}
	sinks := buildSinks(ctx, cfg, sinkOpts)
	dispatcher := dispatch.New(sinks.sinks, dispatch.Options{
		QueueSize: cfg.Sinks.QueueSize,
		Timeout:   cfg.Sinks.Timeout(),
		Logger:    slog.Default(),
	})
	defer closeDispatcher(dispatcher)

	opts := recognizer.Options{
		Scheduler: frames.NewScheduler(cfg.Recognition.Scale, cfg.Recognition.FrameSkip),
		Detector:  newDetector(cfg),
		Gallery:   g,
		Cooldown:  cooldown.New(cfg.Recognition.Cooldown()),
		Events:    dispatcher,
		Tolerance: cfg.Recognition.Tolerance,
		Logger:    slog.Default(),
	}
	if sinks.store != nil {
		members := database.NewMemberDirectory(sinks.store)
		if err := members.Refresh(ctx); err != nil {
			slog.Warn("failed to load members, events will carry no member id", "error", err)
		}
		opts.Members = members
	}
	if mustGetBool(cmd, "print") {
		opts.OnRecognition = printRecognition
	}

	pipeline, err := recognizer.New(opts)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "listen") {
		deps := web.Deps{
			Gallery:    g,
			Reload:     pipeline.Reload,
			Pipeline:   pipeline,
			Dispatcher: dispatcher,
			Recent:     sinks.recent,
			Logger:     slog.Default(),
		}
		if sinks.mqtt != nil {
			deps.MQTT = sinks.mqtt
		}
		if sinks.store != nil {
			deps.Attendance = sinks.store
		}
		server := web.NewServer(cfg.Web, deps)
		go func() {
			if err := server.Start(); err != nil {
				slog.Error("web server stopped", "error", err)
			}
		}()
		defer shutdownServer(server)
		fmt.Printf("Operator API on http://%s/api/v1\n", cfg.Web.Addr())
	}

	src, err := openSource(ctx, cfg.Camera.Input, cfg.Camera)
	if err != nil {
		return err
	}

	fmt.Printf("Recognizing faces (gallery: %d records, tolerance: %.2f, sinks: %v)\n",
		g.Size(), cfg.Recognition.Tolerance, dispatcher.Sinks())
	fmt.Println("Press Ctrl+C to stop")

	runErr := pipeline.Run(ctx, src)

	st := pipeline.Stats()
	fmt.Printf("\nFrames: %d, processed: %d, recognized: %d, unknown: %d, events: %d\n",
		st.Frames, st.Processed, st.Recognized, st.Unknown, st.Emitted)

	if runErr != nil {
		if errors.Is(runErr, frames.ErrCaptureFailed) {
			return fmt.Errorf("capture stopped: %w", runErr)
		}
		return runErr
	}
	return nil
}

func printRecognition(idx int, r recognizer.Recognition) {
	marker := " "
	if r.Emitted {
		marker = "*"
	}
	fmt.Printf("%s frame %6d  %-20s  distance %.3f  confidence %.2f  box (%d,%d,%d,%d)\n",
		marker, idx, r.Label, r.Distance, r.Confidence, r.Box.Top, r.Box.Right, r.Box.Bottom, r.Box.Left)
}

func printAd(memberID int64, ad database.Advertisement) {
	fmt.Printf("  ad for member %d: %s\n", memberID, ad.Title)
	if ad.Content != "" {
		fmt.Printf("    %s\n", ad.Content)
	}
	if ad.ImagePath != "" {
		fmt.Printf("    image: %s\n", ad.ImagePath)
	}
}

// closeDispatcher drains pending deliveries and closes every sink.
func closeDispatcher(d *dispatch.Dispatcher) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		slog.Warn("dispatcher did not drain cleanly", "error", err)
	}
	for name, st := range d.Stats().Sinks {
		slog.Info("sink summary", "sink", name, "delivered", st.Delivered, "failed", st.Failed, "dropped", st.Dropped)
	}
}

func shutdownServer(server *web.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Warn("web server shutdown failed", "error", err)
	}
}
