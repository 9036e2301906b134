package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the operator API without recognition",
	Long: `Serve the operator API for a gallery and the attendance log without
running recognition, e.g. on a machine next to the database. Use
"recognize --listen" to expose the API of a running recognizer.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().String("gallery", "", "Gallery CSV file (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
	if cmd.Flags().Changed("gallery") {
		cfg.Gallery.Path = mustGetString(cmd, "gallery")
	}

	ctx, stop := signalContext()
	defer stop()

	g, err := gallery.Load(cfg.Gallery.Path, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to load gallery: %w", err)
	}

	deps := web.Deps{Gallery: g, Logger: slog.Default()}
	store, _ := openStore(ctx, cfg, false)
	if store != nil {
		defer store.Close()
		deps.Attendance = store

		members := database.NewMemberDirectory(store)
		deps.Reload = func(ctx context.Context) error {
			if err := g.Reload(); err != nil {
				return err
			}
			if err := members.Refresh(ctx); err != nil {
				slog.Warn("member refresh failed", "error", err)
			}
			return nil
		}
	}

	server := web.NewServer(cfg.Web, deps)
	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		shutdownServer(server)
	}()

	fmt.Printf("Starting rollcall API on http://%s/api/v1\n", cfg.Web.Addr())
	fmt.Println("Press Ctrl+C to stop")

	return server.Start()
}
