package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/enroll"
	"github.com/kozaktomas/rollcall/internal/frames"
	"github.com/kozaktomas/rollcall/internal/gallery"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a person from a camera capture or an image",
	Long: `Register a person. Without --image a single frame is captured from the
configured camera and stored under the dataset directory. The first detected
face is appended to the gallery and, when a database is configured, the
person is added to the members table.

Examples:
  rollcall register --name "Alice Smith" --email alice@example.com --gender F
  rollcall register --name "Bob" --image ./bob.jpg`,
	RunE: runRegister,
}

var registerDirCmd = &cobra.Command{
	Use:   "dir <directory>",
	Short: "Register every image in a directory",
	Long: `Register every .jpg/.jpeg/.png/.bmp image in a directory tree. Images in
a subdirectory are registered under the subdirectory name, images at the top
level under their file name without extension. With --all-faces every face
of an image is registered; later faces get a numeric suffix (name_1, name_2).

--overwrite builds a fresh gallery at --output and replaces the old file only
when at least one face was registered.

Examples:
  rollcall register dir ./dataset
  rollcall register dir ./photos --dedup 6 --dry-run
  rollcall register dir ./photos --output encodings.csv --overwrite --all-faces`,
	Args: cobra.ExactArgs(1),
	RunE: runRegisterDir,
}

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.AddCommand(registerDirCmd)

	registerCmd.Flags().String("name", "", "Name (label) of the person (required)")
	registerCmd.Flags().String("email", "", "Email address")
	registerCmd.Flags().String("gender", "", "Gender: M or F")
	registerCmd.Flags().String("age-group", "", "Age group")
	registerCmd.Flags().String("image", "", "Register from an image file instead of the camera")
	registerCmd.Flags().Bool("no-db", false, "Do not add the person to the members table")
	registerCmd.MarkFlagRequired("name")

	registerDirCmd.Flags().Int("dedup", 0, "Skip images within this many dHash bits of an image already registered under the same name (0 disables)")
	registerDirCmd.Flags().Bool("dry-run", false, "List what would be registered without detecting faces")
	registerDirCmd.Flags().Bool("no-db", false, "Do not add people to the members table")
	registerDirCmd.Flags().String("output", "", "Gallery file to write (default: gallery.path)")
	registerDirCmd.Flags().Bool("overwrite", false, "Replace the output gallery instead of appending to it")
	registerDirCmd.Flags().Bool("all-faces", false, "Register every face of an image, not just the first")
}

// newEnroller wires an enroller appending to g. The returned store is nil
// when no database is used.
func newEnroller(ctx context.Context, cfg *config.Config, g *gallery.Gallery, useDB bool) (*enroll.Enroller, database.Store, error) {
	opts := enroll.Options{
		Detector:            newDetector(cfg),
		Gallery:             g,
		DatasetDir:          cfg.Gallery.DatasetDir,
		ValidationTolerance: cfg.Recognition.ValidationTolerance,
		Logger:              slog.Default(),
	}

	var store database.Store
	if useDB {
		store, _ = openStore(ctx, cfg, false)
	}
	if store != nil {
		opts.Members = store
		if finder, ok := store.(database.NearestMemberFinder); ok {
			opts.Nearest = finder
		}
	}

	e, err := enroll.New(opts)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, nil, err
	}
	return e, store, nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
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
	enroller, store, err := newEnroller(ctx, cfg, g, !mustGetBool(cmd, "no-db"))
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	profile := enroll.Profile{
		Label:    mustGetString(cmd, "name"),
		Email:    mustGetString(cmd, "email"),
		Gender:   mustGetString(cmd, "gender"),
		AgeGroup: mustGetString(cmd, "age-group"),
	}

	var res *enroll.Result
	if path := mustGetString(cmd, "image"); path != "" {
		res, err = enroller.EnrollFile(ctx, profile, path)
	} else {
		var img image.Image
		img, err = captureFrame(ctx, cfg)
		if err != nil {
			return err
		}
		res, err = enroller.Capture(ctx, profile, img)
	}
	if errors.Is(err, enroll.ErrNoFace) {
		return errors.New("no face detected, adjust the position and try again")
	}
	if err != nil {
		return err
	}

	printResult(res)
	return nil
}

// captureFrame grabs a single frame from the configured camera.
func captureFrame(ctx context.Context, cfg *config.Config) (image.Image, error) {
	src, err := openSource(ctx, cfg.Camera.Input, cfg.Camera)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	img, err := src.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture frame: %w", err)
	}
	return img, nil
}

func printResult(res *enroll.Result) {
	fmt.Printf("Registered %s\n", res.Label)
	fmt.Printf("  Image:  %s\n", res.ImagePath)
	if res.MemberID != nil {
		fmt.Printf("  Member: %d\n", *res.MemberID)
	}
	if res.Ambiguous {
		fmt.Printf("  Warning: %d faces detected, the first one was used\n", res.Faces)
	}
	for _, c := range res.Conflicts {
		fmt.Printf("  Warning: face already matches %s (distance %.3f, %s)\n", c.Label, c.Distance, c.Source)
	}
}

func runRegisterDir(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	dryRun := mustGetBool(cmd, "dry-run")
	if !dryRun {
		if err := checkEmbedding(ctx, cfg); err != nil {
			return err
		}
	}

	output := mustGetString(cmd, "output")
	if output == "" {
		output = cfg.Gallery.Path
	}
	overwrite := mustGetBool(cmd, "overwrite") && !dryRun

	var g *gallery.Gallery
	if overwrite {
		g, err = gallery.Stage(output, slog.Default())
		if err != nil {
			return err
		}
		defer g.Discard()
	} else {
		g, err = gallery.Load(output, slog.Default())
		if err != nil {
			return fmt.Errorf("failed to load gallery: %w", err)
		}
	}

	enroller, store, err := newEnroller(ctx, cfg, g, !dryRun && !mustGetBool(cmd, "no-db"))
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Registering faces"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	report, err := enroller.Directory(ctx, args[0], enroll.DirectoryOptions{
		DuplicateThreshold: mustGetInt(cmd, "dedup"),
		DryRun:             dryRun,
		AllFaces:           mustGetBool(cmd, "all-faces"),
		Progress:           bar,
	})
	if err != nil {
		return err
	}
	if overwrite {
		if g.IsEmpty() {
			return fmt.Errorf("no faces registered, %s left unchanged", output)
		}
		if err := g.Commit(output); err != nil {
			return err
		}
		fmt.Printf("\nWrote %d encodings to %s\n", g.Size(), output)
	}

	fmt.Printf("\nImages: %d, registered: %d, skipped duplicates: %d, ambiguous: %d, conflicts: %d\n",
		report.Files, report.Enrolled, report.Skipped, report.Ambiguous, report.Conflicts)
	for _, label := range slices.Sorted(maps.Keys(report.Labels)) {
		fmt.Printf("  %-24s %d\n", label, report.Labels[label])
	}
	if len(report.Errors) > 0 {
		fmt.Printf("\nErrors: %d\n", len(report.Errors))
		for _, e := range report.Errors {
			fmt.Printf("  - %v\n", e)
		}
	}
	return nil
}
