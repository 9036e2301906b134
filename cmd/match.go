package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/frames"
	"github.com/kozaktomas/rollcall/internal/gallery"
)

var matchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Recognize the faces in a single image",
	Long: `Detect every face in an image and match it against the gallery.
Boxes are printed in the coordinates of the original image.

Examples:
  rollcall match ./test.jpg
  rollcall match ./group.png --tolerance 0.5 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)
	addRecognitionFlags(matchCmd)
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

// matchOutput is one face in the JSON output of match. Distance is null
// when no gallery record has the dimension of the face encoding.
type matchOutput struct {
	Label      string        `json:"label"`
	Distance   *float64      `json:"distance"`
	Confidence float64       `json:"confidence"`
	Box        facematch.Box `json:"box"`
}

func newMatchOutput(r facematch.MatchResult, box facematch.Box) matchOutput {
	out := matchOutput{Label: r.Label, Confidence: r.Confidence, Box: box}
	if !math.IsInf(r.Distance, 0) && !math.IsNaN(r.Distance) {
		d := r.Distance
		out.Distance = &d
	}
	return out
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRecognitionFlags(cmd, cfg); err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	g, err := gallery.Load(cfg.Gallery.Path, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to load gallery: %w", err)
	}
	img, err := frames.DecodeFile(args[0])
	if err != nil {
		return err
	}

	if err := checkEmbedding(ctx, cfg); err != nil {
		return err
	}

	scheduler := frames.NewScheduler(cfg.Recognition.Scale, 1)
	detections, err := newDetector(cfg).Detect(ctx, scheduler.ToWorkingResolution(img))
	if err != nil {
		return err
	}

	snapshot := g.Snapshot()
	results := make([]matchOutput, 0, len(detections))
	for _, det := range detections {
		results = append(results, newMatchOutput(
			facematch.Match(det.Vector, snapshot, cfg.Recognition.Tolerance),
			scheduler.ToOriginal(det.Box),
		))
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No faces detected")
		return nil
	}
	fmt.Printf("Found %d face(s) in %s (gallery: %d records)\n\n", len(results), args[0], g.Size())
	for i, r := range results {
		distance := "n/a"
		if r.Distance != nil {
			distance = fmt.Sprintf("%.3f", *r.Distance)
		}
		fmt.Printf("  %d. %-20s  confidence %.2f  distance %s  box top=%d right=%d bottom=%d left=%d\n",
			i+1, r.Label, r.Confidence, distance, r.Box.Top, r.Box.Right, r.Box.Bottom, r.Box.Left)
	}
	return nil
}
