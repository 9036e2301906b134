package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/gallery"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect the face gallery",
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List labels and their record counts",
	Args:  cobra.NoArgs,
	RunE:  runGalleryList,
}

var galleryAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Find records likely to be confused with each other",
	Long: `Report pairs of gallery records stored under different names that are
closer than the tolerance, and names whose records are far apart. Both
usually mean a person was registered under the wrong name or twice under
different names. Names are compared ignoring case and accents, and a shared
name also shares one cooldown window during recognition.

Examples:
  rollcall gallery audit
  rollcall gallery audit --tolerance 0.5 --spread 0.9 --json`,
	Args: cobra.NoArgs,
	RunE: runGalleryAudit,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryListCmd)
	galleryCmd.AddCommand(galleryAuditCmd)

	galleryCmd.PersistentFlags().String("gallery", "", "Gallery CSV file (overrides config)")
	galleryListCmd.Flags().Bool("json", false, "Output as JSON")
	galleryAuditCmd.Flags().Float64("tolerance", 0, "Conflict distance (defaults to the recognition tolerance)")
	galleryAuditCmd.Flags().Float64("spread", 0, "Report names whose records are further apart than this (defaults to twice the tolerance)")
	galleryAuditCmd.Flags().Bool("json", false, "Output as JSON")
}

func loadGallery(cmd *cobra.Command) (*gallery.Gallery, float64, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, 0, err
	}
	if path, _ := cmd.Flags().GetString("gallery"); path != "" {
		cfg.Gallery.Path = path
	}
	g, err := gallery.Load(cfg.Gallery.Path, slog.Default())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load gallery: %w", err)
	}
	return g, cfg.Recognition.Tolerance, nil
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	g, _, err := loadGallery(cmd)
	if err != nil {
		return err
	}
	counts := g.Counts()
	labels := g.Labels()

	if mustGetBool(cmd, "json") {
		return outputJSON(map[string]any{
			"path":   g.Path(),
			"size":   g.Size(),
			"dim":    g.Dim(),
			"labels": counts,
		})
	}

	fmt.Printf("Gallery %s: %d records, %d names, dimension %d\n\n", g.Path(), g.Size(), len(labels), g.Dim())
	for _, label := range labels {
		fmt.Printf("  %-30s %d\n", label, counts[label])
	}
	return nil
}

func runGalleryAudit(cmd *cobra.Command, args []string) error {
	g, tolerance, err := loadGallery(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("tolerance") {
		tolerance = mustGetFloat64(cmd, "tolerance")
	}
	spread := 2 * tolerance
	if cmd.Flags().Changed("spread") {
		spread = mustGetFloat64(cmd, "spread")
	}

	snap := g.Snapshot()
	report := gallery.Audit(snap, tolerance, spread)

	if mustGetBool(cmd, "json") {
		return outputJSON(report)
	}

	fmt.Printf("Audited %d records under %d names (tolerance %.2f, spread %.2f)\n", report.Records, report.Labels, tolerance, spread)

	if len(report.Conflicts) == 0 {
		fmt.Println("\nNo conflicting records")
	} else {
		fmt.Printf("\nConflicting records: %d\n", len(report.Conflicts))
		for _, c := range report.Conflicts {
			fmt.Printf("  %.3f  %-20s (%s)  <->  %-20s (%s)\n",
				c.Distance, c.LabelA, snap[c.A].SourcePath, c.LabelB, snap[c.B].SourcePath)
		}
	}

	if len(report.Spreads) > 0 {
		fmt.Printf("\nNames with distant records: %d\n", len(report.Spreads))
		for _, s := range report.Spreads {
			fmt.Printf("  %-20s %d records, max distance %.3f\n", s.Label, s.Records, s.MaxDistance)
		}
	}

	counts := g.Counts()
	var shared []string
	for label, n := range counts {
		if n > 1 {
			shared = append(shared, label)
		}
	}
	sort.Strings(shared)
	if len(shared) > 0 {
		fmt.Printf("\nNames with several records (one cooldown window each): %v\n", shared)
	}
	return nil
}
