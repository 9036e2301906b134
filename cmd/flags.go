package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/config"
)

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetFloat64 gets a float64 flag value or panics if the flag doesn't exist.
func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	val, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// addRecognitionFlags registers the flags that override the recognition
// section of the config.
func addRecognitionFlags(cmd *cobra.Command) {
	cmd.Flags().String("gallery", "", "Gallery CSV file (overrides config)")
	cmd.Flags().Float64("tolerance", 0, "Match tolerance, lower is stricter (overrides config)")
	cmd.Flags().String("model", "", "Detector variant: hog or cnn (overrides config)")
	cmd.Flags().Float64("scale", 0, "Working resolution scale in [0.1, 1] (overrides config)")
}

// applyRecognitionFlags overlays explicitly set flags on cfg and validates
// the result.
func applyRecognitionFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("gallery") {
		cfg.Gallery.Path = mustGetString(cmd, "gallery")
	}
	if flags.Changed("tolerance") {
		cfg.Recognition.Tolerance = mustGetFloat64(cmd, "tolerance")
	}
	if flags.Changed("model") {
		cfg.Recognition.Model = mustGetString(cmd, "model")
	}
	if flags.Changed("scale") {
		cfg.Recognition.Scale = mustGetFloat64(cmd, "scale")
	}
	if flags.Lookup("frame-skip") != nil && flags.Changed("frame-skip") {
		cfg.Recognition.FrameSkip = mustGetInt(cmd, "frame-skip")
	}
	if flags.Lookup("cooldown") != nil && flags.Changed("cooldown") {
		cfg.Recognition.CooldownSeconds = mustGetInt(cmd, "cooldown")
	}
	return cfg.Validate()
}
