package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/pagelens/pagelens/internal/config"
	"github.com/pagelens/pagelens/pkg/ocr"
)

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List recognition modes",
	Long: `List the available recognition modes with their resolution settings.

Example:
  pagelens modes
  pagelens modes --config pagelens.yaml`,
	RunE: runModes,
}

func init() {
	rootCmd.AddCommand(modesCmd)
}

func runModes(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rootConfigFile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if cfg.OCR.DefaultPrompt != "" {
		ocr.SetDefaultPrompt(cfg.OCR.DefaultPrompt)
	}
	if cfg.OCR.ModeOverridesFile != "" {
		if err := ocr.LoadOverrides(cfg.OCR.ModeOverridesFile); err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to load mode overrides", err)
		}
	}

	modes := ocr.Modes()
	fmt.Printf("%-8s %-12s %-10s %-10s %-6s %-8s %-8s\n",
		"KEY", "LABEL", "BASE", "IMAGE", "CROP", "SPEED", "QUALITY")
	for _, key := range ocr.ModeKeys() {
		m := modes[key]
		marker := ""
		if key == ocr.DefaultModeKey {
			marker = " (default)"
		}
		fmt.Printf("%-8s %-12s %-10d %-10d %-6v %-8s %-8s%s\n",
			key, m.Label, m.BaseSize, m.ImageSize, m.CropMode, m.Speed, m.Quality, marker)
	}
	fmt.Println()
	fmt.Printf("Default prompt: %s\n", ocr.DefaultPrompt())
	return nil
}
