package main

import (
	"fmt"
	"os"
	"path/filepath"

	"pce/internal/config"
	"pce/internal/logging"

	"github.com/spf13/cobra"
)

var (
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize PCE configuration",
	Long:  "Creates a .pce/ directory with default configuration in the current repository root",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Force reinitialization (removes existing .pce directory)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	logger := logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.InfoLevel,
	})

	cwd := mustGetRepoRoot()

	pceDir := filepath.Join(cwd, ".pce")
	if _, statErr := os.Stat(pceDir); statErr == nil {
		if !initForce {
			// Idempotent: already initialized is success
			fmt.Println("PCE already initialized.")
			fmt.Printf("Configuration at: %s\n", filepath.Join(pceDir, "config.json"))
			fmt.Println("\nRun 'pce init --force' to reinitialize.")
			return nil
		}
		if removeErr := os.RemoveAll(pceDir); removeErr != nil {
			return fmt.Errorf("failed to remove existing .pce directory: %w", removeErr)
		}
		logger.Info("Removed existing .pce directory", nil)
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(cwd); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	logger.Info("PCE initialized", map[string]interface{}{
		"config_path": filepath.Join(pceDir, "config.json"),
	})

	fmt.Println("PCE initialized successfully!")
	fmt.Printf("Configuration written to: %s\n", filepath.Join(pceDir, "config.json"))
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Run 'pce enhance \"your prompt\"' to enhance a prompt")
	fmt.Println("  2. Run 'pce patterns list' to inspect the detection catalog")
	return nil
}
