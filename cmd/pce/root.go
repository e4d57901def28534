package main

import (
	"pce/internal/version"

	"github.com/spf13/cobra"
)

var (
	// jsonOutput is the CLI --json flag value
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "pce",
	Short: "PCE - Prompt Context Engine",
	Long: `PCE (Prompt Context Engine) enriches LLM prompts with project context:
detected frameworks, repository facts, documentation fragments, and relevant
code snippets, assembled under a token budget and cached by fingerprint.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("pce version {{.Version}}\n")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output machine-readable JSON")
}
