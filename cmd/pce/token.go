package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/spf13/cobra"

	"pce/internal/config"
)

// bcryptCost is the cost factor for API token hashing
const bcryptCost = 12

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate an API bearer token",
	Long: `Generate a random bearer token for the HTTP API and store its bcrypt
hash in the configuration. The plaintext token is printed once and never
persisted; losing it means generating a new one.`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	repoRoot := mustGetRepoRoot()

	cfg, err := config.LoadConfig(repoRoot)
	if err != nil {
		return fmt.Errorf("load config (run 'pce init' first?): %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	token := "pce_" + base64.RawURLEncoding.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash token: %w", err)
	}

	cfg.API.TokenHash = string(hash)
	if err := cfg.Save(repoRoot); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println("API token generated. Store it now; it will not be shown again.")
	fmt.Printf("\n  %s\n\n", token)
	fmt.Println("Send it as: Authorization: Bearer <token>")
	return nil
}
