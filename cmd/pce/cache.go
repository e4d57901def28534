package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the enhancement cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [fingerprint-prefix]",
	Short: "Invalidate cache entries",
	Long: `Invalidate all cache entries, or only those whose fingerprint starts
with the given prefix. Use after the project context changes (new
dependencies, large refactors) to force fresh enhancements.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCacheClear,
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired cache entries",
	RunE:  runCacheCleanup,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer p.Close()

	if p.cache == nil {
		fmt.Println("Cache is disabled in configuration.")
		return nil
	}

	stats, err := p.cache.Stats()
	if err != nil {
		return fmt.Errorf("read cache stats: %w", err)
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(stats)
	}

	fmt.Printf("Entries:       %d\n", stats.Entries)
	fmt.Printf("Expired:       %d\n", stats.Expired)
	fmt.Printf("Total hits:    %d\n", stats.TotalHits)
	fmt.Printf("Stored bytes:  %d\n", stats.StoredBytes)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer p.Close()

	if p.cache == nil {
		fmt.Println("Cache is disabled in configuration.")
		return nil
	}

	if len(args) == 1 {
		n, err := p.cache.Invalidate(args[0])
		if err != nil {
			return fmt.Errorf("invalidate cache: %w", err)
		}
		fmt.Printf("Invalidated %d entries.\n", n)
		return nil
	}

	if err := p.cache.InvalidateAll(); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	fmt.Println("Cache cleared.")
	return nil
}

func runCacheCleanup(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer p.Close()

	if p.cache == nil {
		fmt.Println("Cache is disabled in configuration.")
		return nil
	}

	n, err := p.cache.CleanupExpired()
	if err != nil {
		return fmt.Errorf("cleanup expired entries: %w", err)
	}
	fmt.Printf("Removed %d expired entries.\n", n)
	return nil
}
