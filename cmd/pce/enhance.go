package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"pce/internal/enhance"

	"github.com/spf13/cobra"
)

var (
	enhanceMaxTokens int
	enhanceSources   []string
	enhanceModel     string
	enhanceNoCache   bool
	enhanceTimeout   time.Duration
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance [prompt]",
	Short: "Enhance a prompt with project context",
	Long: `Enhance a prompt with detected frameworks, repository facts,
documentation, and relevant code snippets. The prompt is read from the
argument, or from stdin when no argument is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnhance,
}

func init() {
	enhanceCmd.Flags().IntVar(&enhanceMaxTokens, "max-tokens", 0, "Context token budget (default from config)")
	enhanceCmd.Flags().StringSliceVar(&enhanceSources, "sources", nil, "Restrict sources: fact, snippet, doc")
	enhanceCmd.Flags().StringVar(&enhanceModel, "model", "", "Downstream model name (cache key component)")
	enhanceCmd.Flags().BoolVar(&enhanceNoCache, "no-cache", false, "Bypass the enhancement cache")
	enhanceCmd.Flags().DurationVar(&enhanceTimeout, "timeout", 30*time.Second, "Overall request timeout")
	rootCmd.AddCommand(enhanceCmd)
}

func runEnhance(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(args)
	if err != nil {
		return err
	}

	p, err := buildPipeline(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), enhanceTimeout)
	defer cancel()

	result, err := p.engine.Enhance(ctx, prompt, enhance.Options{
		MaxContextTokens: enhanceMaxTokens,
		Sources:          enhanceSources,
		Model:            enhanceModel,
		BypassCache:      enhanceNoCache,
	})
	if err != nil {
		return fmt.Errorf("enhancement failed: %w", err)
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	fmt.Println(result.EnhancedText)

	fmt.Fprintf(os.Stderr, "\n[cache hit: %v", result.CacheHit)
	if len(result.Frameworks) > 0 {
		fmt.Fprintf(os.Stderr, ", frameworks: %s", strings.Join(result.Frameworks, ", "))
	}
	fmt.Fprintf(os.Stderr, ", context tokens: %d]\n", result.ContextSummary.TotalTokens)
	return nil
}

func readPrompt(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("empty prompt: pass it as an argument or on stdin")
	}
	return prompt, nil
}
