package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	feedbackPattern string
	feedbackBad     bool
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback [prompt]",
	Short: "Report whether an enhancement was useful",
	Long: `Feed an outcome back into the adaptive pattern registry. By default the
prompt is re-run through detection and the outcome applies to every
matched pattern; --pattern targets a single pattern directly.

Positive feedback raises pattern weights, negative feedback lowers them.
Patterns whose weight falls below the configured floor stop matching
until they recover.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFeedback,
}

func init() {
	feedbackCmd.Flags().StringVar(&feedbackPattern, "pattern", "", "Apply the outcome to one pattern ID")
	feedbackCmd.Flags().BoolVar(&feedbackBad, "bad", false, "Report a negative outcome (default positive)")
	rootCmd.AddCommand(feedbackCmd)
}

func runFeedback(cmd *cobra.Command, args []string) error {
	if feedbackPattern == "" && len(args) == 0 {
		return fmt.Errorf("pass a prompt or --pattern")
	}

	p, err := buildPipeline(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer p.Close()

	successful := !feedbackBad

	var applied []string
	if feedbackPattern != "" {
		p.registry.RecordOutcome(feedbackPattern, successful)
		applied = []string{feedbackPattern}
	} else {
		for _, m := range p.registry.Match(args[0]) {
			p.registry.RecordOutcome(m.PatternID, successful)
			applied = append(applied, m.PatternID)
		}
	}

	// Make sure the outcome lands before the process exits
	p.registry.Sync()

	if len(applied) == 0 {
		fmt.Println("No patterns matched; nothing recorded.")
		return nil
	}

	outcome := "positive"
	if feedbackBad {
		outcome = "negative"
	}
	fmt.Printf("Recorded %s outcome for: %s\n", outcome, strings.Join(applied, ", "))
	return nil
}
