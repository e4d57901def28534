package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and test the detection pattern catalog",
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List detection patterns with learned weights",
	RunE:  runPatternsList,
}

var patternsMatchCmd = &cobra.Command{
	Use:   "match [text]",
	Short: "Show which patterns match a piece of text",
	Args:  cobra.ExactArgs(1),
	RunE:  runPatternsMatch,
}

func init() {
	patternsCmd.AddCommand(patternsListCmd)
	patternsCmd.AddCommand(patternsMatchCmd)
	rootCmd.AddCommand(patternsCmd)
}

func runPatternsList(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer p.Close()

	all := p.registry.Patterns()

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(all)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tWEIGHT\tUSAGE\tSUCCESS\tSTATE")
	for _, pat := range all {
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%d\t%d\t%s\n",
			pat.ID, pat.Category, pat.Weight, pat.UsageCount, pat.SuccessCount, pat.State)
	}
	return w.Flush()
}

func runPatternsMatch(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer p.Close()

	matches := p.registry.Match(args[0])

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(matches)
	}

	if len(matches) == 0 {
		fmt.Println("No patterns matched.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tWEIGHT\tSTRENGTH\tSCORE")
	for _, m := range matches {
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%.2f\t%.3f\n",
			m.PatternID, m.Category, m.Weight, m.Strength, m.Score)
	}
	return w.Flush()
}
