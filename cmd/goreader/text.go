package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperifyio/goreader/internal/difficulty"
	"github.com/hyperifyio/goreader/internal/ratio"
	"github.com/hyperifyio/goreader/internal/segment"
)

var segmentCmd = &cobra.Command{
	Use:   "segment [file|-]",
	Short: "Split text into scored sentences (JSON lines)",
	Long: `Reads a story body from a file, or from stdin when the argument is "-" or
missing, and prints one JSON object per sentence with its difficulty score and
CEFR label.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSegment,
}

var scoreCmd = &cobra.Command{
	Use:   "score <sentence>",
	Short: "Score one sentence and show the language chosen at each ratio",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScore,
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Print the active difficulty policy as YAML",
	Args:  cobra.NoArgs,
	RunE:  runPolicy,
}

func init() {
	rootCmd.AddCommand(segmentCmd, scoreCmd, policyCmd)
}

// activePolicy loads the configured policy without opening the store.
func activePolicy() (difficulty.Policy, error) {
	if cfg.PolicyPath == "" {
		return difficulty.DefaultPolicy(), nil
	}
	return difficulty.LoadPolicy(cfg.PolicyPath)
}

type segmentLine struct {
	Position int              `json:"position"`
	Text     string           `json:"text"`
	Score    float64          `json:"score"`
	Level    difficulty.Level `json:"cefr"`
	Words    int              `json:"words"`
}

func runSegment(cmd *cobra.Command, args []string) error {
	policy, err := activePolicy()
	if err != nil {
		return err
	}
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	for i, s := range segment.Split(string(body)) {
		score := difficulty.Score(s)
		line := segmentLine{
			Position: i + 1,
			Text:     s,
			Score:    score,
			Level:    policy.Classify(score),
			Words:    segment.WordCount(s),
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

func runScore(cmd *cobra.Command, args []string) error {
	policy, err := activePolicy()
	if err != nil {
		return err
	}
	text := strings.Join(args, " ")
	c := difficulty.Analyze(text)
	score := difficulty.Score(text)

	cmd.Printf("score %.2f  level %s  (tokens %d, avg word length %.2f)\n",
		score, policy.Classify(score), c.Tokens, c.AvgWordLength)
	for _, r := range ratio.Values(policy) {
		th, _ := ratio.Threshold(r, policy)
		lang := ratio.Decide(score, r, policy)
		if r == ratio.AllEnglish {
			cmd.Printf("  ratio %3d: %s\n", r, lang)
			continue
		}
		cmd.Printf("  ratio %3d: %s (threshold %.2f)\n", r, lang, th)
	}
	return nil
}

func runPolicy(cmd *cobra.Command, _ []string) error {
	policy, err := activePolicy()
	if err != nil {
		return err
	}
	data, err := policy.YAML()
	if err != nil {
		return err
	}
	cmd.Print(string(data))
	return nil
}
