package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/goreader/internal/app"
	"github.com/hyperifyio/goreader/internal/difficulty"
)

var (
	ingestCatalog   string
	ingestBook      string
	ingestTranslate string
	ingestDryRun    bool
	ingestPDF       bool
	ingestJSON      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch, segment, score, translate and store one catalog book",
	Long: `Fetches a catalog book, extracts its stories, splits them into scored
sentences, translates every sentence and replaces any earlier copy in the
store. A report is written under the reports directory.

--dry-run stops after scoring: nothing is translated or stored.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill <book-id>",
	Short: "Retranslate placeholder sentences of a stored book",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackfill,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCatalog, "catalog", "", "catalog file (YAML or JSON); default is the built-in catalog")
	ingestCmd.Flags().StringVarP(&ingestBook, "book", "b", "", "book title or 1-based catalog index (default first book)")
	ingestCmd.Flags().StringVar(&ingestTranslate, "translate", "", "translation backend: stub, deepl or llm")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "plan only: no translation, nothing stored")
	ingestCmd.Flags().BoolVar(&ingestPDF, "pdf", false, "also write a PDF report")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(ingestCmd)

	backfillCmd.Flags().StringVar(&ingestTranslate, "translate", "", "translation backend: stub, deepl or llm")
	rootCmd.AddCommand(backfillCmd)
}

func applyIngestFlags() {
	if ingestCatalog != "" {
		cfg.CatalogPath = ingestCatalog
	}
	if ingestTranslate != "" {
		cfg.Translate.Backend = strings.ToLower(ingestTranslate)
	}
	if ingestPDF {
		cfg.Reports.PDF = true
	}
}

func runIngest(cmd *cobra.Command, _ []string) error {
	applyIngestFlags()
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.Ingest(ctx, ingestBook, ingestDryRun)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	if ingestJSON {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	printIngest(cmd, out)
	return nil
}

func printIngest(cmd *cobra.Command, out app.IngestOutput) {
	res := out.Result
	if res.DryRun() {
		cmd.Printf("%s (dry run)\n", res.Book.TitleEn)
	} else {
		cmd.Printf("%s stored as %s\n", res.Book.TitleEn, res.BookID)
		if res.Replaced > 0 {
			cmd.Printf("  replaced %d earlier cop%s\n", res.Replaced, plural(res.Replaced, "y", "ies"))
		}
	}
	cmd.Printf("  level %s, %d chapters, %d sentences, %d words\n",
		res.BookLevel, len(res.Chapters), res.TotalSentences, res.TotalWords)
	for _, ch := range res.Chapters {
		cmd.Printf("  [%d] %s: %d sentences, mean %.2f\n", ch.Number, ch.TitleEn, ch.Sentences, ch.MeanScore)
	}
	levels := make([]string, 0, len(difficulty.Levels))
	for _, l := range difficulty.Levels {
		levels = append(levels, fmt.Sprintf("%s=%d", l, res.Histogram[l]))
	}
	cmd.Printf("  %s\n", strings.Join(levels, " "))
	for _, w := range res.Warnings {
		cmd.Printf("  warning: %s\n", w)
	}
	if out.Reports.Markdown != "" {
		cmd.Printf("  report: %s\n", out.Reports.Markdown)
	}
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func runBackfill(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid book id %q: %w", args[0], err)
	}
	if ingestTranslate != "" {
		cfg.Translate.Backend = strings.ToLower(ingestTranslate)
	}
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Backfill(ctx, id)
	if err != nil {
		return err
	}
	cmd.Printf("updated %d sentences\n", n)
	return nil
}
