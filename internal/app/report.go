package app

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hyperifyio/goreader/internal/difficulty"
	"github.com/hyperifyio/goreader/internal/ingest"
)

// ReportPaths lists the files written for one ingestion.
type ReportPaths struct {
	Markdown string `json:"markdown"`
	Manifest string `json:"manifest"`
	PDF      string `json:"pdf,omitempty"`
}

// renderReport formats an ingestion result as Markdown.
func renderReport(res ingest.Result) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(res.Book.TitleEn)
	b.WriteString("\n\n")
	if res.Book.TitleJa != "" {
		b.WriteString("- Japanese title: " + res.Book.TitleJa + "\n")
	}
	if res.Book.AuthorEn != "" {
		b.WriteString("- Author: " + res.Book.AuthorEn + "\n")
	}
	b.WriteString("- Source: " + res.Book.URL + "\n")
	fmt.Fprintf(&b, "- Level: %s (policy v%d)\n", res.BookLevel, res.PolicyVersion)
	if res.DryRun() {
		b.WriteString("- Mode: dry run, nothing stored\n")
	} else {
		b.WriteString("- Book ID: " + res.BookID.String() + "\n")
		fmt.Fprintf(&b, "- Replaced earlier copies: %d\n", res.Replaced)
	}
	fmt.Fprintf(&b, "- Sentences: %d\n- Words: %d\n", res.TotalSentences, res.TotalWords)
	if !res.StartedAt.IsZero() && !res.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "- Duration: %s\n", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	}

	b.WriteString("\n## Chapters\n\n")
	b.WriteString("| # | Title | Japanese | Sentences | Words | Mean score | Levels |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, ch := range res.Chapters {
		fmt.Fprintf(&b, "| %d | %s | %s | %d | %d | %.2f | %s |\n",
			ch.Number, escapeCell(ch.TitleEn), escapeCell(ch.TitleJa), ch.Sentences, ch.Words, ch.MeanScore, formatLevels(ch.Levels))
	}

	b.WriteString("\n## Difficulty\n\n")
	b.WriteString("| Level | Sentences |\n|---|---|\n")
	for _, l := range difficulty.Levels {
		fmt.Fprintf(&b, "| %s | %d |\n", l, res.Histogram[l])
	}

	writeEnglishShare(&b, res.Chapters)

	if len(res.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range res.Warnings {
			b.WriteString("- " + w.String() + "\n")
		}
	}
	return b.String()
}

// writeEnglishShare tabulates, per chapter, the percentage of sentences shown
// in English at each ratio.
func writeEnglishShare(b *strings.Builder, chapters []ingest.ChapterStats) {
	var ratios []int
	for _, ch := range chapters {
		for r := range ch.EnglishShare {
			if !slices.Contains(ratios, r) {
				ratios = append(ratios, r)
			}
		}
	}
	if len(ratios) == 0 {
		return
	}
	slices.Sort(ratios)

	b.WriteString("\n## English share\n\n| # |")
	for _, r := range ratios {
		fmt.Fprintf(b, " %d%% |", r)
	}
	b.WriteString("\n|---|" + strings.Repeat("---|", len(ratios)) + "\n")
	for _, ch := range chapters {
		fmt.Fprintf(b, "| %d |", ch.Number)
		for _, r := range ratios {
			fmt.Fprintf(b, " %.0f%% |", ch.EnglishShare[r]*100)
		}
		b.WriteString("\n")
	}
}

func formatLevels(counts map[difficulty.Level]int) string {
	parts := make([]string, 0, len(counts))
	for _, l := range difficulty.Levels {
		if n := counts[l]; n > 0 {
			parts = append(parts, string(l)+":"+strconv.Itoa(n))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// writeReports writes the Markdown report, its JSON sidecar and, when
// withPDF is set, a PDF rendition under dir.
func writeReports(dir string, withPDF bool, res ingest.Result, meta manifestMeta) (ReportPaths, error) {
	out := deriveReportPath(dir, res.Book)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return ReportPaths{}, fmt.Errorf("create reports dir: %w", err)
	}
	entries := buildManifestEntries(res.Chapters)
	md := renderReport(res)
	md = appendEmbeddedManifest(md, meta, entries)
	md = appendReproFooter(md, meta)
	if err := os.WriteFile(out, []byte(md), 0o644); err != nil {
		return ReportPaths{}, fmt.Errorf("write report: %w", err)
	}
	paths := ReportPaths{Markdown: out, Manifest: deriveManifestSidecarPath(out)}

	js, err := marshalManifestJSON(meta, entries, res)
	if err != nil {
		return paths, fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(paths.Manifest, js, 0o644); err != nil {
		return paths, fmt.Errorf("write manifest: %w", err)
	}

	if withPDF {
		paths.PDF = strings.TrimSuffix(out, ".md") + ".pdf"
		if err := writeSimplePDF(md, paths.PDF); err != nil {
			return paths, fmt.Errorf("write pdf: %w", err)
		}
	}
	return paths, nil
}
