package app

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/hyperifyio/goreader/internal/ingest"
)

// manifestEntry is a compact record of one stored chapter.
type manifestEntry struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	SHA256    string `json:"sha256"`
	Sentences int    `json:"sentences"`
	Words     int    `json:"words"`
}

// manifestMeta captures run details that aid reproducibility.
type manifestMeta struct {
	SourceURL     string    `json:"source_url"`
	ContentType   string    `json:"content_type"`
	Translator    string    `json:"translator"`
	Model         string    `json:"model,omitempty"`
	LLMBaseURL    string    `json:"llm_base_url,omitempty"`
	PolicyVersion int       `json:"policy_version"`
	ChapterCount  int       `json:"chapter_count"`
	HTTPCache     bool      `json:"http_cache"`
	LLMCache      bool      `json:"llm_cache"`
	DryRun        bool      `json:"dry_run"`
	GeneratedAt   time.Time `json:"generated_at"`
}

func buildManifestEntries(chapters []ingest.ChapterStats) []manifestEntry {
	out := make([]manifestEntry, 0, len(chapters))
	for _, ch := range chapters {
		out = append(out, manifestEntry{
			Number:    ch.Number,
			Title:     strings.TrimSpace(ch.TitleEn),
			SHA256:    ch.SHA256,
			Sentences: ch.Sentences,
			Words:     ch.Words,
		})
	}
	return out
}

// appendEmbeddedManifest appends a Markdown manifest listing each chapter
// with the digest of the exact body that was segmented.
func appendEmbeddedManifest(markdown string, meta manifestMeta, entries []manifestEntry) string {
	var b strings.Builder
	b.WriteString(markdown)
	b.WriteString("\n\n## Manifest\n\n")
	b.WriteString("- Source: ")
	b.WriteString(strings.TrimSpace(meta.SourceURL))
	b.WriteString("\n- Content type: ")
	b.WriteString(strings.TrimSpace(meta.ContentType))
	b.WriteString("\n- Translator: ")
	b.WriteString(meta.Translator)
	if meta.Model != "" {
		b.WriteString("\n- Model: ")
		b.WriteString(strings.TrimSpace(meta.Model))
	}
	b.WriteString("\n- Policy version: ")
	b.WriteString(strconv.Itoa(meta.PolicyVersion))
	b.WriteString("\n- Chapters: ")
	b.WriteString(strconv.Itoa(meta.ChapterCount))
	b.WriteString("\n- HTTP cache: ")
	b.WriteString(strconv.FormatBool(meta.HTTPCache))
	b.WriteString("\n- LLM cache: ")
	b.WriteString(strconv.FormatBool(meta.LLMCache))
	b.WriteString("\n- Generated: ")
	b.WriteString(meta.GeneratedAt.UTC().Format(time.RFC3339))
	b.WriteString("\n\n")

	for _, e := range entries {
		b.WriteString(strconv.Itoa(e.Number))
		b.WriteString(". ")
		b.WriteString(e.Title)
		b.WriteString(" sha256=")
		b.WriteString(e.SHA256)
		b.WriteString("; sentences=")
		b.WriteString(strconv.Itoa(e.Sentences))
		b.WriteString("; words=")
		b.WriteString(strconv.Itoa(e.Words))
		b.WriteString("\n")
	}
	return b.String()
}

// marshalManifestJSON encodes the machine-readable sidecar.
func marshalManifestJSON(meta manifestMeta, entries []manifestEntry, res ingest.Result) ([]byte, error) {
	payload := struct {
		Meta     manifestMeta    `json:"meta"`
		Chapters []manifestEntry `json:"chapters"`
		Result   ingest.Result   `json:"result"`
	}{Meta: meta, Chapters: entries, Result: res}
	return json.MarshalIndent(payload, "", "  ")
}

func deriveManifestSidecarPath(outputPath string) string {
	return outputPath + ".manifest.json"
}
