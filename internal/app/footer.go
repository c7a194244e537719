package app

import (
	"strconv"
	"strings"
)

// appendReproFooter appends a deterministic footer recording the settings
// that shaped the stored data.
func appendReproFooter(markdown string, meta manifestMeta) string {
	var b strings.Builder
	b.WriteString(markdown)
	b.WriteString("\n\n---\n")
	b.WriteString("Reproducibility: ")
	b.WriteString("translator=")
	b.WriteString(meta.Translator)
	b.WriteString("; model=")
	b.WriteString(strings.TrimSpace(meta.Model))
	b.WriteString("; llm_base_url=")
	b.WriteString(strings.TrimSpace(meta.LLMBaseURL))
	b.WriteString("; policy_version=")
	b.WriteString(strconv.Itoa(meta.PolicyVersion))
	b.WriteString("; http_cache=")
	b.WriteString(strconv.FormatBool(meta.HTTPCache))
	b.WriteString("; llm_cache=")
	b.WriteString(strconv.FormatBool(meta.LLMCache))
	b.WriteString("\n")
	return b.String()
}
