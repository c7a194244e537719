// Package segment splits story bodies into paragraphs and sentences.
package segment

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MinParagraphLen: paragraphs of this many runes or fewer are page
	// numbers, stray headings and similar noise.
	MinParagraphLen = 10
	// MinSentenceLen: sentences of this many runes or fewer are dropped.
	MinSentenceLen = 3
)

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	sentenceRe     = regexp.MustCompile(`[^.!?]*[.!?]+["'\x{201D}\x{2019}]?\s*`)
)

// Paragraphs splits body on blank lines, collapses whitespace inside each
// paragraph to single spaces and drops paragraphs of MinParagraphLen runes or
// fewer.
func Paragraphs(body string) []string {
	out := []string{}
	for _, p := range paragraphBreak.Split(body, -1) {
		p = strings.Join(strings.Fields(p), " ")
		if utf8.RuneCountInString(p) <= MinParagraphLen {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Split returns the sentences of body in order. A closing quote directly
// after the terminal punctuation stays with its sentence. A paragraph with no
// terminator is one sentence; otherwise text after the last terminator is
// dropped.
func Split(body string) []string {
	out := []string{}
	for _, p := range Paragraphs(body) {
		for _, s := range sentencesOf(p) {
			s = strings.TrimSpace(s)
			if utf8.RuneCountInString(s) <= MinSentenceLen {
				continue
			}
			out = append(out, s)
		}
	}
	return out
}

func sentencesOf(p string) []string {
	locs := sentenceRe.FindAllStringIndex(p, -1)
	if len(locs) == 0 {
		return []string{p}
	}
	parts := make([]string, 0, len(locs))
	for _, loc := range locs {
		parts = append(parts, p[loc[0]:loc[1]])
	}
	return parts
}

// WordCount is the number of whitespace separated tokens in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// TotalWords sums WordCount over sentences.
func TotalWords(sentences []string) int {
	n := 0
	for _, s := range sentences {
		n += WordCount(s)
	}
	return n
}
