// Package budget estimates prompt sizes against model context windows so
// callers can split work before a request overruns the model.
package budget

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultContextTokens is assumed for models that are not recognised.
const DefaultContextTokens = 8192

// MessageOverheadTokens covers role markers and framing per chat message.
const MessageOverheadTokens = 8

// EstimateTokens returns a conservative token estimate for s: about four
// ASCII characters per token, and one token per non-ASCII rune since kana and
// kanji rarely share tokens.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	ascii, other := 0, 0
	for _, r := range s {
		if r < utf8.RuneSelf {
			ascii++
		} else {
			other++
		}
	}
	return int(math.Ceil(float64(ascii)/4.0)) + other
}

// EstimatePromptTokens sums the estimate over chat messages, including the
// per-message framing.
func EstimatePromptTokens(messages ...string) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m) + MessageOverheadTokens
	}
	return total
}

// EstimateJapaneseOutput estimates the tokens needed to answer English text
// with its Japanese translation: roughly one rune per two English characters,
// one token per rune, plus the JSON quoting.
func EstimateJapaneseOutput(english string) int {
	n := utf8.RuneCountInString(english)
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n)/2.0)) + 16
}

var contextSuffix = regexp.MustCompile(`(\d+)([km])$`)

// ModelContextTokens returns the context window for modelName. Names ending
// in a size such as "-32k" or "-1m" are taken at their word.
func ModelContextTokens(modelName string) int {
	name := strings.ToLower(strings.TrimSpace(modelName))
	if name == "" {
		return DefaultContextTokens
	}
	if v, ok := knownModelMax[name]; ok {
		return v
	}
	if m := contextSuffix.FindStringSubmatch(name); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			if m[2] == "m" {
				return n * 1_000_000
			}
			return n * 1_000
		}
	}
	if strings.Contains(name, "-mini") {
		return 128_000
	}
	return DefaultContextTokens
}

// HeadroomTokens is the larger of 5% of the context window and 512 tokens,
// kept free for tokenizer drift.
func HeadroomTokens(modelName string) int {
	dyn := (ModelContextTokens(modelName)*5 + 99) / 100
	if dyn < 512 {
		return 512
	}
	return dyn
}

// Fits reports whether a prompt of promptTokens plus an answer of
// outputTokens stays inside the model window after headroom.
func Fits(modelName string, promptTokens, outputTokens int) bool {
	limit := ModelContextTokens(modelName) - HeadroomTokens(modelName)
	return promptTokens+outputTokens <= limit
}

var knownModelMax = map[string]int{
	"gpt-4o":        128_000,
	"gpt-4o-mini":   128_000,
	"gpt-4-turbo":   128_000,
	"gpt-3.5-turbo": 16_384,
	"llama-3":       8_192,
	"llama-3.1":     128_000,
	"gpt-oss-20b":   4_096,
	"qwen2.5-7b":    32_768,
}
