// Package dictionary answers word lookups for the reader: stored entries
// first, otherwise a model-generated entry that is stored for next time.
package dictionary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goreader/internal/llm"
	"github.com/hyperifyio/goreader/internal/store"
)

var (
	ErrInvalidWord = errors.New("invalid word")
	ErrNoModel     = errors.New("no language model configured")
)

// NormalizeWord lowercases w and keeps only ASCII letters, apostrophes and
// hyphens.
func NormalizeWord(w string) (string, error) {
	var b strings.Builder
	for _, r := range strings.ToLower(w) {
		if (r >= 'a' && r <= 'z') || r == '\'' || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidWord, w)
	}
	return b.String(), nil
}

const lookupSystemPrompt = `You are a concise English-Japanese learner's dictionary.
Reply with ONLY one JSON object, no code fences and no commentary:
{"meaning_ja":"short Japanese meaning","pos":"名詞/動詞/形容詞/副詞/前置詞/接続詞/その他","pronunciation":"IPA"}`

const explainSystemPrompt = `You are a dictionary assistant for Japanese learners of English.
Explain the given word as it is used in the given sentence, in Japanese, briefly.
Use exactly these headings, one or two lines each:
■ この文脈での意味:
■ ニュアンス:
■ 例文:`

type generatedEntry struct {
	MeaningJa     string `json:"meaning_ja"`
	POS           string `json:"pos"`
	Pronunciation string `json:"pronunciation"`
}

// Service combines the store with a model for words it has not seen.
type Service struct {
	Store  store.Store
	Caller *llm.Caller
	Logger *zerolog.Logger
}

func (s *Service) logger() *zerolog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return &log.Logger
}

// LookupResult is a dictionary entry and whether this call created it.
type LookupResult struct {
	Entry     store.WordEntry `json:"entry"`
	Generated bool            `json:"generated"`
}

// Lookup returns the stored entry for word or generates, stores and returns
// a new one. sentence is optional context for the model. When a concurrent
// lookup stored the word first, its entry is returned.
func (s *Service) Lookup(ctx context.Context, word, sentence string) (LookupResult, error) {
	norm, err := NormalizeWord(word)
	if err != nil {
		return LookupResult{}, err
	}

	e, err := s.Store.GetWordEntry(ctx, norm)
	if err == nil {
		return LookupResult{Entry: e}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return LookupResult{}, fmt.Errorf("lookup %q: %w", norm, err)
	}
	if s.Caller == nil {
		return LookupResult{}, ErrNoModel
	}

	user := fmt.Sprintf("Word: %q", norm)
	if strings.TrimSpace(sentence) != "" {
		user += fmt.Sprintf("\nUsed in: %q", sentence)
	}
	raw, err := s.Caller.Ask(ctx, "dictionary:lookup", lookupSystemPrompt, user)
	if err != nil {
		return LookupResult{}, fmt.Errorf("generate %q: %w", norm, err)
	}
	js, err := llm.ExtractJSON(raw)
	if err != nil {
		return LookupResult{}, fmt.Errorf("generate %q: %w", norm, err)
	}
	var gen generatedEntry
	if err := json.Unmarshal([]byte(js), &gen); err != nil {
		return LookupResult{}, fmt.Errorf("generate %q: decode: %w", norm, err)
	}
	if strings.TrimSpace(gen.MeaningJa) == "" {
		return LookupResult{}, fmt.Errorf("generate %q: %w", norm, llm.ErrEmptyResponse)
	}

	entry := store.WordEntry{
		Word:          norm,
		POS:           strings.TrimSpace(gen.POS),
		MeaningJa:     strings.TrimSpace(gen.MeaningJa),
		Pronunciation: strings.TrimSpace(gen.Pronunciation),
	}
	if err := s.Store.InsertWordEntry(ctx, &entry); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return LookupResult{}, fmt.Errorf("store %q: %w", norm, err)
		}
		s.logger().Debug().Str("word", norm).Msg("word stored concurrently; re-reading")
		existing, rerr := s.Store.GetWordEntry(ctx, norm)
		if rerr != nil {
			return LookupResult{}, fmt.Errorf("re-read %q: %w", norm, rerr)
		}
		return LookupResult{Entry: existing}, nil
	}
	s.logger().Info().Str("word", norm).Msg("generated dictionary entry")
	return LookupResult{Entry: entry, Generated: true}, nil
}

// Explanation is a contextual explanation and whether it came from the
// cache.
type Explanation struct {
	ResponseJa string `json:"response_ja"`
	Cached     bool   `json:"cached"`
}

// Explain returns a Japanese explanation of word as used in the sentence.
// When sentence is empty the stored sentence text is used.
func (s *Service) Explain(ctx context.Context, word string, sentenceID uuid.UUID, sentence string) (Explanation, error) {
	norm, err := NormalizeWord(word)
	if err != nil {
		return Explanation{}, err
	}
	if sentenceID == uuid.Nil {
		return Explanation{}, fmt.Errorf("explain %q: %w", norm, store.ErrNotFound)
	}

	cached, err := s.Store.GetAIExplanation(ctx, norm, sentenceID)
	if err == nil {
		return Explanation{ResponseJa: cached.ResponseJa, Cached: true}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Explanation{}, fmt.Errorf("explain %q: %w", norm, err)
	}
	if s.Caller == nil {
		return Explanation{}, ErrNoModel
	}

	if strings.TrimSpace(sentence) == "" {
		st, err := s.Store.GetSentence(ctx, sentenceID)
		if err != nil {
			return Explanation{}, fmt.Errorf("explain %q: %w", norm, err)
		}
		sentence = st.TextEn
	}

	user := fmt.Sprintf("Sentence: %q\nWord: %q", sentence, norm)
	answer, err := s.Caller.Ask(ctx, "dictionary:explain", explainSystemPrompt, user)
	if err != nil {
		return Explanation{}, fmt.Errorf("explain %q: %w", norm, err)
	}

	if err := s.Store.SaveAIExplanation(ctx, store.AIExplanation{Word: norm, SentenceID: sentenceID, ResponseJa: answer}); err != nil {
		// The answer is still good; only the cache write failed.
		s.logger().Warn().Err(err).Str("word", norm).Msg("explanation not cached")
	}
	return Explanation{ResponseJa: answer}, nil
}
