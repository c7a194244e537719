package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperifyio/goreader/internal/budget"
	"github.com/hyperifyio/goreader/internal/llm"
)

const llmSystemPrompt = `You translate English literary sentences into natural Japanese for language learners.
Return ONLY a JSON array of strings: one translation per input sentence, same order, same count.
Do not merge or split sentences. Do not add commentary.`

// LLM translates through a chat model. Answers are cached by the Caller.
// A batch whose prompt and expected answer would not fit the model's
// context window is halved until it does.
type LLM struct {
	Caller *llm.Caller
}

func (t *LLM) TranslateBatch(ctx context.Context, sentences []string) ([]string, error) {
	if len(sentences) == 0 {
		return []string{}, nil
	}
	in, err := json.Marshal(sentences)
	if err != nil {
		return nil, err
	}
	user := "Translate these sentences:\n" + string(in)

	prompt := budget.EstimatePromptTokens(llmSystemPrompt, user)
	if len(sentences) > 1 && !budget.Fits(t.Caller.Model, prompt, budget.EstimateJapaneseOutput(string(in))) {
		mid := len(sentences) / 2
		head, err := t.TranslateBatch(ctx, sentences[:mid])
		if err != nil {
			return nil, err
		}
		tail, err := t.TranslateBatch(ctx, sentences[mid:])
		if err != nil {
			return nil, err
		}
		return append(head, tail...), nil
	}

	raw, err := t.Caller.Ask(ctx, "translate:ja", llmSystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("llm translate: %w", err)
	}
	js, err := llm.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("llm translate: %w", err)
	}
	var out []string
	if err := json.Unmarshal([]byte(js), &out); err != nil {
		return nil, fmt.Errorf("llm translate: decode: %w", err)
	}
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	if err := checkLength(sentences, out); err != nil {
		return nil, fmt.Errorf("llm translate: %w", err)
	}
	return out, nil
}
