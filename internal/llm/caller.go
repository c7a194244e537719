package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/goreader/internal/cache"
)

var (
	ErrEmptyResponse = errors.New("model returned no content")
	ErrNoJSON        = errors.New("no JSON value in model output")
	ErrModelMissing  = errors.New("model not served by endpoint")
)

// Caller sends single-turn prompts to one model, memoising answers in Cache
// when it is set.
type Caller struct {
	Client      Client
	Model       string
	Temperature float32
	Cache       *cache.LLMCache
}

// Ask returns the model's answer to system+user. namespace separates cache
// entries of different features that might share a prompt.
func (c *Caller) Ask(ctx context.Context, namespace, system, user string) (string, error) {
	key := cache.Key(namespace, c.Model, system, user)
	if c.Cache != nil {
		if b, ok, err := c.Cache.Get(ctx, key); err == nil && ok {
			return string(b), nil
		}
	}
	resp, err := c.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.Model,
		Temperature: c.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyResponse
	}
	if c.Cache != nil {
		_ = c.Cache.Save(ctx, key, []byte(out))
	}
	return out, nil
}

// ExtractJSON pulls the first JSON object or array out of model output,
// tolerating markdown code fences and surrounding prose.
func ExtractJSON(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", ErrNoJSON
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}

// Preflight checks that model is listed by the endpoint. Providers that
// cannot list models pass.
func Preflight(ctx context.Context, c Client, model string) error {
	lister, ok := c.(ModelLister)
	if !ok {
		return nil
	}
	models, err := lister.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range models.Models {
		if m.ID == model {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrModelMissing, model)
}
