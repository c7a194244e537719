package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	deeplFreeURL = "https://api-free.deepl.com"
	deeplProURL  = "https://api.deepl.com"
)

// ErrMissingKey is returned when a backend needs credentials it was not given.
var ErrMissingKey = errors.New("translation API key not configured")

// DeepL calls the DeepL REST API v2.
type DeepL struct {
	APIKey string
	// BaseURL overrides the host picked from the key. Free-tier keys end in
	// ":fx" and go to api-free.deepl.com.
	BaseURL    string
	SourceLang string
	TargetLang string
	HTTPClient *http.Client
}

type deeplRequest struct {
	Text       []string `json:"text"`
	SourceLang string   `json:"source_lang"`
	TargetLang string   `json:"target_lang"`
}

type deeplResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

// Endpoint returns the translate URL for the configured key.
func (d *DeepL) Endpoint() string {
	base := d.BaseURL
	if base == "" {
		base = deeplProURL
		if strings.HasSuffix(d.APIKey, ":fx") {
			base = deeplFreeURL
		}
	}
	return strings.TrimRight(base, "/") + "/v2/translate"
}

func (d *DeepL) TranslateBatch(ctx context.Context, sentences []string) ([]string, error) {
	if d.APIKey == "" {
		return nil, ErrMissingKey
	}
	if len(sentences) == 0 {
		return []string{}, nil
	}
	payload := deeplRequest{Text: sentences, SourceLang: or(d.SourceLang, "EN"), TargetLang: or(d.TargetLang, "JA")}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+d.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := d.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepl: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("deepl: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out deeplResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("deepl: decode response: %w", err)
	}
	texts := make([]string, len(out.Translations))
	for i, t := range out.Translations {
		texts[i] = t.Text
	}
	if err := checkLength(sentences, texts); err != nil {
		return nil, fmt.Errorf("deepl: %w", err)
	}
	return texts, nil
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
