package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// stubPrefix marks canned translations so they are easy to spot in the
// store.
const stubPrefix = "[stub] "

var quotedWord = regexp.MustCompile(`Word: "([^"]*)"`)

// newMux serves the two OpenAI endpoints goreader uses, answering the
// translation and dictionary prompts with deterministic canned replies.
func newMux(model string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		sys, user := "", ""
		if len(req.Messages) > 0 {
			sys = req.Messages[0].Content
		}
		if len(req.Messages) > 1 {
			user = req.Messages[1].Content
		}
		content, err := reply(sys, user)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "chat.completion",
			"model":  model,
			"choices": []map[string]any{
				{"index": 0, "finish_reason": "stop", "message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	})
	return mux
}

func reply(sys, user string) (string, error) {
	switch {
	case strings.Contains(sys, "JSON array of strings"):
		start := strings.Index(user, "[")
		if start < 0 {
			return "", fmt.Errorf("no sentence array in prompt")
		}
		var in []string
		if err := json.Unmarshal([]byte(user[start:]), &in); err != nil {
			return "", fmt.Errorf("decode sentences: %w", err)
		}
		out := make([]string, len(in))
		for i, s := range in {
			out[i] = stubPrefix + s
		}
		b, err := json.Marshal(out)
		return string(b), err
	case strings.Contains(sys, "learner's dictionary"):
		word := ""
		if m := quotedWord.FindStringSubmatch(user); m != nil {
			word = m[1]
		}
		b, err := json.Marshal(map[string]string{
			"meaning_ja":    "（スタブ）" + word,
			"pos":           "その他",
			"pronunciation": "/" + word + "/",
		})
		return string(b), err
	case strings.Contains(sys, "この文脈での意味"):
		return "■ この文脈での意味: スタブの説明です。\n■ ニュアンス: なし。\n■ 例文: This is a stub.", nil
	default:
		return "", fmt.Errorf("unexpected system prompt")
	}
}
