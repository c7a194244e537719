package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/goreader/internal/translate"
)

const bookText = `The Project Gutenberg eBook of The Happy Prince

*** START OF THE PROJECT GUTENBERG EBOOK THE HAPPY PRINCE ***

CONTENTS

The Happy Prince
The Selfish Giant

THE HAPPY PRINCE

High above the city stood the statue of the Happy Prince. He was gilded all over with thin leaves of fine gold.

"He is as beautiful as a weathercock," remarked one of the Town Councillors.

THE SELFISH GIANT

Every afternoon the children used to play in the garden. It was a large lovely garden.

*** END OF THE PROJECT GUTENBERG EBOOK THE HAPPY PRINCE ***
`

type fixture struct {
	srv        *httptest.Server
	cfg        Config
	bookHits   atomic.Int32
	deeplTexts atomic.Int32
}

// newFixture serves the book and a DeepL compatible endpoint from one test
// server and writes a catalog pointing at it.
func newFixture(t *testing.T, body string) *fixture {
	t.Helper()
	f := &fixture{}
	mux := http.NewServeMux()
	mux.HandleFunc("/book.txt", func(w http.ResponseWriter, r *http.Request) {
		f.bookHits.Add(1)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/v2/translate", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "DeepL-Auth-Key test-key" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		var req struct {
			Text []string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type tr struct {
			Text string `json:"text"`
		}
		out := struct {
			Translations []tr `json:"translations"`
		}{}
		for i := range req.Text {
			out.Translations = append(out.Translations, tr{Text: fmt.Sprintf("訳%d", i+1)})
		}
		f.deeplTexts.Add(int32(len(req.Text)))
		_ = json.NewEncoder(w).Encode(out)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.json")
	catalogJSON := fmt.Sprintf(`{"books":[{
		"url": %q,
		"title_en": "The Happy Prince and Other Tales",
		"title_ja": "幸福な王子",
		"author_en": "Oscar Wilde",
		"skip_first_title_occurrence": true,
		"stories": [
			{"title_en": "The Happy Prince", "title_ja": "幸福な王子"},
			{"title_en": "The Selfish Giant", "title_ja": "わがままな大男"}
		]
	}]}`, f.srv.URL+"/book.txt")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalogJSON), 0o600))

	f.cfg = Config{
		Store:       StoreConfig{Driver: DriverMemory},
		Fetch:       FetchConfig{UserAgent: "goreader-test", Timeout: 5 * time.Second, MaxAttempts: 1},
		Cache:       CacheConfig{Dir: filepath.Join(dir, "cache")},
		Translate:   TranslateConfig{Backend: BackendStub, Interval: time.Millisecond},
		Server:      ServerConfig{Addr: "127.0.0.1:0"},
		Reports:     ReportsConfig{Dir: filepath.Join(dir, "reports")},
		CatalogPath: catalogPath,
	}
	return f
}

func TestIngest_DryRunWritesReportOnly(t *testing.T) {
	f := newFixture(t, bookText)
	f.cfg.Reports.PDF = true
	a, err := New(context.Background(), f.cfg)
	require.NoError(t, err)
	defer a.Close()

	out, err := a.Ingest(context.Background(), "1", true)
	require.NoError(t, err)

	assert.True(t, out.Result.DryRun())
	assert.Equal(t, 5, out.Result.TotalSentences)
	assert.Len(t, out.Result.Chapters, 2)

	md, err := os.ReadFile(out.Reports.Markdown)
	require.NoError(t, err)
	assert.Contains(t, string(md), "dry run")
	assert.FileExists(t, out.Reports.Manifest)
	assert.FileExists(t, out.Reports.PDF)

	books, err := a.Store().ListBooks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestIngest_StoresBookWithDeepLTranslations(t *testing.T) {
	f := newFixture(t, bookText)
	f.cfg.Translate = TranslateConfig{Backend: BackendDeepL, DeepLKey: "test-key", DeepLURL: f.srv.URL, BatchSize: 2, Interval: time.Millisecond}
	a, err := New(context.Background(), f.cfg)
	require.NoError(t, err)
	defer a.Close()

	out, err := a.Ingest(context.Background(), "The Happy Prince and Other Tales", false)
	require.NoError(t, err)
	require.False(t, out.Result.DryRun())
	assert.EqualValues(t, 5, f.deeplTexts.Load())

	ctx := context.Background()
	chapters, err := a.Store().ListChapters(ctx, out.Result.BookID)
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	sentences, err := a.Store().ListSentences(ctx, chapters[0].ID)
	require.NoError(t, err)
	require.Len(t, sentences, 3)
	for _, s := range sentences {
		assert.True(t, strings.HasPrefix(s.TextJa, "訳"), s.TextJa)
	}

	md, err := os.ReadFile(out.Reports.Markdown)
	require.NoError(t, err)
	assert.Contains(t, string(md), out.Result.BookID.String())
	assert.Contains(t, string(md), "Translator: deepl")
	assert.Empty(t, out.Reports.PDF)
}

func TestIngest_SecondRunUsesHTTPCacheAndReplaces(t *testing.T) {
	f := newFixture(t, bookText)
	a, err := New(context.Background(), f.cfg)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	first, err := a.Ingest(ctx, "", false)
	require.NoError(t, err)
	second, err := a.Ingest(ctx, "", false)
	require.NoError(t, err)

	assert.EqualValues(t, 1, second.Result.Replaced)
	assert.NotEqual(t, first.Result.BookID, second.Result.BookID)
	books, err := a.Store().ListBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 1)
}

func TestIngest_NoStories(t *testing.T) {
	f := newFixture(t, "*** START OF THE PROJECT GUTENBERG EBOOK X ***\nnothing to see\n")
	a, err := New(context.Background(), f.cfg)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Ingest(context.Background(), "1", false)
	assert.True(t, errors.Is(err, ErrNoStories), "got %v", err)
}

func TestIngest_UnknownBook(t *testing.T) {
	f := newFixture(t, bookText)
	a, err := New(context.Background(), f.cfg)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Ingest(context.Background(), "Moby Dick", true)
	assert.Error(t, err)
	assert.Zero(t, f.bookHits.Load())
}

func TestBackfill_UsesConfiguredTranslator(t *testing.T) {
	f := newFixture(t, bookText)
	a, err := New(context.Background(), f.cfg)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	out, err := a.Ingest(ctx, "", false)
	require.NoError(t, err)

	a.translator = translate.Func(func(_ context.Context, in []string) ([]string, error) {
		res := make([]string, len(in))
		for i := range in {
			res[i] = "済"
		}
		return res, nil
	})
	n, err := a.Backfill(ctx, out.Result.BookID)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestNew_LLMBackendNeedsModel(t *testing.T) {
	f := newFixture(t, bookText)
	f.cfg.Translate.Backend = BackendLLM
	_, err := New(context.Background(), f.cfg)
	require.Error(t, err)
}

func TestNew_BadPolicyPath(t *testing.T) {
	f := newFixture(t, bookText)
	f.cfg.PolicyPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(context.Background(), f.cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load policy")
}

func TestServer_SharesPolicy(t *testing.T) {
	f := newFixture(t, bookText)
	a, err := New(context.Background(), f.cfg)
	require.NoError(t, err)
	defer a.Close()

	srv := httptest.NewServer(a.Server().Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/policy")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Policy struct {
			Version int `json:"version"`
		} `json:"policy"`
		Ratios []int `json:"ratios"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, a.Policy().Version, body.Policy.Version)
	assert.Equal(t, []int{25, 50, 75, 100}, body.Ratios)
}
