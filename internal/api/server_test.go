package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/goreader/internal/difficulty"
	"github.com/hyperifyio/goreader/internal/dictionary"
	"github.com/hyperifyio/goreader/internal/llm"
	"github.com/hyperifyio/goreader/internal/ratio"
	"github.com/hyperifyio/goreader/internal/store"
	"github.com/hyperifyio/goreader/internal/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	srv      *Server
	router   *gin.Engine
	book     store.Book
	chapter  store.Chapter
	sentence store.Sentence
}

type cannedClient struct{ answer string }

func (c cannedClient) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: c.answer}}}}, nil
}

func newFixture(t *testing.T, answer string) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	b := store.Book{TitleEn: "The Happy Prince", CEFR: difficulty.B1}
	require.NoError(t, st.InsertBook(ctx, &b))
	c := store.Chapter{BookID: b.ID, ChapterNumber: 1, TitleEn: "The Happy Prince", SentenceCount: 2}
	require.NoError(t, st.InsertChapter(ctx, &c))
	ss := []store.Sentence{
		{ChapterID: c.ID, Position: 1, TextEn: "Easy one here.", DifficultyScore: 0.29, CEFR: difficulty.A2},
		{ChapterID: c.ID, Position: 2, TextEn: "Considerably harder sentence.", DifficultyScore: 0.3, CEFR: difficulty.A2},
	}
	require.NoError(t, st.InsertSentences(ctx, ss))

	srv := &Server{
		Store:      st,
		Dictionary: &dictionary.Service{Store: st, Caller: &llm.Caller{Client: cannedClient{answer: answer}, Model: "test"}},
		Decider:    ratio.NewDecider(difficulty.DefaultPolicy()),
	}
	return &fixture{srv: srv, router: srv.Router(), book: b, chapter: c, sentence: ss[0]}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "")
	rec, body := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestBooksAndChapters(t *testing.T) {
	f := newFixture(t, "")

	rec, body := f.do(t, http.MethodGet, "/api/books", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	books := body["books"].([]any)
	require.Len(t, books, 1)
	assert.Equal(t, "The Happy Prince", books[0].(map[string]any)["title_en"])

	rec, body = f.do(t, http.MethodGet, "/api/books/"+f.book.ID.String()+"/chapters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["chapters"], 1)

	rec, body = f.do(t, http.MethodGet, "/api/books/"+uuid.NewString()+"/chapters", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", body["error"])

	rec, _ = f.do(t, http.MethodGet, "/api/books/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSentencesDefaultLang(t *testing.T) {
	f := newFixture(t, "")
	path := "/api/chapters/" + f.chapter.ID.String() + "/sentences"

	cases := []struct {
		query string
		ratio float64
		want  []string
	}{
		{"?ratio=25", 25, []string{"en", "ja"}},
		{"?ratio=100", 100, []string{"en", "en"}},
		{"?ratio=75", 75, []string{"en", "en"}},
		{"", DefaultRatio, []string{"en", "en"}},
	}
	for _, tc := range cases {
		rec, body := f.do(t, http.MethodGet, path+tc.query, nil)
		require.Equal(t, http.StatusOK, rec.Code, tc.query)
		assert.Equal(t, tc.ratio, body["ratio"], tc.query)
		sentences := body["sentences"].([]any)
		require.Len(t, sentences, 2)
		for i, s := range sentences {
			m := s.(map[string]any)
			assert.Equal(t, tc.want[i], m["default_lang"], tc.query)
			assert.Equal(t, float64(i+1), m["position"])
		}
	}
}

func TestSentencesInvalidRatio(t *testing.T) {
	f := newFixture(t, "")
	path := "/api/chapters/" + f.chapter.ID.String() + "/sentences"
	for _, q := range []string{"?ratio=abc", "?ratio=101", "?ratio=-1", "?ratio=0", "?ratio=37"} {
		rec, body := f.do(t, http.MethodGet, path+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.NotEmpty(t, body["error"], q)
	}
	rec, _ := f.do(t, http.MethodGet, "/api/chapters/"+uuid.NewString()+"/sentences", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDictionaryLookup(t *testing.T) {
	f := newFixture(t, `{"meaning_ja":"ツバメ","pos":"名詞","pronunciation":"/ˈswɒləʊ/"}`)

	rec, body := f.do(t, http.MethodPost, "/api/dictionary/lookup", map[string]string{"word": "Swallow", "sentence_text": "The Swallow flew."})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["generated"])
	assert.Equal(t, "swallow", body["entry"].(map[string]any)["word"])

	rec, body = f.do(t, http.MethodPost, "/api/dictionary/lookup", map[string]string{"word": "swallow"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["generated"])

	rec, _ = f.do(t, http.MethodPost, "/api/dictionary/lookup", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/dictionary/lookup", map[string]string{"word": "123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDictionaryExplain(t *testing.T) {
	f := newFixture(t, "■ この文脈での意味: 簡単")
	req := map[string]string{"word": "easy", "sentence_id": f.sentence.ID.String()}

	rec, body := f.do(t, http.MethodPost, "/api/dictionary/ai", req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["cached"])

	rec, body = f.do(t, http.MethodPost, "/api/dictionary/ai", req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["cached"])

	rec, _ = f.do(t, http.MethodPost, "/api/dictionary/ai", map[string]string{"word": "easy", "sentence_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/api/dictionary/ai", map[string]string{"word": "easy"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDictionaryUnavailable(t *testing.T) {
	f := newFixture(t, "")
	f.srv.Dictionary = nil
	rec, body := f.do(t, http.MethodPost, "/api/dictionary/lookup", map[string]string{"word": "reed"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, body["error"])
}

func TestPolicy(t *testing.T) {
	f := newFixture(t, "")
	rec, body := f.do(t, http.MethodGet, "/api/policy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{25.0, 50.0, 75.0, 100.0}, body["ratios"])
}
