package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/goreader/internal/dictionary"
	"github.com/hyperifyio/goreader/internal/llm"
	"github.com/hyperifyio/goreader/internal/store/memory"
	"github.com/hyperifyio/goreader/internal/translate"
)

func newCaller(t *testing.T) *llm.Caller {
	t.Helper()
	srv := httptest.NewServer(newMux("stub-model"))
	t.Cleanup(srv.Close)
	provider := llm.NewOpenAI(srv.URL+"/v1", "unused", srv.Client())
	require.NoError(t, llm.Preflight(context.Background(), provider, "stub-model"))
	return &llm.Caller{Client: provider, Model: "stub-model"}
}

func TestStub_TranslatesThroughLLMBackend(t *testing.T) {
	tr := &translate.LLM{Caller: newCaller(t)}
	out, err := tr.TranslateBatch(context.Background(), []string{"The cat sat.", "It was \"cold\"."})
	require.NoError(t, err)
	assert.Equal(t, []string{stubPrefix + "The cat sat.", stubPrefix + "It was \"cold\"."}, out)
}

func TestStub_DictionaryLookupAndExplain(t *testing.T) {
	svc := &dictionary.Service{Store: memory.New(), Caller: newCaller(t)}
	ctx := context.Background()

	res, err := svc.Lookup(ctx, "Swallow", "The Swallow flew.")
	require.NoError(t, err)
	assert.True(t, res.Generated)
	assert.Equal(t, "swallow", res.Entry.Word)
	assert.Equal(t, "（スタブ）swallow", res.Entry.MeaningJa)

	again, err := svc.Lookup(ctx, "swallow", "")
	require.NoError(t, err)
	assert.False(t, again.Generated)
}

func TestReply_UnknownPromptRejected(t *testing.T) {
	_, err := reply("You are a poet.", "write")
	require.Error(t, err)

	got, err := reply("■ この文脈での意味:", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "■ この文脈での意味"))
}
