package budget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 5, EstimateTokens("幸福な王子"))
	assert.Equal(t, 1+3, EstimateTokens("Hi 王子様"))
}

func TestEstimatePromptTokens_AddsFraming(t *testing.T) {
	assert.Equal(t, 2*MessageOverheadTokens+1+1, EstimatePromptTokens("abcd", "efgh"))
}

func TestEstimateJapaneseOutput(t *testing.T) {
	assert.Zero(t, EstimateJapaneseOutput(""))
	assert.Equal(t, 4+16, EstimateJapaneseOutput("The cat"))
}

func TestModelContextTokens(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"", DefaultContextTokens},
		{"gpt-4o", 128_000},
		{"  GPT-4o-Mini ", 128_000},
		{"gpt-oss-20b", 4_096},
		{"mistral-32k", 32_000},
		{"gemini-1m", 1_000_000},
		{"acme-mini-instruct", 128_000},
		{"unknown-model", DefaultContextTokens},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, ModelContextTokens(tt.model))
		})
	}
}

func TestHeadroomTokens(t *testing.T) {
	assert.Equal(t, 512, HeadroomTokens("gpt-oss-20b"))
	assert.Equal(t, 6_400, HeadroomTokens("gpt-4o"))
}

func TestFits(t *testing.T) {
	assert.True(t, Fits("gpt-oss-20b", 3000, 584))
	assert.False(t, Fits("gpt-oss-20b", 3000, 585))

	long := strings.Repeat("word ", 20_000)
	assert.False(t, Fits("gpt-oss-20b", EstimateTokens(long), 0))
	assert.True(t, Fits("gpt-4o", EstimateTokens(long), 0))
}
