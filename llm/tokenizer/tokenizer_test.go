package tokenizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingTokenizer struct{}

func (failingTokenizer) CountTokens(string) (int, error) { return 0, errors.New("no bpe") }
func (failingTokenizer) CountMessages([]Message) (int, error) { return 0, errors.New("no bpe") }
func (failingTokenizer) Name() string { return "failing" }

func TestEstimatorTokenizer_CountTokens(t *testing.T) {
	e := NewEstimatorTokenizer("llama-3.1-8b-instant")

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"tiny", "hi", 1},
		{"ascii", strings.Repeat("a", 400), 100},
		{"cjk", strings.Repeat("优", 30), 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.CountTokens(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEstimatorTokenizer_CountMessages(t *testing.T) {
	e := NewEstimatorTokenizer("m")
	got, err := e.CountMessages([]Message{
		{Role: "system", Content: strings.Repeat("a", 40)},
		{Role: "user", Content: strings.Repeat("b", 80)},
	})
	require.NoError(t, err)
	// 10 + 4 + 20 + 4 + 3
	assert.Equal(t, 41, got)
}

func TestEstimateCall(t *testing.T) {
	e := NewEstimatorTokenizer("m")
	msgs := []Message{{Role: "user", Content: strings.Repeat("x", 400)}}

	got, err := EstimateCall(e, msgs, 300)
	require.NoError(t, err)
	assert.Equal(t, 100+4+3+300, got)

	got, err = EstimateCall(e, msgs, -1)
	require.NoError(t, err)
	assert.Equal(t, 107, got)

	_, err = EstimateCall(failingTokenizer{}, msgs, 10)
	assert.Error(t, err)
}

func TestForModel(t *testing.T) {
	assert.Equal(t, "estimator", ForModel("some-unknown-model").Name())

	tok := ForModel("llama-3.1-8b-instant")
	assert.Equal(t, "tiktoken[cl100k_base]|estimator", tok.Name())

	assert.Equal(t, "o200k_base", NewTiktokenTokenizer("gpt-4o-mini").Encoding())
	assert.Equal(t, "cl100k_base", NewTiktokenTokenizer("whatever").Encoding())
}

func TestFallbackTokenizer_UsesSecondaryOnError(t *testing.T) {
	f := &fallbackTokenizer{primary: failingTokenizer{}, secondary: NewEstimatorTokenizer("m")}

	n, err := f.CountTokens(strings.Repeat("a", 8))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.CountMessages([]Message{{Role: "user", Content: strings.Repeat("a", 8)}})
	require.NoError(t, err)
	assert.Equal(t, 2+4+3, n)
	assert.Equal(t, "failing|estimator", f.Name())
}
