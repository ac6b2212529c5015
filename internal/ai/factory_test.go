package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExtractor struct {
	name  string
	resp  *ExtractResponse
	err   error
	calls int
}

func (s *stubExtractor) GetProviderName() string { return s.name }

func (s *stubExtractor) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	s.calls++
	return s.resp, s.err
}

func TestFallbackExtractorUsesFallbackOnFailure(t *testing.T) {
	primary := &stubExtractor{name: "gemini", err: errors.New("connection reset")}
	fallback := &stubExtractor{name: "mistral", resp: &ExtractResponse{Result: "{}", Provider: "mistral"}}
	f := &FallbackExtractor{Primary: primary, Fallback: fallback}

	resp, err := f.Extract(context.Background(), ExtractRequest{})
	require.NoError(t, err)
	assert.Equal(t, "mistral", resp.Provider)
	assert.Equal(t, "gemini", f.GetProviderName())
	assert.Equal(t, 1, fallback.calls)
}

func TestFallbackExtractorSkipsFallbackOnSuccess(t *testing.T) {
	primary := &stubExtractor{name: "gemini", resp: &ExtractResponse{Result: "{}"}}
	fallback := &stubExtractor{name: "mistral"}
	f := &FallbackExtractor{Primary: primary, Fallback: fallback}

	_, err := f.Extract(context.Background(), ExtractRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, fallback.calls)
}

func TestFallbackExtractorBothFail(t *testing.T) {
	primaryErr := categorizeError("gemini", errors.New("network down"))
	f := &FallbackExtractor{
		Primary:  &stubExtractor{name: "gemini", err: primaryErr},
		Fallback: &stubExtractor{name: "mistral", err: errors.New("also down")},
	}

	_, err := f.Extract(context.Background(), ExtractRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, primaryErr)
	assert.Contains(t, err.Error(), "also down")
}

func TestFallbackExtractorNotOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fallback := &stubExtractor{name: "mistral"}
	f := &FallbackExtractor{
		Primary:  &stubExtractor{name: "gemini", err: context.Canceled},
		Fallback: fallback,
	}

	_, err := f.Extract(ctx, ExtractRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fallback.calls)
}

func TestNewExtractor(t *testing.T) {
	_, err := NewExtractor(ProviderConfig{Provider: "gemini"})
	assert.Error(t, err)

	_, err = NewExtractor(ProviderConfig{Provider: "openai"})
	assert.Error(t, err)

	e, err := NewExtractor(ProviderConfig{Provider: "mistral", MistralAPIKey: "k", MistralModel: "m"})
	require.NoError(t, err)
	assert.Equal(t, "mistral", e.GetProviderName())

	e, err = NewExtractorWithFallback(ProviderConfig{Provider: "gemini", GeminiAPIKey: "g", MistralAPIKey: "k"})
	require.NoError(t, err)
	fb, ok := e.(*FallbackExtractor)
	require.True(t, ok)
	assert.Equal(t, "mistral", fb.Fallback.GetProviderName())

	e, err = NewExtractorWithFallback(ProviderConfig{Provider: "gemini", GeminiAPIKey: "g"})
	require.NoError(t, err)
	_, ok = e.(*GeminiProvider)
	assert.True(t, ok)
}
