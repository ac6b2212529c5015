package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffMultiple: 2}
}

func TestMistralExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req mistralChatRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "pixtral", req.Model)
		if !assert.Len(t, req.Messages, 1) || !assert.Len(t, req.Messages[0].Content, 2) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "extract", req.Messages[0].Content[0].Text)
		assert.True(t, strings.HasPrefix(req.Messages[0].Content[1].ImageURL, "data:image/png;base64,"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"pixtral","choices":[{"message":{"content":"{\"items\":[]}"}}],"usage":{"prompt_tokens":100,"completion_tokens":20,"total_tokens":120}}`))
	}))
	defer srv.Close()

	m := NewMistralProvider("key", "pixtral", time.Second, nil).WithBaseURL(srv.URL + "/")
	resp, err := m.Extract(context.Background(), ExtractRequest{
		FileName:    "a.png",
		MIMEType:    "image/png",
		Data:        []byte{0x89, 'P', 'N', 'G'},
		Instruction: "extract",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"items":[]}`, resp.Result)
	assert.Equal(t, "mistral", resp.Provider)
	require.NotNil(t, resp.Tokens)
	assert.Equal(t, 120, resp.Tokens.TotalTokens)
}

func TestMistralRejectsPDF(t *testing.T) {
	m := NewMistralProvider("key", "pixtral", time.Second, nil)
	_, err := m.Extract(context.Background(), ExtractRequest{MIMEType: "application/pdf"})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bad_request", perr.Category)
	assert.False(t, perr.Retryable)
}

func TestMistralRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"overloaded"}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	m := NewMistralProvider("key", "pixtral", time.Second, nil).WithBaseURL(srv.URL)
	m.retry = fastRetry()

	resp, err := m.Extract(context.Background(), ExtractRequest{MIMEType: "image/jpeg", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Result)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestMistralUnauthorizedIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	m := NewMistralProvider("key", "pixtral", time.Second, nil).WithBaseURL(srv.URL)
	m.retry = fastRetry()

	_, err := m.Extract(context.Background(), ExtractRequest{MIMEType: "image/jpeg", Data: []byte("x")})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "unauthorized", perr.Category)
	assert.Equal(t, 401, perr.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	var httpErr *HTTPStatusError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "bad key", httpErr.Body)
}
