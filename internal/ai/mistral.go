// mistral.go - Mistral chat-vision client for document extraction

package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bosocmputer/document_extract_gemini/internal/common"
	"github.com/bosocmputer/document_extract_gemini/internal/ratelimit"
)

const defaultMistralBaseURL = "https://api.mistral.ai/v1"

// MistralProvider implements Extractor using Mistral's chat completions API
// with an inline image.
type MistralProvider struct {
	apiKey    string
	modelName string
	baseURL   string
	client    *http.Client
	limiter   *ratelimit.RateLimiter
	retry     RetryConfig
}

// NewMistralProvider creates a new Mistral provider. limiter may be nil.
func NewMistralProvider(apiKey, modelName string, timeout time.Duration, limiter *ratelimit.RateLimiter) *MistralProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &MistralProvider{
		apiKey:    apiKey,
		modelName: modelName,
		baseURL:   defaultMistralBaseURL,
		client: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
		retry:   DefaultRetryConfig,
	}
}

// WithBaseURL points the provider at another endpoint.
func (m *MistralProvider) WithBaseURL(baseURL string) *MistralProvider {
	m.baseURL = strings.TrimRight(baseURL, "/")
	return m
}

// GetProviderName returns "mistral"
func (m *MistralProvider) GetProviderName() string {
	return "mistral"
}

type mistralContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type mistralMessage struct {
	Role    string               `json:"role"`
	Content []mistralContentPart `json:"content"`
}

type mistralResponseFormat struct {
	Type string `json:"type"`
}

type mistralChatRequest struct {
	Model          string                 `json:"model"`
	Messages       []mistralMessage       `json:"messages"`
	Temperature    float64                `json:"temperature"`
	MaxTokens      int                    `json:"max_tokens,omitempty"`
	ResponseFormat *mistralResponseFormat `json:"response_format,omitempty"`
}

type mistralChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type mistralErrorResponse struct {
	Message string `json:"message"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Extract sends the image with the instruction and returns the model's text.
func (m *MistralProvider) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	reqCtx := common.FromContext(ctx)
	reqCtx.LogInfo("🔷 Mistral (model: %s) | %s | %s %.1f KB",
		m.modelName, req.FileName, req.MIMEType, float64(len(req.Data))/1024)

	// Mistral vision accepts images only.
	if req.MIMEType == "application/pdf" {
		return nil, &ProviderError{
			Provider:      m.GetProviderName(),
			OriginalError: fmt.Errorf("unsupported MIME type %s", req.MIMEType),
			Category:      "bad_request",
			Message:       "Mistral does not accept PDF input; convert to an image first",
		}
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, categorizeError(m.GetProviderName(), err)
		}
	}

	imageURL := fmt.Sprintf("data:%s;base64,%s", req.MIMEType, base64.StdEncoding.EncodeToString(req.Data))
	request := mistralChatRequest{
		Model: m.modelName,
		Messages: []mistralMessage{{
			Role: "user",
			Content: []mistralContentPart{
				{Type: "text", Text: req.Instruction},
				{Type: "image_url", ImageURL: imageURL},
			},
		}},
		Temperature:    0,
		MaxTokens:      maxOutputTokens,
		ResponseFormat: &mistralResponseFormat{Type: "json_object"},
	}

	reqCtx.StartSubStep("call_mistral_api")
	resp, err := callWithRetry(ctx, m.GetProviderName(), m.retry,
		func(ctx context.Context) (*mistralChatResponse, error) {
			return m.callChatAPI(ctx, request)
		})
	if err != nil {
		reqCtx.EndSubStep("❌ FAILED")
		return nil, err
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		reqCtx.EndSubStep("❌ EMPTY")
		return nil, categorizeError(m.GetProviderName(), fmt.Errorf("empty response from Mistral API"))
	}

	usage := common.CalculateTokenCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	reqCtx.EndSubStep(fmt.Sprintf("tokens: %d", usage.TotalTokens))

	return &ExtractResponse{
		Result:   resp.Choices[0].Message.Content,
		Tokens:   &usage,
		Provider: m.GetProviderName(),
	}, nil
}

// callChatAPI makes the HTTP request to the chat completions endpoint
func (m *MistralProvider) callChatAPI(ctx context.Context, request mistralChatRequest) (*mistralChatResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", m.apiKey))

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := string(body)
		var errorResp mistralErrorResponse
		if json.Unmarshal(body, &errorResp) == nil {
			if errorResp.Error.Message != "" {
				detail = errorResp.Error.Message
			} else if errorResp.Message != "" {
				detail = errorResp.Message
			}
		}
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: detail}
	}

	var response mistralChatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse chat response: %w", err)
	}
	return &response, nil
}
