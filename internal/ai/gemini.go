// gemini.go - Gemini vision client for document extraction

package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bosocmputer/document_extract_gemini/internal/common"
	"github.com/bosocmputer/document_extract_gemini/internal/ratelimit"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// maxOutputTokens is Gemini's output ceiling; set explicitly to avoid silent truncation.
const maxOutputTokens = 8192

// GeminiProvider implements Extractor on top of the Gemini API.
type GeminiProvider struct {
	apiKey    string
	modelName string
	timeout   time.Duration
	limiter   *ratelimit.RateLimiter
	retry     RetryConfig
	jsonMode  bool
}

// NewGeminiProvider creates a provider. limiter may be nil.
func NewGeminiProvider(apiKey, modelName string, timeout time.Duration, limiter *ratelimit.RateLimiter) *GeminiProvider {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &GeminiProvider{
		apiKey:    apiKey,
		modelName: modelName,
		timeout:   timeout,
		limiter:   limiter,
		retry:     DefaultRetryConfig,
		jsonMode:  true,
	}
}

// GetProviderName returns "gemini"
func (g *GeminiProvider) GetProviderName() string {
	return "gemini"
}

// Extract sends the document and instruction to Gemini and returns the raw text answer.
func (g *GeminiProvider) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	reqCtx := common.FromContext(ctx)
	reqCtx.LogInfo("🔵 Gemini (model: %s) | %s | %s %.1f KB",
		g.modelName, req.FileName, req.MIMEType, float64(len(req.Data))/1024)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, categorizeError(g.GetProviderName(), err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reqCtx.StartSubStep("init_gemini_client")
	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		reqCtx.EndSubStep("❌ FAILED")
		return nil, categorizeError(g.GetProviderName(), fmt.Errorf("failed to create Gemini client: %w", err))
	}
	defer client.Close()

	model := client.GenerativeModel(g.modelName)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: ptr(int32(maxOutputTokens)),
		Temperature:     ptr(float32(0)),
	}
	if g.jsonMode {
		model.ResponseMIMEType = "application/json"
	}
	reqCtx.EndSubStep("")

	reqCtx.StartSubStep("call_gemini_api")
	resp, err := callWithRetry(ctx, g.GetProviderName(), g.retry,
		func(ctx context.Context) (*genai.GenerateContentResponse, error) {
			return model.GenerateContent(ctx,
				genai.Text(req.Instruction),
				genai.Blob{MIMEType: req.MIMEType, Data: req.Data},
			)
		})
	if err != nil {
		reqCtx.EndSubStep("❌ FAILED")
		return nil, err
	}

	text, err := responseText(resp)
	if err != nil {
		reqCtx.EndSubStep("❌ EMPTY")
		return nil, categorizeError(g.GetProviderName(), err)
	}

	if resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		reqCtx.LogWarning("Gemini response was truncated (FinishReason: MAX_TOKENS)")
	}

	var tokens *common.TokenUsage
	if resp.UsageMetadata != nil {
		usage := common.CalculateTokenCost(
			int(resp.UsageMetadata.PromptTokenCount),
			int(resp.UsageMetadata.CandidatesTokenCount),
		)
		tokens = &usage
		reqCtx.EndSubStep(fmt.Sprintf("tokens: %d", usage.TotalTokens))
	} else {
		reqCtx.EndSubStep("")
	}

	return &ExtractResponse{
		Result:   text,
		Tokens:   tokens,
		Provider: g.GetProviderName(),
	}, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from Gemini API")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("empty response from Gemini API")
	}
	return b.String(), nil
}

func ptr[T any](v T) *T {
	return &v
}
