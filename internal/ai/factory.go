// factory.go - Provider factory and fallback wrapper

package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bosocmputer/document_extract_gemini/configs"
	"github.com/bosocmputer/document_extract_gemini/internal/common"
	"github.com/bosocmputer/document_extract_gemini/internal/ratelimit"
)

// ProviderConfigFromEnv snapshots the provider settings from configs.
func ProviderConfigFromEnv() ProviderConfig {
	return ProviderConfig{
		Provider:      configs.OCR_PROVIDER,
		GeminiAPIKey:  configs.GEMINI_API_KEY,
		GeminiModel:   configs.MODEL_NAME,
		MistralAPIKey: configs.MISTRAL_API_KEY,
		MistralModel:  configs.MISTRAL_MODEL_NAME,
	}
}

func newLimiter() *ratelimit.RateLimiter {
	return ratelimit.NewRateLimiter(configs.RATE_LIMIT_TOKENS, time.Duration(configs.RATE_LIMIT_REFILL_SECONDS)*time.Second)
}

func aiTimeout() time.Duration {
	return time.Duration(configs.AI_TIMEOUT) * time.Second
}

// NewExtractor creates the configured provider
func NewExtractor(cfg ProviderConfig) (Extractor, error) {
	switch cfg.Provider {
	case "", "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set")
		}
		log.Printf("🔵 Creating Gemini provider (model: %s)", cfg.GeminiModel)
		return NewGeminiProvider(cfg.GeminiAPIKey, cfg.GeminiModel, aiTimeout(), newLimiter()), nil

	case "mistral":
		if cfg.MistralAPIKey == "" {
			return nil, fmt.Errorf("MISTRAL_API_KEY is not set")
		}
		log.Printf("🔷 Creating Mistral provider (model: %s)", cfg.MistralModel)
		return NewMistralProvider(cfg.MistralAPIKey, cfg.MistralModel, aiTimeout(), newLimiter()), nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s (supported: gemini, mistral)", cfg.Provider)
	}
}

// NewExtractorWithFallback creates the configured provider and, when the
// other provider has a key, wraps both in a FallbackExtractor.
func NewExtractorWithFallback(cfg ProviderConfig) (Extractor, error) {
	primary, err := NewExtractor(cfg)
	if err != nil {
		return nil, err
	}

	var fallback Extractor
	switch primary.GetProviderName() {
	case "gemini":
		if cfg.MistralAPIKey != "" {
			fallback = NewMistralProvider(cfg.MistralAPIKey, cfg.MistralModel, aiTimeout(), newLimiter())
			log.Printf("✅ Fallback provider configured: Mistral")
		}
	case "mistral":
		if cfg.GeminiAPIKey != "" {
			fallback = NewGeminiProvider(cfg.GeminiAPIKey, cfg.GeminiModel, aiTimeout(), newLimiter())
			log.Printf("✅ Fallback provider configured: Gemini")
		}
	}

	if fallback == nil {
		return primary, nil
	}
	return &FallbackExtractor{Primary: primary, Fallback: fallback}, nil
}

// FallbackExtractor retries a failed request on a second provider.
// Cancellations are not retried.
type FallbackExtractor struct {
	Primary  Extractor
	Fallback Extractor
}

// GetProviderName returns the primary provider's name.
func (f *FallbackExtractor) GetProviderName() string {
	return f.Primary.GetProviderName()
}

// Extract calls Primary, then Fallback on a transport failure.
func (f *FallbackExtractor) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	resp, err := f.Primary.Extract(ctx, req)
	if err == nil || f.Fallback == nil || ctx.Err() != nil {
		return resp, err
	}

	var perr *ProviderError
	if errors.As(err, &perr) && perr.Category == "canceled" {
		return nil, err
	}

	common.FromContext(ctx).LogWarning("%s failed (%v), falling back to %s",
		f.Primary.GetProviderName(), err, f.Fallback.GetProviderName())

	resp, fbErr := f.Fallback.Extract(ctx, req)
	if fbErr != nil {
		return nil, fmt.Errorf("primary: %w; fallback: %v", err, fbErr)
	}
	return resp, nil
}
