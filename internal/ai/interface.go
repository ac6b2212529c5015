// interface.go - Extraction provider interface for supporting multiple AI providers

package ai

import (
	"context"

	"github.com/bosocmputer/document_extract_gemini/internal/common"
	"github.com/bosocmputer/document_extract_gemini/internal/model"
)

// ExtractRequest is one document plus the compiled instruction.
type ExtractRequest struct {
	FileName     string
	MIMEType     string
	Data         []byte
	DocumentType model.DocumentType
	Instruction  string
}

// ExtractResponse carries the provider's raw text answer. Result is expected
// to contain a JSON object, possibly wrapped in markdown fences.
type ExtractResponse struct {
	Result   string
	Tokens   *common.TokenUsage
	Provider string
}

// Extractor defines the interface that all AI providers must implement
// This allows us to support multiple AI providers (Gemini, Mistral, etc.) with the same interface
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)

	// GetProviderName returns the name of the provider (e.g., "gemini", "mistral")
	GetProviderName() string
}

// ProviderConfig contains configuration for extraction providers
type ProviderConfig struct {
	// Provider name: "gemini" or "mistral"
	Provider string

	GeminiAPIKey string
	GeminiModel  string

	MistralAPIKey string
	MistralModel  string
}
