// store.go - Persistence interfaces for the application state blob and stored prompts

package storage

import (
	"context"
	"errors"

	"github.com/bosocmputer/document_extract_gemini/internal/model"
)

// ErrStateNotFound is returned by Load when nothing was saved yet.
var ErrStateNotFound = errors.New("state not found")

// StateStore loads and saves the whole state blob for one application id.
// Save always writes the complete blob.
type StateStore interface {
	Load(ctx context.Context, appID string) (*model.AppState, error)
	Save(ctx context.Context, appID string, state *model.AppState) error
}

// StoredPrompt is the free-form prompt for one document type.
type StoredPrompt struct {
	DocumentType model.DocumentType `json:"document_type"`
	Prompt       string             `json:"prompt"`
	IsCustom     bool               `json:"is_custom"`
}

// PromptStore keeps per-document-type prompt overrides.
type PromptStore interface {
	Get(ctx context.Context, docType model.DocumentType) (StoredPrompt, error)
	Update(ctx context.Context, docType model.DocumentType, prompt string) error
	Reset(ctx context.Context, docType model.DocumentType) error
}

// DefaultPromptFunc supplies the built-in prompt for a document type.
type DefaultPromptFunc func(model.DocumentType) string
