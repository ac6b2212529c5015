package storage

import (
	"context"
	"sync"

	"github.com/bosocmputer/document_extract_gemini/internal/model"
)

// MemoryPromptStore keeps custom prompts in process memory.
type MemoryPromptStore struct {
	defaults DefaultPromptFunc

	mu     sync.RWMutex
	custom map[model.DocumentType]string
}

// NewMemoryPromptStore creates an empty store.
func NewMemoryPromptStore(defaults DefaultPromptFunc) *MemoryPromptStore {
	return &MemoryPromptStore{defaults: defaults, custom: make(map[model.DocumentType]string)}
}

// Get returns the custom prompt or the default.
func (s *MemoryPromptStore) Get(ctx context.Context, docType model.DocumentType) (StoredPrompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.custom[docType]; ok {
		return StoredPrompt{DocumentType: docType, Prompt: p, IsCustom: true}, nil
	}
	return StoredPrompt{DocumentType: docType, Prompt: s.defaults(docType)}, nil
}

// Update stores a custom prompt.
func (s *MemoryPromptStore) Update(ctx context.Context, docType model.DocumentType, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.custom[docType] = prompt
	return nil
}

// Reset drops the custom prompt.
func (s *MemoryPromptStore) Reset(ctx context.Context, docType model.DocumentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.custom, docType)
	return nil
}
