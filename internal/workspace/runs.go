// runs.go - Batch runs, latest results and history

package workspace

import (
	"context"
	"fmt"
	"log"

	"github.com/bosocmputer/document_extract_gemini/internal/model"
	"github.com/bosocmputer/document_extract_gemini/internal/processor"
)

// RunBatch extracts files with the active fields, document type and company
// rules, then records the batch. The lock is not held while the orchestrator
// runs, so edits made during a run apply to the next one.
func (w *Workspace) RunBatch(ctx context.Context, orch *processor.Orchestrator, files []processor.FileInput, onProgress func(processor.Progress)) (*processor.Batch, error) {
	w.mu.Lock()
	fields := model.CloneFields(w.fields)
	docType := w.documentType
	rules := w.rules
	w.mu.Unlock()

	batch, err := orch.Run(ctx, processor.RunRequest{
		Files:        files,
		Fields:       fields,
		Rules:        &rules,
		DocumentType: docType,
		OnProgress:   onProgress,
	})
	if err != nil {
		return nil, err
	}

	if err := w.RecordBatch(ctx, batch); err != nil {
		return batch, err
	}
	return batch, nil
}

// RecordBatch makes batch the latest result set and prepends it to history.
func (w *Workspace) RecordBatch(ctx context.Context, batch *processor.Batch) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.latestFields = model.CloneFields(batch.Fields)
	w.latestResults = model.CloneResults(batch.Results)
	w.history.Add(processor.NewHistoryEntry(batch))

	log.Printf("🗂️  Batch %s recorded: %s (history %d/%d)", batch.ID, batch, w.history.Len(), w.history.Cap())
	return w.save(ctx)
}

// LatestResults returns the fields and results of the most recent batch.
func (w *Workspace) LatestResults() ([]model.Field, []model.ExtractionResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return model.CloneFields(w.latestFields), model.CloneResults(w.latestResults)
}

// OverrideCell replaces one resolved value in the latest results. History
// keeps the values as extracted.
func (w *Workspace) OverrideCell(fileIndex, rowIndex int, fieldID string, value any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if fileIndex < 0 || fileIndex >= len(w.latestResults) {
		return fmt.Errorf("%w: file %d", ErrResultNotFound, fileIndex)
	}
	rows := w.latestResults[fileIndex].ExtractedValues
	if rowIndex < 0 || rowIndex >= len(rows) {
		return fmt.Errorf("%w: file %d row %d", ErrResultNotFound, fileIndex, rowIndex)
	}

	known := false
	for _, f := range w.latestFields {
		if f.ID == fieldID {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, fieldID)
	}

	rows[rowIndex][fieldID] = value
	return nil
}

// History returns the batch log, most recent first.
func (w *Workspace) History() []model.HistoryEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.history.Entries()
}

// FindHistory looks one batch up by id.
func (w *Workspace) FindHistory(id string) (model.HistoryEntry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.history.Find(id)
}

// ExportSource picks what to export: the history entry with historyID, or
// the latest results when historyID is empty.
func (w *Workspace) ExportSource(historyID string) ([]model.Field, []model.ExtractionResult, error) {
	if historyID == "" {
		fields, results := w.LatestResults()
		return fields, results, nil
	}

	entry, ok := w.FindHistory(historyID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: history %s", ErrResultNotFound, historyID)
	}
	return model.CloneFields(entry.FieldDefs), model.CloneResults(entry.Results), nil
}
