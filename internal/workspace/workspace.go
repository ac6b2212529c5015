// workspace.go - Operator session: active fields, saved templates, company rules and history

package workspace

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bosocmputer/document_extract_gemini/internal/column"
	"github.com/bosocmputer/document_extract_gemini/internal/model"
	"github.com/bosocmputer/document_extract_gemini/internal/storage"
)

var (
	ErrFieldNotFound    = errors.New("field not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrEmptyLabel       = errors.New("label must not be empty")
	ErrEmptyName        = errors.New("template name must not be empty")
	ErrResultNotFound   = errors.New("result cell not found")
)

// Workspace holds the state one operator edits. All methods are safe for
// concurrent use; every change to persisted state saves the whole blob.
type Workspace struct {
	store        storage.StateStore
	appID        string
	historyLimit int
	now          func() time.Time

	mu                sync.Mutex
	fields            []model.Field
	documentType      model.DocumentType
	templates         []model.Template
	fieldCounter      int
	defaultTemplateID string
	history           *model.History
	rules             model.CompanyRuleSet

	latestFields  []model.Field
	latestResults []model.ExtractionResult
}

// Options configures Load.
type Options struct {
	AppID        string
	HistoryLimit int
}

// Load restores the workspace for opts.AppID. A first start installs the
// default fields and company rules; otherwise the default template, if any,
// supplies the active fields.
func Load(ctx context.Context, store storage.StateStore, opts Options) (*Workspace, error) {
	w := &Workspace{
		store:        store,
		appID:        opts.AppID,
		historyLimit: opts.HistoryLimit,
		now:          time.Now,
		fields:       model.DefaultFields(),
		documentType: model.DocumentInvoice,
		fieldCounter: model.DefaultFieldCounter,
		history:      model.NewHistory(opts.HistoryLimit),
		rules:        model.CompanyRuleSet{Text: model.DefaultCompanyRules},
	}

	state, err := store.Load(ctx, opts.AppID)
	if errors.Is(err, storage.ErrStateNotFound) {
		log.Printf("📁 No saved state for %s, starting with defaults", opts.AppID)
		return w, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}

	w.templates = state.Templates
	if state.FieldCounter > 0 {
		w.fieldCounter = state.FieldCounter
	}
	w.defaultTemplateID = state.DefaultTemplateID
	w.history = model.RestoreHistory(state.History, opts.HistoryLimit)
	if !state.CompanyRules.IsEmpty() {
		w.rules = state.CompanyRules
	}

	if w.defaultTemplateID != "" {
		if t, ok := w.findTemplate(w.defaultTemplateID); ok {
			w.fields = model.CloneFields(t.Fields)
			w.bumpCounter(w.fields)
		}
	}

	log.Printf("📁 Workspace %s loaded: %d templates, %d history entries", opts.AppID, len(w.templates), w.history.Len())
	return w, nil
}

// snapshot must be called with mu held.
func (w *Workspace) snapshot() *model.AppState {
	return &model.AppState{
		Version:           model.StateVersion,
		Templates:         cloneTemplates(w.templates),
		FieldCounter:      w.fieldCounter,
		DefaultTemplateID: w.defaultTemplateID,
		History:           w.history.Entries(),
		CompanyRules:      w.rules,
	}
}

// save must be called with mu held; the blob is encoded before the lock is
// released so it matches the in-memory state exactly.
func (w *Workspace) save(ctx context.Context) error {
	if err := w.store.Save(ctx, w.appID, w.snapshot()); err != nil {
		log.Printf("❌ Failed to save workspace %s: %v", w.appID, err)
		return fmt.Errorf("failed to save workspace: %w", err)
	}
	return nil
}

var numericSuffix = regexp.MustCompile(`^(?:f|field_)(\d+)$`)

// bumpCounter moves the field counter past every numeric f<N>/field_<N>
// in fields so new fields never reuse an id. Must be called with mu held.
func (w *Workspace) bumpCounter(fields []model.Field) bool {
	next := w.fieldCounter
	for _, f := range fields {
		next = counterPast(next, f)
	}
	bumped := next != w.fieldCounter
	w.fieldCounter = next
	return bumped
}

// counterPast returns counter, or one past the numeric suffix of f's id or
// key when that is larger.
func counterPast(counter int, f model.Field) int {
	for _, s := range []string{f.ID, f.Key} {
		m := numericSuffix.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n >= counter {
			counter = n + 1
		}
	}
	return counter
}

// Fields returns a copy of the active field list.
func (w *Workspace) Fields() []model.Field {
	w.mu.Lock()
	defer w.mu.Unlock()
	return model.CloneFields(w.fields)
}

// DocumentType returns the active document type.
func (w *Workspace) DocumentType() model.DocumentType {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.documentType
}

// SetDocumentType switches the active document type.
func (w *Workspace) SetDocumentType(t model.DocumentType) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.documentType = t
}

// AddField appends an enabled field in the next free column among enabled fields.
func (w *Workspace) AddField(ctx context.Context, label string) (model.Field, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return model.Field{}, ErrEmptyLabel
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	used := make([]string, 0, len(w.fields))
	for _, f := range model.EnabledFields(w.fields) {
		used = append(used, f.Column)
	}

	f := model.Field{
		ID:          fmt.Sprintf("f%d", w.fieldCounter),
		Key:         fmt.Sprintf("field_%d", w.fieldCounter),
		Label:       label,
		ExtractName: label,
		Column:      column.NextAvailable(used),
		Enabled:     true,
	}
	w.fields = append(w.fields, f)
	w.fieldCounter++

	return f, w.save(ctx)
}

// AddPresetField adds a field from the preset catalog of docType. An empty
// docType uses the active one.
func (w *Workspace) AddPresetField(ctx context.Context, docType model.DocumentType, presetID string) (model.Field, error) {
	if docType == "" {
		docType = w.DocumentType()
	}
	p, ok := model.FindPresetField(docType, presetID)
	if !ok {
		return model.Field{}, fmt.Errorf("%w: preset %s", ErrFieldNotFound, presetID)
	}
	return w.AddField(ctx, p.Label)
}

// update applies fn to the field with id. Must be called with mu held.
func (w *Workspace) update(id string, fn func(*model.Field)) (model.Field, error) {
	for i := range w.fields {
		if w.fields[i].ID == id {
			fn(&w.fields[i])
			return w.fields[i], nil
		}
	}
	return model.Field{}, fmt.Errorf("%w: %s", ErrFieldNotFound, id)
}

// RemoveField drops a field.
func (w *Workspace) RemoveField(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, f := range w.fields {
		if f.ID == id {
			w.fields = append(w.fields[:i:i], w.fields[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrFieldNotFound, id)
}

// ToggleField flips Enabled.
func (w *Workspace) ToggleField(id string) (model.Field, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.update(id, func(f *model.Field) { f.Enabled = !f.Enabled })
}

// RenameField changes the label; the extraction name follows it.
func (w *Workspace) RenameField(id, label string) (model.Field, error) {
	if strings.TrimSpace(label) == "" {
		return model.Field{}, ErrEmptyLabel
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.update(id, func(f *model.Field) {
		f.Label = label
		f.ExtractName = label
	})
}

// SetFieldColumn moves a field to another column. Collisions are allowed.
func (w *Workspace) SetFieldColumn(id, col string) (model.Field, error) {
	col = strings.ToUpper(strings.TrimSpace(col))
	if _, err := column.ColumnToIndex(col); err != nil {
		return model.Field{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.update(id, func(f *model.Field) { f.Column = col })
}

// CompanyRules returns the active rule set.
func (w *Workspace) CompanyRules() model.CompanyRuleSet {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rules
}

// SetCompanyRules replaces the rule text.
func (w *Workspace) SetCompanyRules(ctx context.Context, text string) (model.CompanyRuleSet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rules = model.CompanyRuleSet{Text: text, UpdatedAt: w.now()}
	return w.rules, w.save(ctx)
}

// ResetCompanyRules reinstalls the default rule text.
func (w *Workspace) ResetCompanyRules(ctx context.Context) (model.CompanyRuleSet, error) {
	return w.SetCompanyRules(ctx, model.DefaultCompanyRules)
}
