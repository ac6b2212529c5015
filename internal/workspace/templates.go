// templates.go - Saved templates, presets, default template, import/export

package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bosocmputer/document_extract_gemini/internal/column"
	"github.com/bosocmputer/document_extract_gemini/internal/common"
	"github.com/bosocmputer/document_extract_gemini/internal/model"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ImportSuffix is appended to the name of imported templates.
const ImportSuffix = " (インポート)"

const importFallbackName = "テンプレート"

// TemplateImportError wraps every reason an import was rejected.
type TemplateImportError struct {
	Err error
}

func (e *TemplateImportError) Error() string {
	return "テンプレートの読み込みに失敗しました: " + e.Err.Error()
}

func (e *TemplateImportError) Unwrap() error { return e.Err }

const templateSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["fields"],
	"properties": {
		"name": {"type": "string"},
		"documentType": {"enum": ["invoice", "delivery", ""]},
		"fields": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["label"],
				"properties": {
					"id": {"type": "string"},
					"key": {"type": "string"},
					"label": {"type": "string", "minLength": 1},
					"extractName": {"type": "string"},
					"column": {"type": "string", "pattern": "^[A-Za-z]*$"},
					"enabled": {"type": "boolean"}
				}
			}
		}
	}
}`

var compiledTemplateSchema *jsonschema.Schema

func init() {
	var err error
	compiledTemplateSchema, err = common.CompileSchema("template.json", templateSchema)
	if err != nil {
		panic(err)
	}
}

func cloneTemplates(ts []model.Template) []model.Template {
	out := make([]model.Template, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}

// findTemplate must be called with mu held.
func (w *Workspace) findTemplate(id string) (model.Template, bool) {
	for _, t := range w.templates {
		if t.ID == id {
			return t, true
		}
	}
	return model.Template{}, false
}

// Templates returns the saved templates.
func (w *Workspace) Templates() []model.Template {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneTemplates(w.templates)
}

// DefaultTemplateID returns the id applied on load, or "".
func (w *Workspace) DefaultTemplateID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.defaultTemplateID
}

// SaveTemplate snapshots the active fields and document type. Company rules
// are global and never stored in a template.
func (w *Workspace) SaveTemplate(ctx context.Context, name string) (model.Template, error) {
	if strings.TrimSpace(name) == "" {
		return model.Template{}, ErrEmptyName
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	t := model.Template{
		ID:           uuid.New().String(),
		Name:         name,
		DocumentType: w.documentType,
		Fields:       model.CloneFields(w.fields),
		CreatedAt:    w.now(),
	}
	w.templates = append(w.templates, t)
	return t.Clone(), w.save(ctx)
}

// LoadTemplate replaces the active fields with a copy of a saved or preset
// template and switches the document type when the template has one.
func (w *Workspace) LoadTemplate(ctx context.Context, id string) (model.Template, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	t, ok := w.findTemplate(id)
	if !ok {
		t, ok = model.FindPresetTemplate(id)
	}
	if !ok {
		return model.Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	w.fields = model.CloneFields(t.Fields)
	if t.DocumentType != "" {
		w.documentType = t.DocumentType
	}

	if w.bumpCounter(w.fields) {
		if err := w.save(ctx); err != nil {
			return model.Template{}, err
		}
	}
	return t.Clone(), nil
}

// DeleteTemplate removes a saved template and clears the default if it pointed at it.
func (w *Workspace) DeleteTemplate(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := -1
	for i, t := range w.templates {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	w.templates = append(w.templates[:idx:idx], w.templates[idx+1:]...)
	if w.defaultTemplateID == id {
		w.defaultTemplateID = ""
	}
	return w.save(ctx)
}

// SetDefaultTemplate marks a saved template as the one applied on load. An
// empty id clears it.
func (w *Workspace) SetDefaultTemplate(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if id != "" {
		if _, ok := w.findTemplate(id); !ok {
			return fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
		}
	}
	w.defaultTemplateID = id
	return w.save(ctx)
}

// ClearDefaultTemplate stops applying a template on load.
func (w *Workspace) ClearDefaultTemplate(ctx context.Context) error {
	return w.SetDefaultTemplate(ctx, "")
}

// PresetTemplates lists the built-in templates for docType.
func (w *Workspace) PresetTemplates(docType model.DocumentType) []model.Template {
	return model.PresetTemplates(docType)
}

type importField struct {
	model.Field
	Enabled *bool `json:"enabled"`
}

type importDocument struct {
	Name         string        `json:"name"`
	DocumentType string        `json:"documentType"`
	Fields       []importField `json:"fields"`
}

// ParseTemplate validates a template document and fills in what it leaves
// out: ids and keys numbered from counter, extraction names from labels and
// columns from the allocator. It returns the template (without id or name
// suffix) and the next free counter.
func ParseTemplate(data []byte, counter int) (model.Template, int, error) {
	if err := common.ValidateJSON(compiledTemplateSchema, data); err != nil {
		return model.Template{}, counter, &TemplateImportError{Err: err}
	}

	var doc importDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.Template{}, counter, &TemplateImportError{Err: err}
	}

	// explicit numeric ids are reserved before any are generated
	for _, in := range doc.Fields {
		counter = counterPast(counter, in.Field)
	}

	fields := make([]model.Field, len(doc.Fields))
	var used []string
	for i, in := range doc.Fields {
		f := in.Field
		// fields without an explicit flag come in enabled
		f.Enabled = in.Enabled == nil || *in.Enabled
		if f.ExtractName == "" {
			f.ExtractName = f.Label
		}
		if f.ID == "" || f.Key == "" {
			if f.ID == "" {
				f.ID = fmt.Sprintf("f%d", counter)
			}
			if f.Key == "" {
				f.Key = fmt.Sprintf("field_%d", counter)
			}
			counter++
		}
		f.Column = strings.ToUpper(f.Column)
		if f.Column == "" {
			f.Column = column.NextAvailable(used)
		} else if _, err := column.ColumnToIndex(f.Column); err != nil {
			return model.Template{}, counter, &TemplateImportError{Err: fmt.Errorf("field %q: %w", f.Label, err)}
		}
		used = append(used, f.Column)
		fields[i] = f
	}

	name := doc.Name
	if name == "" {
		name = importFallbackName
	}

	return model.Template{
		Name:         name,
		DocumentType: model.DocumentType(doc.DocumentType),
		Fields:       fields,
	}, counter, nil
}

// ImportTemplate validates a template document and appends it under a fresh
// id with ImportSuffix on its name. Nothing changes on error.
func (w *Workspace) ImportTemplate(ctx context.Context, data []byte) (model.Template, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	t, counter, err := ParseTemplate(data, w.fieldCounter)
	if err != nil {
		return model.Template{}, err
	}
	t.ID = uuid.New().String()
	t.Name += ImportSuffix
	t.CreatedAt = w.now()

	prevCounter := w.fieldCounter
	w.templates = append(w.templates, t)
	w.fieldCounter = counter
	if err := w.save(ctx); err != nil {
		w.templates = w.templates[:len(w.templates)-1]
		w.fieldCounter = prevCounter
		return model.Template{}, err
	}
	return t.Clone(), nil
}

// ExportTemplate renders a saved or preset template as an importable document.
func (w *Workspace) ExportTemplate(id string) ([]byte, error) {
	w.mu.Lock()
	t, ok := w.findTemplate(id)
	w.mu.Unlock()
	if !ok {
		t, ok = model.FindPresetTemplate(id)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	t.IsPreset = false
	return json.MarshalIndent(t, "", "  ")
}
