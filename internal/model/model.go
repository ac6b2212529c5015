// model.go - Field, template and result types shared by the extraction pipeline

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/bosocmputer/document_extract_gemini/internal/common"
)

// DocumentType partitions fields, templates and stored prompts.
type DocumentType string

const (
	DocumentInvoice  DocumentType = "invoice"  // 請求書
	DocumentDelivery DocumentType = "delivery" // 納品書
)

// ErrUnknownDocumentType is returned by ParseDocumentType.
var ErrUnknownDocumentType = errors.New("unknown document type")

// ParseDocumentType accepts only the known document types.
func ParseDocumentType(s string) (DocumentType, error) {
	switch DocumentType(s) {
	case DocumentInvoice, DocumentDelivery:
		return DocumentType(s), nil
	default:
		return "", fmt.Errorf("%w %q (supported: invoice, delivery)", ErrUnknownDocumentType, s)
	}
}

// Label returns the Japanese display name.
func (d DocumentType) Label() string {
	switch d {
	case DocumentDelivery:
		return "納品書"
	default:
		return "請求書"
	}
}

// Field is one operator-defined extraction target bound to an export column.
// Fields are values: templates and the active workspace hold independent copies.
type Field struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Label       string `json:"label"`
	ExtractName string `json:"extractName"`
	Column      string `json:"column"`
	Enabled     bool   `json:"enabled"`
}

// EnabledFields keeps order and drops disabled fields.
func EnabledFields(fields []Field) []Field {
	enabled := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.Enabled {
			enabled = append(enabled, f)
		}
	}
	return enabled
}

// CloneFields returns a copy that shares nothing with the input.
func CloneFields(fields []Field) []Field {
	if fields == nil {
		return nil
	}
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// Template is a saved, named field list for one document type.
// A template never carries the company rule text.
type Template struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	DocumentType DocumentType `json:"documentType,omitempty"`
	Fields       []Field      `json:"fields"`
	CreatedAt    time.Time    `json:"createdAt"`
	IsPreset     bool         `json:"isPreset,omitempty"`
}

// Clone deep-copies the template's field list.
func (t Template) Clone() Template {
	t.Fields = CloneFields(t.Fields)
	return t
}

// CompanyRuleSet is the single global block of per-company override
// instructions. It is passed by pointer into the instruction builder and is
// never embedded into a Template snapshot.
type CompanyRuleSet struct {
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// IsEmpty reports whether the rule text is blank.
func (r *CompanyRuleSet) IsEmpty() bool {
	return r == nil || strings.TrimSpace(r.Text) == ""
}

// Row maps Field.ID to a resolved value (string, number, bool or nil).
type Row map[string]any

// Clone copies the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ExtractionResult is the outcome for one file of one batch run.
type ExtractionResult struct {
	FileName        string             `json:"fileName"`
	Success         bool               `json:"success"`
	Data            json.RawMessage    `json:"data,omitempty"`
	RawResponse     string             `json:"rawResponse,omitempty"`
	ExtractedValues []Row              `json:"extractedValues,omitempty"`
	Error           string             `json:"error,omitempty"`
	HadSelection    bool               `json:"hadSelection"`
	Provider        string             `json:"provider,omitempty"`
	Tokens          *common.TokenUsage `json:"tokens,omitempty"`
}

// Clone deep-copies rows and raw data so the copy can be frozen in history.
func (r ExtractionResult) Clone() ExtractionResult {
	if r.Data != nil {
		r.Data = append(json.RawMessage(nil), r.Data...)
	}
	if r.ExtractedValues != nil {
		rows := make([]Row, len(r.ExtractedValues))
		for i, row := range r.ExtractedValues {
			rows[i] = row.Clone()
		}
		r.ExtractedValues = rows
	}
	if r.Tokens != nil {
		tokens := *r.Tokens
		r.Tokens = &tokens
	}
	return r
}

// CloneResults deep-copies a result list.
func CloneResults(results []ExtractionResult) []ExtractionResult {
	out := make([]ExtractionResult, len(results))
	for i, r := range results {
		out[i] = r.Clone()
	}
	return out
}

// MinSelectionSize is the smallest accepted crop edge in pixels.
const MinSelectionSize = 10

// Selection is a drag rectangle in source-image pixels. Corners may come in
// any order.
type Selection struct {
	StartX int `json:"startX"`
	StartY int `json:"startY"`
	EndX   int `json:"endX"`
	EndY   int `json:"endY"`
}

// Rect normalises the corners into an image.Rectangle.
func (s Selection) Rect() image.Rectangle {
	return image.Rect(s.StartX, s.StartY, s.EndX, s.EndY).Canon()
}

// Valid is false for selections narrower or shorter than MinSelectionSize.
func (s Selection) Valid() bool {
	r := s.Rect()
	return r.Dx() >= MinSelectionSize && r.Dy() >= MinSelectionSize
}

// HistoryEntry is a frozen summary of one batch run.
type HistoryEntry struct {
	ID           string             `json:"id"`
	Date         time.Time          `json:"date"`
	DocumentType DocumentType       `json:"documentType,omitempty"`
	FileCount    int                `json:"fileCount"`
	SuccessCount int                `json:"successCount"`
	Fields       []string           `json:"fields"`
	FieldDefs    []Field            `json:"fieldDefs,omitempty"`
	Results      []ExtractionResult `json:"results"`
}

// AppState is the whole persisted blob for one application id.
type AppState struct {
	Version           int            `json:"version"`
	Templates         []Template     `json:"templates"`
	FieldCounter      int            `json:"fieldCounter"`
	DefaultTemplateID string         `json:"defaultTemplateId,omitempty"`
	History           []HistoryEntry `json:"history"`
	CompanyRules      CompanyRuleSet `json:"companyRules"`
}

// StateVersion is written into every saved blob.
const StateVersion = 4
