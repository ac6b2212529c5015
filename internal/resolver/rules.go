// rules.go - Declarative keyword tables used by the resolver

package resolver

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bosocmputer/document_extract_gemini/internal/common"
)

// Concept groups label wordings for one semantic value with the response
// keys an AI service tends to use for it.
type Concept struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Paths    []string `json:"paths"`
}

// VocabularyHint maps a generic word in a label to key fragments in another
// vocabulary, e.g. 金額 -> amount.
type VocabularyHint struct {
	Word      string   `json:"word"`
	Fragments []string `json:"fragments"`
}

// Rules is the full, tunable configuration of the resolver.
type Rules struct {
	Concepts   []Concept        `json:"concepts"`
	Vocabulary []VocabularyHint `json:"vocabulary"`
	// StripChars are removed from a label before character-run matching.
	// Whitespace is always removed.
	StripChars string `json:"stripChars"`
	// RunLength is the number of consecutive label characters that must
	// appear in a response key for a character-run match.
	RunLength int `json:"runLength"`
}

const defaultRunLength = 3

// DefaultRules returns the built-in tables.
func DefaultRules() Rules {
	return Rules{
		Concepts: []Concept{
			{"previous_balance", []string{"前回御請求", "前回請求", "前回", "前月請求", "previous"},
				[]string{"previous_balance", "previous_amount", "last_balance", "previous", "prev_balance"}},
			{"payment_received", []string{"御入金", "入金額", "入金", "ご入金", "payment", "paid"},
				[]string{"payment_received", "payment_amount", "paid_amount", "payment", "deposit"}},
			{"adjustment", []string{"調整額", "調整", "adjustment"},
				[]string{"adjustment", "adjustment_amount", "adjust"}},
			{"carried_over", []string{"差引繰越", "繰越額", "繰越", "差引", "carried", "balance"},
				[]string{"carried_over", "carry_over", "balance_forward", "carried_forward", "balance"}},
			{"tax_excluded", []string{"税抜御買上", "税抜買上", "税抜", "買上", "subtotal", "tax_excluded"},
				[]string{"subtotal", "sub_total", "tax_excluded", "tax_excluded_amount", "net_amount"}},
			{"tax", []string{"消費税額等", "消費税額", "消費税", "税額", "tax", "vat"},
				[]string{"tax", "tax_amount", "consumption_tax", "vat", "sales_tax"}},
			{"current_total", []string{"今回御請求", "今回請求", "御請求額", "請求額", "total", "invoice"},
				[]string{"total", "total_amount", "grand_total", "invoice_total", "current_invoice", "amount"}},
			{"current_charge", []string{"今回発生", "今回売上", "発生額", "current", "sales"},
				[]string{"current_amount", "current_charge", "new_charges", "sales", "current_sales"}},
			{"issuer", []string{"会社", "請求元", "発行元", "vendor", "supplier", "company"},
				[]string{"vendor.name", "supplier", "company_name", "company", "vendor_name", "name"}},
			{"issue_date", []string{"発行日", "請求日", "issue", "date", "日付"},
				[]string{"issue_date", "date", "invoice_date", "issued_date", "due_date"}},
			{"discount", []string{"値引", "割引", "discount"},
				[]string{"discount", "discount_amount"}},
		},
		Vocabulary: []VocabularyHint{
			{"金額", []string{"amount", "total", "sum", "price"}},
			{"日", []string{"date", "day"}},
			{"番号", []string{"number", "no", "id"}},
			{"名", []string{"name"}},
			{"額", []string{"amount", "sum", "total"}},
			{"税", []string{"tax"}},
		},
		StripChars: "（）()・御",
		RunLength:  defaultRunLength,
	}
}

const rulesSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"concepts": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "keywords", "paths"],
				"properties": {
					"name": {"type": "string"},
					"keywords": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
					"paths": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}}
				}
			}
		},
		"vocabulary": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["word", "fragments"],
				"properties": {
					"word": {"type": "string", "minLength": 1},
					"fragments": {"type": "array", "items": {"type": "string", "minLength": 1}}
				}
			}
		},
		"stripChars": {"type": "string"},
		"runLength": {"type": "integer", "minimum": 1}
	}
}`

// ParseRules validates a rules document and overlays it on DefaultRules:
// sections missing from the document keep their defaults.
func ParseRules(data []byte) (Rules, error) {
	schema, err := common.CompileSchema("resolver-rules.json", rulesSchema)
	if err != nil {
		return Rules{}, err
	}
	if err := common.ValidateJSON(schema, data); err != nil {
		return Rules{}, fmt.Errorf("invalid resolver rules: %w", err)
	}

	rules := DefaultRules()
	if err := json.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("invalid resolver rules: %w", err)
	}
	if rules.RunLength <= 0 {
		rules.RunLength = defaultRunLength
	}
	return rules, nil
}

// LoadRules reads a rules file. An empty path yields DefaultRules.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read resolver rules: %w", err)
	}
	return ParseRules(data)
}
