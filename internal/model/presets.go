// presets.go - Built-in field catalogs, preset templates and default company rules

package model

import (
	"fmt"
	"strings"

	"github.com/bosocmputer/document_extract_gemini/internal/column"
)

// PresetField is a commonly used extraction target the operator can add in one step.
type PresetField struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

var presetFieldsInvoice = []PresetField{
	{ID: "company_name", Label: "会社名（請求元）", Description: "請求書を発行した会社名"},
	{ID: "issue_date", Label: "発行日", Description: "請求書の発行日"},
	{ID: "closing_date", Label: "締日", Description: "締め日"},
	{ID: "due_date", Label: "支払期限", Description: "支払い期限日"},
	{ID: "invoice_number", Label: "請求書番号", Description: "請求書の番号"},
	{ID: "previous_balance", Label: "前回請求額", Description: "前回の請求金額"},
	{ID: "payment_received", Label: "入金額", Description: "入金された金額"},
	{ID: "carried_over", Label: "繰越額", Description: "繰り越し金額"},
	{ID: "current_amount", Label: "今回発生額", Description: "今回新規に発生した金額"},
	{ID: "subtotal", Label: "小計", Description: "税抜き小計"},
	{ID: "tax", Label: "消費税", Description: "消費税額"},
	{ID: "total", Label: "合計金額", Description: "税込み合計金額"},
	{ID: "tax_excluded_purchase", Label: "税抜御買上額", Description: "税抜きの購入金額"},
	{ID: "tax_amount", Label: "消費税額等", Description: "消費税額"},
	{ID: "current_purchase", Label: "今回お買上高", Description: "今回のお買い上げ金額"},
	{ID: "total_request", Label: "今回御請求額", Description: "今回の請求総額"},
	{ID: "adjustment", Label: "調整額", Description: "調整金額"},
	{ID: "discount", Label: "値引", Description: "値引き金額"},
}

var presetFieldsDelivery = []PresetField{
	{ID: "company_name", Label: "会社名（納品元）", Description: "納品書を発行した会社名"},
	{ID: "delivery_date", Label: "納品日", Description: "納品日"},
	{ID: "delivery_number", Label: "納品書番号", Description: "納品書の番号"},
	{ID: "client_name", Label: "納品先", Description: "納品先の会社名"},
	{ID: "product_name", Label: "品名", Description: "商品・品目名"},
	{ID: "quantity", Label: "数量", Description: "数量"},
	{ID: "unit_price", Label: "単価", Description: "単価"},
	{ID: "amount", Label: "金額", Description: "金額"},
	{ID: "subtotal", Label: "小計", Description: "税抜き小計"},
	{ID: "tax", Label: "消費税", Description: "消費税額"},
	{ID: "total", Label: "合計金額", Description: "税込み合計金額"},
	{ID: "remarks", Label: "備考", Description: "備考欄"},
}

// PresetFields returns the catalog for a document type.
func PresetFields(docType DocumentType) []PresetField {
	src := presetFieldsInvoice
	if docType == DocumentDelivery {
		src = presetFieldsDelivery
	}
	out := make([]PresetField, len(src))
	copy(out, src)
	return out
}

// FindPresetField looks a catalog entry up by id.
func FindPresetField(docType DocumentType, id string) (PresetField, bool) {
	for _, p := range PresetFields(docType) {
		if p.ID == id {
			return p, true
		}
	}
	return PresetField{}, false
}

type presetTemplate struct {
	id     string
	name   string
	doc    DocumentType
	labels []string
}

var presetTemplates = []presetTemplate{
	{"preset_graphic_creation", "グラフィッククリエーション用", DocumentInvoice,
		[]string{"前回御請求額", "御入金金額", "調整額", "差引繰越金額", "税抜御買上額", "消費税額等", "今回御請求額"}},
	{"preset_toda", "戸田工業用", DocumentInvoice,
		[]string{"前回請求額", "入金額", "繰越額", "今回お買上高", "今回御請求額"}},
	{"preset_standard_invoice", "標準請求書", DocumentInvoice,
		[]string{"会社名（請求元）", "発行日", "前回請求額", "入金額", "繰越額", "今回発生額", "合計金額"}},
	{"preset_standard_delivery", "標準納品書", DocumentDelivery,
		[]string{"会社名（納品元）", "納品日", "納品書番号", "納品先", "小計", "消費税", "合計金額"}},
	{"preset_delivery_detail", "納品書（明細付き）", DocumentDelivery,
		[]string{"納品元", "納品日", "品名", "数量", "単価", "金額", "合計金額"}},
}

// PresetTemplates returns fresh copies of the built-in templates for a
// document type. Fields are numbered f1.., field_1.. in columns A...
func PresetTemplates(docType DocumentType) []Template {
	var out []Template
	for _, p := range presetTemplates {
		if p.doc != docType {
			continue
		}
		out = append(out, p.build())
	}
	return out
}

// FindPresetTemplate looks a preset up by id across all document types.
func FindPresetTemplate(id string) (Template, bool) {
	for _, p := range presetTemplates {
		if p.id == id {
			return p.build(), true
		}
	}
	return Template{}, false
}

func (p presetTemplate) build() Template {
	fields := make([]Field, len(p.labels))
	for i, label := range p.labels {
		fields[i] = Field{
			ID:          fmt.Sprintf("f%d", i+1),
			Key:         fmt.Sprintf("field_%d", i+1),
			Label:       label,
			ExtractName: label,
			Column:      column.IndexToColumn(i),
			Enabled:     true,
		}
	}
	return Template{
		ID:           p.id,
		Name:         p.name,
		DocumentType: p.doc,
		Fields:       fields,
		IsPreset:     true,
	}
}

// DefaultFields is the field list of a brand new workspace.
func DefaultFields() []Field {
	return []Field{
		{ID: "f1", Key: "field_1", Label: "会社名（請求元）", ExtractName: "会社名（請求元）", Column: "A", Enabled: true},
		{ID: "f2", Key: "field_2", Label: "発行日", ExtractName: "発行日", Column: "B", Enabled: true},
		{ID: "f3", Key: "field_3", Label: "合計金額", ExtractName: "合計金額", Column: "C", Enabled: true},
	}
}

// DefaultFieldCounter is the next numeric suffix after DefaultFields.
const DefaultFieldCounter = 4

// DefaultCompanyRules is installed when no saved rule text exists.
var DefaultCompanyRules = strings.Join([]string{
	"■「株式会社グラフィッククリエーション」の場合：",
	"「今回御請求額」には、帳票から「税抜御買上額」の値と「消費税額等」の値を足し算した合計を入れる。",
	"（帳票の右端にある「今回御請求額」欄の数値をそのまま使ってはいけない）",
	"計算式：今回御請求額 = 税抜御買上額 + 消費税額等",
	"",
	"■「戸田工業株式会社」の場合：",
	"「今回御請求額」には、「今回お買上高」セクション内の「合計金額」を入れる。",
	"（右端の「今回ご請求高」欄の値ではない）",
	"",
	"■その他の会社（デフォルト）：",
	"帳票に記載されている値をそのまま抽出する。",
}, "\n")
