// prompt_extraction.go - Builds the field extraction instruction sent with each document

package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bosocmputer/document_extract_gemini/internal/model"
)

// ErrNoEnabledFields is returned when there is nothing to extract.
var ErrNoEnabledFields = errors.New("no enabled fields")

// TargetPlaceholderKey is used in the rule section when no field looks like
// the current amount due.
const TargetPlaceholderKey = "field_X"

// DefaultTargetVariants are the ExtractName fragments that identify the
// "current amount due" field.
var DefaultTargetVariants = []string{"今回御請求", "今回請求", "御請求額"}

// PromptOptions tunes BuildExtractionPrompt.
type PromptOptions struct {
	// TargetVariants overrides DefaultTargetVariants when non-empty.
	TargetVariants []string
}

// Prompt is a compiled instruction.
type Prompt struct {
	Text      string
	TargetKey string // only set for staged prompts
	Staged    bool
}

// BuildExtractionPrompt compiles the instruction for the enabled fields in
// order. Non-empty company rules produce the staged variant.
func BuildExtractionPrompt(fields []model.Field, rules *model.CompanyRuleSet, opts PromptOptions) (Prompt, error) {
	enabled := model.EnabledFields(fields)
	if len(enabled) == 0 {
		return Prompt{}, ErrNoEnabledFields
	}

	mapping := fieldMapping(enabled)
	sample, err := sampleOutput(enabled)
	if err != nil {
		return Prompt{}, err
	}

	if rules.IsEmpty() {
		return Prompt{Text: simplePrompt(mapping, sample)}, nil
	}

	variants := opts.TargetVariants
	if len(variants) == 0 {
		variants = DefaultTargetVariants
	}
	target := findTargetKey(enabled, variants)

	return Prompt{
		Text:      stagedPrompt(rules.Text, target, mapping, sample),
		TargetKey: target,
		Staged:    true,
	}, nil
}

func findTargetKey(fields []model.Field, variants []string) string {
	for _, f := range fields {
		for _, v := range variants {
			if v != "" && strings.Contains(f.ExtractName, v) {
				return f.Key
			}
		}
	}
	return TargetPlaceholderKey
}

// fieldMapping renders one `key = "extractName"` line per field.
func fieldMapping(fields []model.Field) string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, fmt.Sprintf(`%s = "%s"`, f.Key, f.ExtractName))
	}
	return strings.Join(lines, "\n")
}

// sampleOutput renders the example item with 4-space indentation; lines after
// the first are shifted to sit inside the items array.
func sampleOutput(fields []model.Field) (string, error) {
	seen := make(map[string]bool, len(fields))
	var keys []string
	for _, f := range fields {
		if !seen[f.Key] {
			seen[f.Key] = true
			keys = append(keys, f.Key)
		}
	}

	lines := []string{"{"}
	for i, k := range keys {
		enc, err := marshalNoEscape(k)
		if err != nil {
			return "", fmt.Errorf("failed to encode field key %q: %w", k, err)
		}
		line := "    " + enc + `: "(値)"`
		if i < len(keys)-1 {
			line += ","
		}
		lines = append(lines, line)
	}
	lines = append(lines, "}")

	for i := 1; i < len(lines); i++ {
		lines[i] = "    " + lines[i]
	}
	return strings.Join(lines, "\n"), nil
}

func marshalNoEscape(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func itemsBlock(sample string) string {
	return "{\n  \"items\": [\n    " + sample + "\n  ]\n}"
}

func stagedPrompt(rules, targetKey, mapping, sample string) string {
	return `【最重要：会社別の計算ルール - AIが自動判定して適用】
※このルールは絶対に守ること。帳票を見て会社名を特定し、該当するルールを適用すること。

【ステップ1】まず帳票から「請求元」または「発行元」の会社名を読み取る

【ステップ2】以下のルール一覧から該当する会社を探し、ルールを適用する

` + rules + `

【ステップ3】該当する会社が見つかった場合
- その会社のルールに従って値を計算・抽出する
- 単純に帳票の数値をコピーするのではなく、ルールに基づいた計算を行う
- 例：「税抜御買上額」+「消費税額等」の計算結果を` + targetKey + `に出力

【ステップ4】該当する会社が見つからない場合
- 「その他の会社（デフォルト）」のルールを適用する
- デフォルトルールもない場合は、帳票の値をそのまま抽出する

【項目とキーの対応】
` + mapping + `

【抽出ルール】
- 金額は数値のみ（カンマ・円記号除去）
- 日付は "YYYY/MM/DD" 形式
- 該当なしは null

【出力形式】JSONのみ出力。マークダウン禁止。
` + itemsBlock(sample)
}

func simplePrompt(mapping, sample string) string {
	return `【タスク】帳票画像から以下の項目を抽出してJSON出力

【項目とキーの対応】
` + mapping + `

【抽出ルール】
- 金額は数値のみ（カンマ・円記号除去）
- 日付は "YYYY/MM/DD" 形式
- 該当なしは null
- 明細行ではなくサマリー行の値を優先

【出力形式】JSONのみ。マークダウン禁止。
` + itemsBlock(sample)
}
