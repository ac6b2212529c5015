package ai

import (
	"strings"
	"testing"

	"github.com/bosocmputer/document_extract_gemini/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFields() []model.Field {
	return []model.Field{
		{ID: "f1", Key: "field_1", Label: "会社名", ExtractName: "会社名", Column: "A", Enabled: true},
		{ID: "f2", Key: "field_2", Label: "備考", ExtractName: "備考", Column: "B", Enabled: false},
		{ID: "f3", Key: "field_3", Label: "今回御請求額", ExtractName: "今回御請求額", Column: "C", Enabled: true},
	}
}

func TestBuildExtractionPromptSimple(t *testing.T) {
	p, err := BuildExtractionPrompt(testFields(), &model.CompanyRuleSet{Text: "  \n"}, PromptOptions{})
	require.NoError(t, err)

	assert.False(t, p.Staged)
	assert.Empty(t, p.TargetKey)
	assert.True(t, strings.HasPrefix(p.Text, "【タスク】帳票画像から以下の項目を抽出してJSON出力"))
	assert.Contains(t, p.Text, "明細行ではなくサマリー行の値を優先")
	assert.Contains(t, p.Text, "【出力形式】JSONのみ。マークダウン禁止。")
	assert.Contains(t, p.Text, "field_1 = \"会社名\"\nfield_3 = \"今回御請求額\"")
	assert.NotContains(t, p.Text, "field_2")

	want := "{\n  \"items\": [\n    {\n        \"field_1\": \"(値)\",\n        \"field_3\": \"(値)\"\n    }\n  ]\n}"
	assert.True(t, strings.HasSuffix(p.Text, want), p.Text)
}

func TestBuildExtractionPromptStaged(t *testing.T) {
	rules := &model.CompanyRuleSet{Text: "【A社】合計を使う"}
	p, err := BuildExtractionPrompt(testFields(), rules, PromptOptions{})
	require.NoError(t, err)

	assert.True(t, p.Staged)
	assert.Equal(t, "field_3", p.TargetKey)
	assert.True(t, strings.HasPrefix(p.Text, "【最重要：会社別の計算ルール - AIが自動判定して適用】"))
	assert.Contains(t, p.Text, "【ステップ2】以下のルール一覧から該当する会社を探し、ルールを適用する\n\n【A社】合計を使う\n\n【ステップ3】")
	assert.Contains(t, p.Text, "の計算結果をfield_3に出力")
	assert.Contains(t, p.Text, "【出力形式】JSONのみ出力。マークダウン禁止。")
	assert.NotContains(t, p.Text, "サマリー行")

	// ordering of the stages
	i1 := strings.Index(p.Text, "【ステップ1】")
	i4 := strings.Index(p.Text, "【ステップ4】")
	im := strings.Index(p.Text, "【項目とキーの対応】")
	assert.True(t, i1 < i4 && i4 < im)
}

func TestBuildExtractionPromptTargetPlaceholder(t *testing.T) {
	fields := []model.Field{{ID: "f1", Key: "field_1", Label: "発行日", ExtractName: "発行日", Column: "A", Enabled: true}}
	p, err := BuildExtractionPrompt(fields, &model.CompanyRuleSet{Text: "rule"}, PromptOptions{})
	require.NoError(t, err)
	assert.Equal(t, TargetPlaceholderKey, p.TargetKey)
	assert.Contains(t, p.Text, "field_X")
}

func TestBuildExtractionPromptCustomVariants(t *testing.T) {
	fields := []model.Field{
		{ID: "f1", Key: "field_1", Label: "合計", ExtractName: "合計", Column: "A", Enabled: true},
	}
	p, err := BuildExtractionPrompt(fields, &model.CompanyRuleSet{Text: "rule"}, PromptOptions{TargetVariants: []string{"合計"}})
	require.NoError(t, err)
	assert.Equal(t, "field_1", p.TargetKey)
}

func TestBuildExtractionPromptNoFields(t *testing.T) {
	fields := testFields()
	for i := range fields {
		fields[i].Enabled = false
	}
	_, err := BuildExtractionPrompt(fields, nil, PromptOptions{})
	assert.ErrorIs(t, err, ErrNoEnabledFields)
}

func TestBuildExtractionPromptNilRules(t *testing.T) {
	p, err := BuildExtractionPrompt(testFields(), nil, PromptOptions{})
	require.NoError(t, err)
	assert.False(t, p.Staged)
}

func TestSampleOutputDeduplicatesKeys(t *testing.T) {
	fields := []model.Field{
		{Key: "a", Enabled: true},
		{Key: "b", Enabled: true},
		{Key: "a", Enabled: true},
	}
	s, err := sampleOutput(fields)
	require.NoError(t, err)
	assert.Equal(t, "{\n        \"a\": \"(値)\",\n        \"b\": \"(値)\"\n    }", s)
}

func TestDefaultPrompt(t *testing.T) {
	assert.Contains(t, DefaultPrompt(model.DocumentInvoice), `ルート要素は "invoices" という配列にする。`)
	assert.Contains(t, DefaultPrompt(model.DocumentDelivery), `"delivery_number": ""`)
	assert.Empty(t, DefaultPrompt(model.DocumentType("receipt")))
}
