package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRulesOverlaysDefaults(t *testing.T) {
	rules, err := ParseRules([]byte(`{
		"concepts": [{"name": "customer", "keywords": ["得意先"], "paths": ["customer_code"]}],
		"runLength": 2
	}`))
	require.NoError(t, err)

	require.Len(t, rules.Concepts, 1)
	assert.Equal(t, "customer", rules.Concepts[0].Name)
	assert.Equal(t, 2, rules.RunLength)
	assert.Equal(t, DefaultRules().Vocabulary, rules.Vocabulary, "vocabulary keeps its default")
	assert.Equal(t, DefaultRules().StripChars, rules.StripChars)

	doc := parseDoc(t, `{"customer_code": "C-001"}`)
	m := New(rules).Explain(doc, field("f1", "field_1", "得意先コード"))
	assert.Equal(t, "C-001", m.Value)
	assert.Equal(t, StageKeyword, m.Stage)
}

func TestParseRulesRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"zero run length":  `{"runLength": 0}`,
		"concept no paths": `{"concepts": [{"name": "x", "keywords": ["a"], "paths": []}]}`,
		"empty keyword":    `{"concepts": [{"name": "x", "keywords": [""], "paths": ["a"]}]}`,
		"not json":         `{concepts`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRules([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), rules)

	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"stripChars": "（）"}`), 0o644))
	rules, err = LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, "（）", rules.StripChars)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDefaultRulesCoverEveryConcept(t *testing.T) {
	names := map[string]bool{}
	for _, c := range DefaultRules().Concepts {
		names[c.Name] = true
		assert.NotEmpty(t, c.Keywords, c.Name)
		assert.NotEmpty(t, c.Paths, c.Name)
	}
	for _, want := range []string{
		"previous_balance", "payment_received", "adjustment", "carried_over", "tax_excluded",
		"tax", "current_total", "current_charge", "issuer", "issue_date", "discount",
	} {
		assert.True(t, names[want], want)
	}
}
