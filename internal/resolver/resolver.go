// resolver.go - Maps a schema-unstable AI response item onto field values
//
// Stages, first hit wins:
//  1. exact key (field key, label, extract name)
//  2. keyword table (concept -> candidate keys)
//  3. character-run substring of the cleaned label
//  4. cross-vocabulary fragments (金額 -> amount, ...)
//
// Stages 2-4 search the flattened view of the item, in which nested objects
// become dotted paths and arrays are skipped.

package resolver

import (
	"strings"
	"unicode"

	"github.com/bosocmputer/document_extract_gemini/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/text/width"
)

// Stage identifies which matcher produced a value.
type Stage int

const (
	StageNone Stage = iota
	StageExactKey
	StageKeyword
	StageCharacterRun
	StageVocabulary
)

func (s Stage) String() string {
	switch s {
	case StageExactKey:
		return "exact_key"
	case StageKeyword:
		return "keyword"
	case StageCharacterRun:
		return "character_run"
	case StageVocabulary:
		return "vocabulary"
	default:
		return "none"
	}
}

// Match is a resolved value together with where it came from.
type Match struct {
	Value any
	Stage Stage
	Path  string
}

type concept struct {
	name     string
	keywords []string // normalised
	paths    []string // as configured, used for exact nested lookup
	needles  []string // normalised paths, used for substring search
}

type vocabulary struct {
	word      string
	fragments []string
}

// Resolver is immutable after New and safe for concurrent use.
type Resolver struct {
	concepts   []concept
	vocabulary []vocabulary
	strip      map[rune]bool
	runLength  int
}

// New prepares a resolver from rules.
func New(rules Rules) *Resolver {
	r := &Resolver{
		strip:     make(map[rune]bool),
		runLength: rules.RunLength,
	}
	if r.runLength <= 0 {
		r.runLength = defaultRunLength
	}

	for _, c := range rules.Concepts {
		compiled := concept{name: c.Name, paths: append([]string(nil), c.Paths...)}
		for _, kw := range c.Keywords {
			compiled.keywords = append(compiled.keywords, normalize(kw))
		}
		for _, p := range c.Paths {
			compiled.needles = append(compiled.needles, normalize(p))
		}
		r.concepts = append(r.concepts, compiled)
	}

	for _, v := range rules.Vocabulary {
		hint := vocabulary{word: normalize(v.Word)}
		for _, f := range v.Fragments {
			hint.fragments = append(hint.fragments, normalize(f))
		}
		r.vocabulary = append(r.vocabulary, hint)
	}

	for _, c := range width.Fold.String(rules.StripChars) {
		r.strip[c] = true
	}
	for _, c := range rules.StripChars {
		r.strip[c] = true
	}
	return r
}

// Default returns a resolver using DefaultRules.
func Default() *Resolver {
	return New(DefaultRules())
}

// Resolve returns the best-guess value for field in item, or nil.
func (r *Resolver) Resolve(item any, field model.Field) any {
	return r.Explain(item, field).Value
}

// Explain is Resolve plus the stage and path that produced the value.
func (r *Resolver) Explain(item any, field model.Field) Match {
	doc, ok := item.(bson.D)
	if !ok {
		return Match{}
	}

	// 1. exact key. A present key wins even when its value is null: the
	// service answered for that key explicitly.
	for _, key := range []string{field.Key, field.Label, field.ExtractName} {
		if key == "" {
			continue
		}
		if v, found := lookup(doc, key); found {
			return Match{Value: plain(v), Stage: StageExactKey, Path: key}
		}
	}

	entries := Flatten(doc)
	label := normalize(field.Label)

	if m, ok := r.matchKeyword(doc, entries, label); ok {
		return m
	}
	if m, ok := r.matchCharacterRun(entries, label); ok {
		return m
	}
	if m, ok := r.matchVocabulary(entries, label); ok {
		return m
	}
	return Match{}
}

func (r *Resolver) matchKeyword(doc bson.D, entries []Entry, label string) (Match, bool) {
	if label == "" {
		return Match{}, false
	}

	for _, c := range r.concepts {
		if !c.matchesLabel(label) {
			continue
		}

		for _, path := range c.paths {
			if v, found := lookupPath(doc, path); found && v != nil {
				return Match{Value: plain(v), Stage: StageKeyword, Path: path}, true
			}
		}

		for _, e := range entries {
			if e.Value == nil {
				continue
			}
			for _, needle := range c.needles {
				if strings.Contains(e.normalized, needle) {
					return Match{Value: plain(e.Value), Stage: StageKeyword, Path: e.Path}, true
				}
			}
		}
	}
	return Match{}, false
}

func (c concept) matchesLabel(label string) bool {
	for _, kw := range c.keywords {
		if strings.Contains(label, kw) || strings.Contains(kw, label) {
			return true
		}
	}
	return false
}

func (r *Resolver) matchCharacterRun(entries []Entry, label string) (Match, bool) {
	if label == "" {
		return Match{}, false
	}

	cleaned := []rune(r.clean(label))
	for _, e := range entries {
		if e.Value == nil || e.normalized == "" {
			continue
		}
		if strings.Contains(e.normalized, label) || strings.Contains(label, e.normalized) {
			return Match{Value: plain(e.Value), Stage: StageCharacterRun, Path: e.Path}, true
		}
		for i := 0; i+r.runLength <= len(cleaned); i++ {
			if strings.Contains(e.normalized, string(cleaned[i:i+r.runLength])) {
				return Match{Value: plain(e.Value), Stage: StageCharacterRun, Path: e.Path}, true
			}
		}
	}
	return Match{}, false
}

func (r *Resolver) matchVocabulary(entries []Entry, label string) (Match, bool) {
	for _, hint := range r.vocabulary {
		if hint.word == "" || !strings.Contains(label, hint.word) {
			continue
		}
		for _, fragment := range hint.fragments {
			for _, e := range entries {
				if e.Value != nil && strings.Contains(e.normalized, fragment) {
					return Match{Value: plain(e.Value), Stage: StageVocabulary, Path: e.Path}, true
				}
			}
		}
	}
	return Match{}, false
}

func (r *Resolver) clean(label string) string {
	var b strings.Builder
	for _, c := range label {
		if r.strip[c] || unicode.IsSpace(c) {
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// ResolveItems expands a parsed response into rows: the elements of its
// "items" array, the elements of a top-level array, or the whole object.
func (r *Resolver) ResolveItems(doc any, fields []model.Field) []model.Row {
	items := Items(doc)
	rows := make([]model.Row, 0, len(items))
	for _, item := range items {
		row := make(model.Row, len(fields))
		for _, f := range fields {
			row[f.ID] = r.Resolve(item, f)
		}
		rows = append(rows, row)
	}
	return rows
}

// Items implements the items-array expansion used by ResolveItems.
func Items(doc any) []any {
	switch v := doc.(type) {
	case bson.A:
		return []any(v)
	case bson.D:
		if items, found := lookup(v, "items"); found {
			switch it := items.(type) {
			case bson.A:
				return []any(it)
			case bson.D:
				return []any{it}
			}
		}
		return []any{v}
	default:
		return []any{doc}
	}
}

// normalize folds full-width/half-width variants and lower-cases.
func normalize(s string) string {
	return strings.ToLower(width.Fold.String(s))
}
