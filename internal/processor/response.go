// response.go - Turns the AI service's text answer into an ordered document

package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrMalformedResponse means the answer held no parseable JSON object.
var ErrMalformedResponse = errors.New("malformed AI response")

// ParsedResponse is a successfully parsed answer. Doc is a bson.D whose key
// order matches the response text; a top-level array is wrapped as
// {"items": [...]}.
type ParsedResponse struct {
	Doc  bson.D
	JSON string
}

// ExtractJSON strips markdown fences and trims to the outermost {...} span,
// or [...] when the answer is a bare array.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)

	if _, after, found := strings.Cut(s, "```json"); found {
		s, _, _ = strings.Cut(after, "```")
	} else if _, after, found := strings.Cut(s, "```"); found {
		s, _, _ = strings.Cut(after, "```")
	}
	s = strings.TrimSpace(s)

	open, close := "{", "}"
	if strings.HasPrefix(s, "[") {
		open, close = "[", "]"
	}

	start := strings.Index(s, open)
	end := strings.LastIndex(s, close)
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

// ParseResponse parses the AI text into an ordered document. Literal control
// characters inside strings are escaped before parsing.
func ParseResponse(text string) (*ParsedResponse, error) {
	jsonStr := ExtractJSON(text)
	if jsonStr == "" {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	if !json.Valid([]byte(jsonStr)) {
		repaired := fixJSONEscaping(jsonStr)
		if !json.Valid([]byte(repaired)) {
			return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedResponse)
		}
		jsonStr = repaired
	}

	doc, err := unmarshalOrdered(jsonStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &ParsedResponse{Doc: doc, JSON: jsonStr}, nil
}

// unmarshalOrdered decodes plain JSON into bson containers, keeping key
// order. Keys such as "$date" are ordinary keys here, not Extended JSON.
func unmarshalOrdered(jsonStr string) (bson.D, error) {
	dec := json.NewDecoder(strings.NewReader(jsonStr))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}

	switch t := v.(type) {
	case bson.D:
		return t, nil
	case bson.A:
		return bson.D{{Key: "items", Value: t}}, nil
	default:
		return nil, fmt.Errorf("expected an object or array, got %T", v)
	}
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			doc := bson.D{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				doc = append(doc, bson.E{Key: key, Value: v})
			}
			_, err := dec.Token() // }
			return doc, err
		case '[':
			arr := bson.A{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			_, err := dec.Token() // ]
			return arr, err
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	default:
		// string, bool or nil
		return tok, nil
	}
}

var jsonStringPattern = regexp.MustCompile(`"([^"\\]*(?:\\.[^"\\]*)*)"`)

// fixJSONEscaping escapes literal control characters inside JSON strings.
// Models sometimes emit raw newlines in long values.
func fixJSONEscaping(jsonStr string) string {
	return jsonStringPattern.ReplaceAllStringFunc(jsonStr, func(match string) string {
		content := match[1 : len(match)-1]

		var builder strings.Builder
		for _, ch := range content {
			switch {
			case ch == '\n':
				builder.WriteString(`\n`)
			case ch == '\r':
				builder.WriteString(`\r`)
			case ch == '\t':
				builder.WriteString(`\t`)
			case ch < 0x20:
				builder.WriteString(fmt.Sprintf("\\u%04x", ch))
			default:
				builder.WriteRune(ch)
			}
		}
		return `"` + builder.String() + `"`
	})
}
