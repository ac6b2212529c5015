package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "Here you go:\n```json\n{\"a\":1}\n```\nthanks", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `result: {"a":{"b":2}} done.`, `{"a":{"b":2}}`},
		{"array", "```json\n[{\"a\":1},{\"a\":2}]\n```", `[{"a":1},{"a":2}]`},
		{"no object", "sorry, I cannot read this", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestParseResponseKeepsKeyOrder(t *testing.T) {
	parsed, err := ParseResponse("```json\n{\"items\":[{\"z\":1,\"a\":\"x\",\"m\":null}]}\n```")
	require.NoError(t, err)

	items, ok := parsed.Doc[0].Value.(bson.A)
	require.True(t, ok)
	item, ok := items[0].(bson.D)
	require.True(t, ok)

	var keys []string
	for _, e := range item {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"z", "a", "m"}, keys)
	assert.Nil(t, item[2].Value)
}

func TestParseResponseWrapsArray(t *testing.T) {
	parsed, err := ParseResponse(`[{"a":1}]`)
	require.NoError(t, err)
	require.Len(t, parsed.Doc, 1)
	assert.Equal(t, "items", parsed.Doc[0].Key)
	assert.Equal(t, `[{"a":1}]`, parsed.JSON)
}

func TestParseResponseRepairsControlCharacters(t *testing.T) {
	parsed, err := ParseResponse("{\"note\":\"line1\nline2\"}")
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", parsed.Doc[0].Value)
	assert.Equal(t, `{"note":"line1\nline2"}`, parsed.JSON)
}

func TestParseResponseReservedKeysArePlainJSON(t *testing.T) {
	parsed, err := ParseResponse(`{"items":[{"date": {"$date": "2024-01-02"}, "id": {"$oid": "x"}}]}`)
	require.NoError(t, err)

	item := parsed.Doc[0].Value.(bson.A)[0].(bson.D)
	assert.Equal(t, bson.D{{Key: "$date", Value: "2024-01-02"}}, item[0].Value)
	assert.Equal(t, bson.D{{Key: "$oid", Value: "x"}}, item[1].Value)
}

func TestParseResponseNumbers(t *testing.T) {
	parsed, err := ParseResponse(`{"count": 3, "total": 1234567890123, "rate": 0.1, "big": 1e300, "ok": true}`)
	require.NoError(t, err)

	assert.Equal(t, bson.D{
		{Key: "count", Value: int64(3)},
		{Key: "total", Value: int64(1234567890123)},
		{Key: "rate", Value: 0.1},
		{Key: "big", Value: 1e300},
		{Key: "ok", Value: true},
	}, parsed.Doc)
}

func TestParseResponseMalformed(t *testing.T) {
	_, err := ParseResponse(`{"a": 1,,}`)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	_, err = ParseResponse("no json here")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}
