package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/bosocmputer/document_extract_gemini/internal/ai"
	"github.com/bosocmputer/document_extract_gemini/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExtractor answers per file name.
type fakeExtractor struct {
	answers map[string]string
	errs    map[string]error
	calls   []ai.ExtractRequest
	onCall  func(i int)
}

func (f *fakeExtractor) GetProviderName() string { return "fake" }

func (f *fakeExtractor) Extract(ctx context.Context, req ai.ExtractRequest) (*ai.ExtractResponse, error) {
	f.calls = append(f.calls, req)
	if f.onCall != nil {
		f.onCall(len(f.calls) - 1)
	}
	if err := f.errs[req.FileName]; err != nil {
		return nil, err
	}
	return &ai.ExtractResponse{Result: f.answers[req.FileName], Provider: "fake"}, nil
}

func batchFields() []model.Field {
	return []model.Field{
		{ID: "f1", Key: "field_1", Label: "会社名", ExtractName: "会社名", Column: "A", Enabled: true},
		{ID: "f2", Key: "field_2", Label: "合計金額", ExtractName: "合計金額", Column: "B", Enabled: true},
		{ID: "f3", Key: "field_3", Label: "備考", ExtractName: "備考", Column: "C", Enabled: false},
	}
}

func files(names ...string) []FileInput {
	out := make([]FileInput, len(names))
	for i, n := range names {
		out[i] = FileInput{Name: n, Data: []byte("%PDF")}
	}
	return out
}

func TestRunIsolatesFailures(t *testing.T) {
	ext := &fakeExtractor{
		answers: map[string]string{
			"a.pdf": "```json\n{\"items\":[{\"field_1\":\"Acme\",\"field_2\":1200}]}\n```",
			"b.pdf": "I could not read the document.",
			"c.pdf": `{"items":[{"field_1":"Beta","field_2":10},{"field_1":"Beta","field_2":20}]}`,
		},
	}
	o := NewOrchestrator(ext, nil, PrepareOptions{})

	var progress []int
	batch, err := o.Run(context.Background(), RunRequest{
		Files:        files("a.pdf", "b.pdf", "c.pdf"),
		Fields:       batchFields(),
		DocumentType: model.DocumentInvoice,
		OnProgress:   func(p Progress) { progress = append(progress, p.Index) },
	})
	require.NoError(t, err)

	require.Len(t, batch.Results, 3)
	assert.Equal(t, []int{0, 1, 2}, progress)
	assert.Equal(t, 2, batch.SuccessCount())
	assert.False(t, batch.Cancelled)

	a := batch.Results[0]
	assert.True(t, a.Success)
	require.Len(t, a.ExtractedValues, 1)
	assert.Equal(t, "Acme", a.ExtractedValues[0]["f1"])
	assert.Equal(t, int64(1200), a.ExtractedValues[0]["f2"])
	assert.NotContains(t, a.ExtractedValues[0], "f3")

	b := batch.Results[1]
	assert.False(t, b.Success)
	assert.Equal(t, ParseErrorMessage, b.Error)
	assert.Equal(t, "I could not read the document.", b.RawResponse)

	c := batch.Results[2]
	assert.True(t, c.Success)
	assert.Len(t, c.ExtractedValues, 2)

	state, _ := o.Status()
	assert.Equal(t, StateCompleted, state)

	entry := NewHistoryEntry(batch)
	assert.Equal(t, 3, entry.FileCount)
	assert.Equal(t, 2, entry.SuccessCount)
	assert.Equal(t, []string{"会社名", "合計金額"}, entry.Fields)
}

func TestRunTransportFailure(t *testing.T) {
	ext := &fakeExtractor{
		answers: map[string]string{"b.pdf": `{"field_1":"ok"}`},
		errs:    map[string]error{"a.pdf": errors.New("upstream unavailable")},
	}
	batch, err := NewOrchestrator(ext, nil, PrepareOptions{}).Run(context.Background(), RunRequest{
		Files:  files("a.pdf", "b.pdf"),
		Fields: batchFields(),
	})
	require.NoError(t, err)

	assert.False(t, batch.Results[0].Success)
	assert.Equal(t, "upstream unavailable", batch.Results[0].Error)
	assert.Empty(t, batch.Results[0].RawResponse)
	assert.True(t, batch.Results[1].Success)
	assert.Equal(t, "ok", batch.Results[1].ExtractedValues[0]["f1"])
}

func TestRunSendsCompiledInstruction(t *testing.T) {
	ext := &fakeExtractor{answers: map[string]string{}}
	_, err := NewOrchestrator(ext, nil, PrepareOptions{}).Run(context.Background(), RunRequest{
		Files:        files("a.pdf"),
		Fields:       batchFields(),
		Rules:        &model.CompanyRuleSet{Text: "rule text"},
		DocumentType: model.DocumentDelivery,
	})
	require.NoError(t, err)
	require.Len(t, ext.calls, 1)
	assert.Contains(t, ext.calls[0].Instruction, "rule text")
	assert.Equal(t, "application/pdf", ext.calls[0].MIMEType)
	assert.Equal(t, model.DocumentDelivery, ext.calls[0].DocumentType)
}

func TestRunUnsupportedFileIsRecorded(t *testing.T) {
	ext := &fakeExtractor{answers: map[string]string{"b.pdf": `{}`}}
	batch, err := NewOrchestrator(ext, nil, PrepareOptions{}).Run(context.Background(), RunRequest{
		Files:  files("a.txt", "b.pdf"),
		Fields: batchFields(),
	})
	require.NoError(t, err)
	assert.False(t, batch.Results[0].Success)
	assert.Contains(t, batch.Results[0].Error, "unsupported file type")
	assert.Len(t, ext.calls, 1)
}

func TestRunSetupErrors(t *testing.T) {
	o := NewOrchestrator(&fakeExtractor{}, nil, PrepareOptions{})

	_, err := o.Run(context.Background(), RunRequest{Fields: batchFields()})
	assert.ErrorIs(t, err, ErrNoFiles)

	disabled := batchFields()
	for i := range disabled {
		disabled[i].Enabled = false
	}
	_, err = o.Run(context.Background(), RunRequest{Files: files("a.pdf"), Fields: disabled})
	assert.ErrorIs(t, err, ai.ErrNoEnabledFields)

	state, _ := o.Status()
	assert.Equal(t, StateIdle, state)
}

func TestRunCancelBetweenFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ext := &fakeExtractor{answers: map[string]string{"a.pdf": `{"field_1":"x"}`}}
	ext.onCall = func(i int) {
		if i == 0 {
			cancel()
		}
	}

	batch, err := NewOrchestrator(ext, nil, PrepareOptions{}).Run(ctx, RunRequest{
		Files:  files("a.pdf", "b.pdf", "c.pdf"),
		Fields: batchFields(),
	})
	require.NoError(t, err)
	assert.True(t, batch.Cancelled)
	assert.Len(t, batch.Results, 1)
	assert.Len(t, ext.calls, 1)
	assert.Equal(t, 3, batch.FileCount)
}
