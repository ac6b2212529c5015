// batch.go - Sequential batch extraction: one AI call per file, failures isolated per file

package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bosocmputer/document_extract_gemini/internal/ai"
	"github.com/bosocmputer/document_extract_gemini/internal/common"
	"github.com/bosocmputer/document_extract_gemini/internal/model"
	"github.com/bosocmputer/document_extract_gemini/internal/resolver"
	"github.com/google/uuid"
)

var (
	// ErrNoFiles is returned when a batch is started without input files.
	ErrNoFiles = errors.New("no files to process")
	// ErrBatchRunning is returned when a second batch is started on the same orchestrator.
	ErrBatchRunning = errors.New("a batch is already running")
)

// Error texts recorded on failed results.
const (
	ParseErrorMessage   = "JSON解析エラー"
	GenericErrorMessage = "処理エラー"
)

// State is the orchestrator's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return "idle"
	}
}

// FileInput is one uploaded document with its optional crop selection.
type FileInput struct {
	Name      string
	Data      []byte
	Selection *model.Selection
}

// Progress is reported after each file.
type Progress struct {
	Index    int
	Total    int
	FileName string
	Result   model.ExtractionResult
}

// RunRequest describes one batch.
type RunRequest struct {
	Files        []FileInput
	Fields       []model.Field
	Rules        *model.CompanyRuleSet
	DocumentType model.DocumentType
	OnProgress   func(Progress)
}

// Batch is the outcome of one run.
type Batch struct {
	ID           string
	DocumentType model.DocumentType
	Fields       []model.Field // enabled fields, in order
	Results      []model.ExtractionResult
	FileCount    int
	Cancelled    bool
	StartedAt    time.Time
	FinishedAt   time.Time
	Tokens       common.TokenUsage
	Summary      map[string]interface{}
}

// SuccessCount counts successful results.
func (b *Batch) SuccessCount() int {
	n := 0
	for _, r := range b.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Orchestrator runs batches one file at a time.
type Orchestrator struct {
	extractor ai.Extractor
	resolver  *resolver.Resolver
	prepare   PrepareOptions
	prompt    ai.PromptOptions

	mu      sync.Mutex
	state   State
	current int
}

// NewOrchestrator wires an extractor and resolver. A nil resolver uses the
// default tables.
func NewOrchestrator(extractor ai.Extractor, res *resolver.Resolver, prepare PrepareOptions) *Orchestrator {
	if res == nil {
		res = resolver.Default()
	}
	return &Orchestrator{
		extractor: extractor,
		resolver:  res,
		prepare:   prepare,
	}
}

// WithPromptOptions sets the instruction compiler options.
func (o *Orchestrator) WithPromptOptions(opts ai.PromptOptions) *Orchestrator {
	o.prompt = opts
	return o
}

// Status returns the state and, while running, the index of the file in flight.
func (o *Orchestrator) Status() (State, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state, o.current
}

func (o *Orchestrator) setCurrent(i int) {
	o.mu.Lock()
	o.current = i
	o.mu.Unlock()
}

// Run processes every file in order. A failing file produces a failed result
// and the run continues. Cancelling ctx stops before the next file; results
// collected so far are returned with Cancelled set.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*Batch, error) {
	if len(req.Files) == 0 {
		return nil, ErrNoFiles
	}
	fields := model.EnabledFields(req.Fields)
	prompt, err := ai.BuildExtractionPrompt(fields, req.Rules, o.prompt)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return nil, ErrBatchRunning
	}
	o.state = StateRunning
	o.current = 0
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.state = StateCompleted
		o.current = -1
		o.mu.Unlock()
	}()

	reqCtx := common.NewRequestContext(string(req.DocumentType))
	ctx = common.WithRequestContext(ctx, reqCtx)
	reqCtx.LogInfo("📂 %d files | %d fields | staged prompt: %v", len(req.Files), len(fields), prompt.Staged)

	batch := &Batch{
		ID:           uuid.New().String(),
		DocumentType: req.DocumentType,
		Fields:       model.CloneFields(fields),
		Results:      make([]model.ExtractionResult, 0, len(req.Files)),
		FileCount:    len(req.Files),
		StartedAt:    time.Now(),
	}

	for i, file := range req.Files {
		if ctx.Err() != nil {
			reqCtx.LogWarning("🛑 Batch cancelled before file %d/%d", i+1, len(req.Files))
			batch.Cancelled = true
			break
		}
		o.setCurrent(i)
		reqCtx.LogInfo("📄 [%d/%d] %s", i+1, len(req.Files), file.Name)

		result := o.processFile(ctx, reqCtx, file, req.DocumentType, prompt.Text, fields)
		batch.Results = append(batch.Results, result)

		if req.OnProgress != nil {
			req.OnProgress(Progress{Index: i, Total: len(req.Files), FileName: file.Name, Result: result})
		}
	}

	batch.FinishedAt = time.Now()
	batch.Tokens = reqCtx.TotalTokens
	batch.Summary = reqCtx.GetSummary()
	return batch, nil
}

func (o *Orchestrator) processFile(
	ctx context.Context,
	reqCtx *common.RequestContext,
	file FileInput,
	docType model.DocumentType,
	instruction string,
	fields []model.Field,
) model.ExtractionResult {
	result := model.ExtractionResult{FileName: file.Name}

	reqCtx.StartStep("prepare_input")
	input, err := PrepareInput(file.Name, file.Data, file.Selection, o.prepare)
	if err != nil {
		reqCtx.EndStep("failed", nil, err)
		result.Error = errorMessage(err)
		return result
	}
	result.HadSelection = input.HadSelection
	reqCtx.EndStep("success", nil, nil)

	reqCtx.StartStep("submit")
	resp, err := o.extractor.Extract(ctx, ai.ExtractRequest{
		FileName:     file.Name,
		MIMEType:     input.MIMEType,
		Data:         input.Data,
		DocumentType: docType,
		Instruction:  instruction,
	})
	if err != nil {
		reqCtx.EndStep("failed", nil, err)
		result.Error = errorMessage(err)
		return result
	}
	reqCtx.EndStep("success", resp.Tokens, nil)
	result.RawResponse = resp.Result
	result.Provider = resp.Provider
	result.Tokens = resp.Tokens

	reqCtx.StartStep("parse_response")
	parsed, err := ParseResponse(resp.Result)
	if err != nil {
		reqCtx.EndStep("failed", nil, err)
		result.Error = ParseErrorMessage
		return result
	}
	reqCtx.EndStep("success", nil, nil)

	reqCtx.StartStep("resolve_fields")
	rows := o.resolver.ResolveItems(parsed.Doc, fields)
	reqCtx.EndStep("success", nil, nil)

	reqCtx.StartStep("record_result")
	result.Success = true
	result.Data = json.RawMessage(parsed.JSON)
	result.ExtractedValues = rows
	reqCtx.EndStep("success", nil, nil)
	reqCtx.LogInfo("✅ %s: %d row(s)", file.Name, len(rows))

	return result
}

func errorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return GenericErrorMessage
	}
	return err.Error()
}

// NewHistoryEntry snapshots a batch for the history log.
func NewHistoryEntry(b *Batch) model.HistoryEntry {
	labels := make([]string, len(b.Fields))
	for i, f := range b.Fields {
		labels[i] = f.Label
	}
	return model.HistoryEntry{
		ID:           b.ID,
		Date:         b.FinishedAt,
		DocumentType: b.DocumentType,
		FileCount:    b.FileCount,
		SuccessCount: b.SuccessCount(),
		Fields:       labels,
		FieldDefs:    model.CloneFields(b.Fields),
		Results:      model.CloneResults(b.Results),
	}
}

// String is used in CLI output.
func (b *Batch) String() string {
	return fmt.Sprintf("%d/%d succeeded", b.SuccessCount(), b.FileCount)
}
