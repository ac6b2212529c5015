// request_context.go - Batch run tracking and logging

package common

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bosocmputer/document_extract_gemini/configs"
	"github.com/google/uuid"
)

// RequestContext tracks one extraction request (usually one batch run) with
// per-step timing and accumulated token cost.
type RequestContext struct {
	RequestID           string
	DocumentType        string
	StartTime           time.Time
	Steps               []StepLog
	TotalTokens         TokenUsage
	CurrentStep         string
	CurrentStepStart    time.Time
	CurrentSubSteps     []SubStepLog
	CurrentSubStep      string
	CurrentSubStepStart time.Time

	mu sync.Mutex
}

// StepLog represents a single processing step
type StepLog struct {
	Name      string       `json:"name"`
	StartTime time.Time    `json:"start_time"`
	Duration  int64        `json:"duration_ms"`
	Status    string       `json:"status"` // "success", "failed", "skipped"
	Tokens    *TokenUsage  `json:"tokens,omitempty"`
	Error     string       `json:"error,omitempty"`
	SubSteps  []SubStepLog `json:"sub_steps,omitempty"`
}

// SubStepLog represents a detailed sub-operation within a step
type SubStepLog struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Duration  int64     `json:"duration_ms"`
	Details   string    `json:"details,omitempty"`
}

// TokenUsage tracks API token consumption
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	CostJPY      float64 `json:"cost_jpy"`
}

// Add accumulates another usage record.
func (t *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.TotalTokens += other.TotalTokens
	t.CostUSD += other.CostUSD
	t.CostJPY += other.CostJPY
}

// NewRequestContext creates a new request tracking context
func NewRequestContext(documentType string) *RequestContext {
	reqID := uuid.New().String()
	now := time.Now()

	log.Printf("[%s] 🚀 新しい処理を開始 | 帳票タイプ: %s | 時刻: %s", reqID, documentType, now.Format("15:04:05"))

	return &RequestContext{
		RequestID:    reqID,
		DocumentType: documentType,
		StartTime:    now,
		Steps:        []StepLog{},
	}
}

var stepDescriptions = map[string]string{
	"prepare_input":  "✂️ 入力準備（範囲切り抜き）",
	"submit":         "🤖 AI 抽出リクエスト",
	"parse_response": "🔄 応答の解析",
	"resolve_fields": "🧩 項目の照合",
	"record_result":  "📝 結果の記録",
	"export":         "📊 出力ファイル作成",
}

// StartStep begins tracking a new processing step
func (rc *RequestContext) StartStep(stepName string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.CurrentStep = stepName
	rc.CurrentStepStart = time.Now()

	desc := stepDescriptions[stepName]
	if desc == "" {
		desc = stepName
	}

	log.Printf("[%s] ┌── %s", rc.RequestID, desc)
}

// EndStep completes the current step and records timing
func (rc *RequestContext) EndStep(status string, tokens *TokenUsage, err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	duration := time.Since(rc.CurrentStepStart).Milliseconds()

	stepLog := StepLog{
		Name:      rc.CurrentStep,
		StartTime: rc.CurrentStepStart,
		Duration:  duration,
		Status:    status,
		Tokens:    tokens,
		SubSteps:  rc.CurrentSubSteps,
	}

	if err != nil {
		stepLog.Error = err.Error()
		log.Printf("[%s] ❌ FAILED - %s (%.2fs) - Error: %v",
			rc.RequestID, rc.CurrentStep, float64(duration)/1000, err)
	} else {
		logMsg := fmt.Sprintf("[%s] └── ✅ 完了: %.2f秒", rc.RequestID, float64(duration)/1000)

		if tokens != nil {
			rc.TotalTokens.Add(tokens)
			logMsg += fmt.Sprintf(" | 🪙 Tokens: 入力%d + 出力%d = %d | 💰 ¥%.2f",
				tokens.InputTokens, tokens.OutputTokens, tokens.TotalTokens, tokens.CostJPY)
		}

		if len(rc.CurrentSubSteps) > 0 {
			logMsg += fmt.Sprintf(" | サブステップ: %d", len(rc.CurrentSubSteps))
		}

		log.Print(logMsg)
	}

	rc.Steps = append(rc.Steps, stepLog)
	rc.CurrentStep = ""
	rc.CurrentSubSteps = []SubStepLog{}
}

// CalculateTokenCost computes USD and JPY cost from token counts using the
// configured Gemini pricing.
func CalculateTokenCost(inputTokens, outputTokens int) TokenUsage {
	inputCost := float64(inputTokens) * configs.GEMINI_INPUT_PRICE_PER_MILLION / 1_000_000
	outputCost := float64(outputTokens) * configs.GEMINI_OUTPUT_PRICE_PER_MILLION / 1_000_000
	costUSD := inputCost + outputCost

	return TokenUsage{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		CostUSD:      costUSD,
		CostJPY:      costUSD * configs.USD_TO_JPY,
	}
}

// GetSummary returns a final summary of the entire request
func (rc *RequestContext) GetSummary() map[string]interface{} {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	totalDuration := time.Since(rc.StartTime).Milliseconds()

	stepCounts := make(map[string]int)
	failed := 0
	for _, step := range rc.Steps {
		stepCounts[step.Name]++
		if step.Status == "failed" {
			failed++
		}
	}

	summary := map[string]interface{}{
		"request_id":         rc.RequestID,
		"document_type":      rc.DocumentType,
		"total_duration_ms":  totalDuration,
		"total_duration_sec": float64(totalDuration) / 1000,
		"step_counts":        stepCounts,
		"failed_steps":       failed,
		"total_steps":        len(rc.Steps),
		"token_usage": map[string]interface{}{
			"input_tokens":  rc.TotalTokens.InputTokens,
			"output_tokens": rc.TotalTokens.OutputTokens,
			"total_tokens":  rc.TotalTokens.TotalTokens,
			"cost_usd":      fmt.Sprintf("$%.4f", rc.TotalTokens.CostUSD),
			"cost_jpy":      fmt.Sprintf("¥%.2f", rc.TotalTokens.CostJPY),
		},
	}

	log.Printf("[%s] ═══ 🎯 処理結果 ═══", rc.RequestID)
	log.Printf("[%s] ⏱️  合計: %.2f秒 | 📝 ステップ: %d | 🪙 Tokens: %s入力 + %s出力 = %s | 💰 ¥%.2f",
		rc.RequestID,
		float64(totalDuration)/1000,
		len(rc.Steps),
		formatNumber(rc.TotalTokens.InputTokens),
		formatNumber(rc.TotalTokens.OutputTokens),
		formatNumber(rc.TotalTokens.TotalTokens),
		rc.TotalTokens.CostJPY)

	return summary
}

// StartSubStep begins tracking a detailed sub-operation
func (rc *RequestContext) StartSubStep(subStepName string) {
	if rc == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.CurrentSubStep = subStepName
	rc.CurrentSubStepStart = time.Now()

	log.Printf("[%s]    ├─ %s...", rc.RequestID, subStepName)
}

// EndSubStep completes the current sub-step and records timing
func (rc *RequestContext) EndSubStep(details string) {
	if rc == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.CurrentSubStep == "" {
		return
	}

	duration := time.Since(rc.CurrentSubStepStart).Milliseconds()

	rc.CurrentSubSteps = append(rc.CurrentSubSteps, SubStepLog{
		Name:      rc.CurrentSubStep,
		StartTime: rc.CurrentSubStepStart,
		Duration:  duration,
		Details:   details,
	})

	detailsMsg := ""
	if details != "" {
		detailsMsg = " | " + details
	}
	log.Printf("[%s]    └─ ✅ %.2f秒%s", rc.RequestID, float64(duration)/1000, detailsMsg)

	rc.CurrentSubStep = ""
}

// LogInfo logs info-level message with request ID prefix
func (rc *RequestContext) LogInfo(format string, args ...interface{}) {
	log.Printf("[%s] ℹ️  %s", rc.id(), fmt.Sprintf(format, args...))
}

// LogWarning logs warning-level message with request ID prefix
func (rc *RequestContext) LogWarning(format string, args ...interface{}) {
	log.Printf("[%s] ⚠️  %s", rc.id(), fmt.Sprintf(format, args...))
}

// LogError logs error-level message with request ID prefix
func (rc *RequestContext) LogError(format string, args ...interface{}) {
	log.Printf("[%s] ❌ %s", rc.id(), fmt.Sprintf(format, args...))
}

// id tolerates a nil context so providers can log outside a batch.
func (rc *RequestContext) id() string {
	if rc == nil {
		return "-"
	}
	return rc.RequestID
}

type requestContextKey struct{}

// WithRequestContext attaches rc to ctx for code that only receives a context.Context.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the attached RequestContext or nil. The Log* methods
// accept a nil receiver.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}

// formatNumber adds comma separators to numbers
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n%1000000)/1000, n%1000)
}
