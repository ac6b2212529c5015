// handlers.go - HTTP handler wiring, CORS and error responses.

package api

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/bosocmputer/document_extract_gemini/internal/ai"
	"github.com/bosocmputer/document_extract_gemini/internal/column"
	"github.com/bosocmputer/document_extract_gemini/internal/export"
	"github.com/bosocmputer/document_extract_gemini/internal/model"
	"github.com/bosocmputer/document_extract_gemini/internal/processor"
	"github.com/bosocmputer/document_extract_gemini/internal/storage"
	"github.com/bosocmputer/document_extract_gemini/internal/workspace"
	"github.com/gin-gonic/gin"
)

// Handler serves the extraction API for one workspace.
type Handler struct {
	ws           *workspace.Workspace
	orchestrator *processor.Orchestrator
	extractor    ai.Extractor
	prompts      storage.PromptStore
	promptOpts   ai.PromptOptions
	csv          export.CSVOptions
}

// Options carries the optional parts of a Handler.
type Options struct {
	PromptOptions ai.PromptOptions
	CSV           export.CSVOptions
}

// NewHandler creates a handler. extractor is used directly by the prompt
// test endpoints; batches go through orchestrator.
func NewHandler(ws *workspace.Workspace, orchestrator *processor.Orchestrator, extractor ai.Extractor, prompts storage.PromptStore, opts Options) *Handler {
	return &Handler{
		ws:           ws,
		orchestrator: orchestrator,
		extractor:    extractor,
		prompts:      prompts,
		promptOpts:   opts.PromptOptions,
		csv:          opts.CSV,
	}
}

// RegisterRoutes mounts every endpoint on router.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")

	// Fields
	v1.GET("/fields", h.ListFields)
	v1.POST("/fields", h.AddField)
	v1.POST("/fields/preset", h.AddPresetField)
	v1.PATCH("/fields/:id", h.UpdateField)
	v1.POST("/fields/:id/toggle", h.ToggleField)
	v1.DELETE("/fields/:id", h.RemoveField)
	v1.PUT("/document-type", h.SetDocumentType)
	v1.GET("/presets", h.ListPresets)

	// Templates
	v1.GET("/templates", h.ListTemplates)
	v1.POST("/templates", h.SaveTemplate)
	v1.POST("/templates/import", h.ImportTemplate)
	v1.PUT("/templates/default", h.SetDefaultTemplate)
	v1.POST("/templates/:id/load", h.LoadTemplate)
	v1.GET("/templates/:id/export", h.ExportTemplate)
	v1.DELETE("/templates/:id", h.DeleteTemplate)

	// Company rules
	v1.GET("/company-rules", h.GetCompanyRules)
	v1.PUT("/company-rules", h.UpdateCompanyRules)
	v1.DELETE("/company-rules", h.ResetCompanyRules)

	// Extraction
	v1.GET("/prompt", h.PreviewPrompt)
	v1.POST("/extract", h.Extract)
	v1.GET("/status", h.Status)
	v1.GET("/results", h.LatestResults)
	v1.PATCH("/results/:file/:row", h.OverrideCell)
	v1.GET("/export/xlsx", h.ExportXLSX)
	v1.GET("/export/csv", h.ExportCSV)
	v1.GET("/history", h.ListHistory)

	// Stored prompts
	prompts := router.Group("/api/prompts")
	prompts.GET("/:documentType", h.GetPrompt)
	prompts.PUT("", h.UpdatePrompt)
	prompts.PUT("/:documentType", h.UpdatePrompt)
	prompts.DELETE("/:documentType", h.ResetPrompt)
	prompts.POST("/test", h.TestPrompt)
	router.POST("/api/process", h.ProcessDocument)
}

// CORS sets the allow headers for origins and answers preflight requests.
func CORS(origins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origins)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"service":  "document-extract",
		"provider": h.extractor.GetProviderName(),
	})
}

// statusFor maps domain errors to HTTP status codes and a short message.
func statusFor(err error) (int, string) {
	var importErr *workspace.TemplateImportError
	switch {
	case errors.As(err, &importErr):
		return http.StatusBadRequest, "テンプレートの読み込みに失敗しました"
	case errors.Is(err, workspace.ErrFieldNotFound),
		errors.Is(err, workspace.ErrTemplateNotFound),
		errors.Is(err, workspace.ErrResultNotFound):
		return http.StatusNotFound, "見つかりません"
	case errors.Is(err, export.ErrNothingToExport):
		return http.StatusBadRequest, "出力できるデータがありません"
	case errors.Is(err, processor.ErrBatchRunning):
		return http.StatusConflict, "処理中です"
	case errors.Is(err, ai.ErrNoEnabledFields):
		return http.StatusBadRequest, "有効な項目がありません"
	case errors.Is(err, processor.ErrNoFiles),
		errors.Is(err, processor.ErrUnsupportedFileType):
		return http.StatusBadRequest, "ファイルを確認してください"
	case errors.Is(err, column.ErrInvalidColumnLabel),
		errors.Is(err, model.ErrUnknownDocumentType),
		errors.Is(err, workspace.ErrEmptyLabel),
		errors.Is(err, workspace.ErrEmptyName),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "入力内容が正しくありません"
	default:
		return http.StatusInternalServerError, processor.GenericErrorMessage
	}
}

var errBadRequest = errors.New("bad request")

func respondError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}

// bind decodes a JSON body; decoding failures are reported as bad requests.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		respondError(c, errors.Join(errBadRequest, err))
		return false
	}
	return true
}

// documentTypeParam parses an optional document type; "" falls back to def.
func documentTypeParam(raw string, def model.DocumentType) (model.DocumentType, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return model.ParseDocumentType(raw)
}
