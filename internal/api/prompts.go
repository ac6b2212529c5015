// prompts.go - Stored per-document-type prompts and single-document runs.

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bosocmputer/document_extract_gemini/internal/ai"
	"github.com/bosocmputer/document_extract_gemini/internal/model"
	"github.com/bosocmputer/document_extract_gemini/internal/processor"
	"github.com/gin-gonic/gin"
)

type updatePromptRequest struct {
	DocumentType string `json:"document_type"`
	Prompt       string `json:"prompt" binding:"required"`
}

// GetPrompt returns the custom prompt or the built-in default.
func (h *Handler) GetPrompt(c *gin.Context) {
	docType, err := model.ParseDocumentType(c.Param("documentType"))
	if err != nil {
		respondError(c, err)
		return
	}
	p, err := h.prompts.Get(c.Request.Context(), docType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdatePrompt stores a custom prompt. The document type comes from the path
// or, for PUT /api/prompts, from the body.
func (h *Handler) UpdatePrompt(c *gin.Context) {
	var req updatePromptRequest
	if !bind(c, &req) {
		return
	}
	raw := c.Param("documentType")
	if raw == "" {
		raw = req.DocumentType
	}
	docType, err := model.ParseDocumentType(raw)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.prompts.Update(c.Request.Context(), docType, req.Prompt); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "プロンプトを更新しました"})
}

// ResetPrompt drops the custom prompt.
func (h *Handler) ResetPrompt(c *gin.Context) {
	docType, err := model.ParseDocumentType(c.Param("documentType"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.prompts.Reset(c.Request.Context(), docType); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "プロンプトをデフォルトにリセットしました"})
}

// runSingle sends one uploaded "file" with instruction and returns the raw
// provider answer. A response has already been written when ok is false.
func (h *Handler) runSingle(c *gin.Context, docType model.DocumentType, instruction string) (*ai.ExtractResponse, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		respondError(c, fmt.Errorf("%w: file is required", errBadRequest))
		return nil, false
	}
	mimeType, err := processor.DetectMIMEType(fh.Filename)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	data, err := readFormFile(fh)
	if err != nil {
		respondError(c, err)
		return nil, false
	}

	resp, err := h.extractor.Extract(c.Request.Context(), ai.ExtractRequest{
		FileName:     fh.Filename,
		MIMEType:     mimeType,
		Data:         data,
		DocumentType: docType,
		Instruction:  instruction,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, ai.UserFriendlyError(err))
		return nil, false
	}
	return resp, true
}

// TestPrompt runs an ad-hoc prompt (or the default for document_type) against
// one file and returns the raw answer.
func (h *Handler) TestPrompt(c *gin.Context) {
	docType, err := documentTypeParam(c.PostForm("document_type"), model.DocumentInvoice)
	if err != nil {
		respondError(c, err)
		return
	}
	prompt := c.PostForm("prompt")
	if prompt == "" {
		prompt = ai.DefaultPrompt(docType)
	}

	resp, ok := h.runSingle(c, docType, prompt)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": resp.Result, "tokens": resp.Tokens})
}

// ProcessDocument extracts one file with the stored prompt of its document
// type. Answers that are not JSON come back as {"raw_text": ...}.
func (h *Handler) ProcessDocument(c *gin.Context) {
	docType, err := documentTypeParam(c.PostForm("document_type"), model.DocumentInvoice)
	if err != nil {
		respondError(c, err)
		return
	}
	stored, err := h.prompts.Get(c.Request.Context(), docType)
	if err != nil {
		respondError(c, err)
		return
	}

	resp, ok := h.runSingle(c, docType, stored.Prompt)
	if !ok {
		return
	}

	var data any = gin.H{"raw_text": resp.Result}
	if parsed, err := processor.ParseResponse(resp.Result); err == nil {
		data = json.RawMessage(parsed.JSON)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"document_type": docType,
		"data":          data,
		"raw_response":  resp.Result,
	})
}
