// extract.go - Batch extraction, results, export and history endpoints.

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/bosocmputer/document_extract_gemini/internal/ai"
	"github.com/bosocmputer/document_extract_gemini/internal/export"
	"github.com/bosocmputer/document_extract_gemini/internal/model"
	"github.com/bosocmputer/document_extract_gemini/internal/processor"
	"github.com/gin-gonic/gin"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	csvContentType  = "text/csv; charset=utf-8"
)

type overrideRequest struct {
	FieldID string `json:"fieldId" binding:"required"`
	Value   any    `json:"value"`
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// PreviewPrompt shows the instruction the next batch would send.
func (h *Handler) PreviewPrompt(c *gin.Context) {
	rules := h.ws.CompanyRules()
	prompt, err := ai.BuildExtractionPrompt(model.EnabledFields(h.ws.Fields()), &rules, h.promptOpts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"prompt":    prompt.Text,
		"targetKey": prompt.TargetKey,
		"staged":    prompt.Staged,
	})
}

// Extract runs a batch over the uploaded "files". The optional "selections"
// form value is a JSON array aligned with the files; null entries mean no crop.
func (h *Handler) Extract(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	uploads := form.File["files"]

	var selections []*model.Selection
	if raw := c.PostForm("selections"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &selections); err != nil {
			respondError(c, fmt.Errorf("%w: selections: %v", errBadRequest, err))
			return
		}
	}

	files := make([]processor.FileInput, 0, len(uploads))
	for i, fh := range uploads {
		data, err := readFormFile(fh)
		if err != nil {
			respondError(c, err)
			return
		}
		in := processor.FileInput{Name: fh.Filename, Data: data}
		if i < len(selections) {
			in.Selection = selections[i]
		}
		files = append(files, in)
	}

	batch, err := h.ws.RunBatch(c.Request.Context(), h.orchestrator, files, nil)
	if err != nil && batch == nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"batchId":      batch.ID,
		"documentType": batch.DocumentType,
		"fileCount":    batch.FileCount,
		"successCount": batch.SuccessCount(),
		"cancelled":    batch.Cancelled,
		"fields":       batch.Fields,
		"results":      batch.Results,
		"tokens":       batch.Tokens,
	}
	if err != nil {
		// the batch ran but history could not be saved
		resp["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// Status reports whether a batch is running and which file it is on.
func (h *Handler) Status(c *gin.Context) {
	state, current := h.orchestrator.Status()
	c.JSON(http.StatusOK, gin.H{"state": state.String(), "current": current})
}

// LatestResults returns the most recent batch, including manual overrides.
func (h *Handler) LatestResults(c *gin.Context) {
	fields, results := h.ws.LatestResults()
	c.JSON(http.StatusOK, gin.H{"fields": fields, "results": results})
}

// OverrideCell edits one resolved value in the latest results.
func (h *Handler) OverrideCell(c *gin.Context) {
	fileIndex, err1 := strconv.Atoi(c.Param("file"))
	rowIndex, err2 := strconv.Atoi(c.Param("row"))
	if err1 != nil || err2 != nil {
		respondError(c, fmt.Errorf("%w: file and row must be integers", errBadRequest))
		return
	}

	var req overrideRequest
	if !bind(c, &req) {
		return
	}
	if err := h.ws.OverrideCell(fileIndex, rowIndex, req.FieldID, req.Value); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListHistory returns the batch log, most recent first.
func (h *Handler) ListHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": h.ws.History()})
}

func (h *Handler) exportGrid(c *gin.Context) (*export.Grid, bool) {
	fields, results, err := h.ws.ExportSource(c.Query("history"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	grid, err := export.BuildGrid(fields, results)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return grid, true
}

func attachment(c *gin.Context, ext, contentType string, data []byte) {
	name := export.FileName(export.DefaultBaseName, ext, time.Now())
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Data(http.StatusOK, contentType, data)
}

// ExportXLSX downloads the latest batch, or ?history=<id>, as a workbook.
func (h *Handler) ExportXLSX(c *gin.Context) {
	grid, ok := h.exportGrid(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, grid); err != nil {
		respondError(c, err)
		return
	}
	attachment(c, "xlsx", xlsxContentType, buf.Bytes())
}

// ExportCSV downloads the latest batch, or ?history=<id>, as CSV. ?crlf=true
// overrides the configured line ending.
func (h *Handler) ExportCSV(c *gin.Context) {
	grid, ok := h.exportGrid(c)
	if !ok {
		return
	}
	opts := h.csv
	if v := c.Query("crlf"); v != "" {
		if crlf, err := strconv.ParseBool(v); err == nil {
			opts.CRLF = crlf
		}
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, grid, opts); err != nil {
		respondError(c, err)
		return
	}
	attachment(c, "csv", csvContentType, buf.Bytes())
}
