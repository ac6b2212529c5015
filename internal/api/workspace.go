// workspace.go - Field, template and company rule endpoints.

package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/bosocmputer/document_extract_gemini/internal/column"
	"github.com/bosocmputer/document_extract_gemini/internal/model"
	"github.com/bosocmputer/document_extract_gemini/internal/workspace"
	"github.com/gin-gonic/gin"
)

type addFieldRequest struct {
	Label string `json:"label"`
}

type addPresetFieldRequest struct {
	PresetID     string `json:"presetId" binding:"required"`
	DocumentType string `json:"documentType"`
}

type updateFieldRequest struct {
	Label  *string `json:"label"`
	Column *string `json:"column"`
}

type documentTypeRequest struct {
	DocumentType string `json:"documentType" binding:"required"`
}

type saveTemplateRequest struct {
	Name string `json:"name"`
}

type defaultTemplateRequest struct {
	ID string `json:"id"`
}

type companyRulesRequest struct {
	Text string `json:"text"`
}

// ListFields returns the active fields and document type.
func (h *Handler) ListFields(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"fields":       h.ws.Fields(),
		"documentType": h.ws.DocumentType(),
	})
}

// AddField appends a custom field.
func (h *Handler) AddField(c *gin.Context) {
	var req addFieldRequest
	if !bind(c, &req) {
		return
	}
	f, err := h.ws.AddField(c.Request.Context(), req.Label)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

// AddPresetField appends a field from the preset catalog.
func (h *Handler) AddPresetField(c *gin.Context) {
	var req addPresetFieldRequest
	if !bind(c, &req) {
		return
	}
	docType, err := documentTypeParam(req.DocumentType, "")
	if err != nil {
		respondError(c, err)
		return
	}
	f, err := h.ws.AddPresetField(c.Request.Context(), docType, req.PresetID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

// UpdateField renames a field and/or moves it to another column.
func (h *Handler) UpdateField(c *gin.Context) {
	var req updateFieldRequest
	if !bind(c, &req) {
		return
	}

	if req.Label == nil && req.Column == nil {
		respondError(c, fmt.Errorf("%w: label or column is required", errBadRequest))
		return
	}
	// validate both before applying either
	if req.Label != nil && strings.TrimSpace(*req.Label) == "" {
		respondError(c, workspace.ErrEmptyLabel)
		return
	}
	if req.Column != nil {
		if _, err := column.ColumnToIndex(strings.ToUpper(strings.TrimSpace(*req.Column))); err != nil {
			respondError(c, err)
			return
		}
	}

	id := c.Param("id")
	var (
		f   model.Field
		err error
	)
	if req.Label != nil {
		if f, err = h.ws.RenameField(id, *req.Label); err != nil {
			respondError(c, err)
			return
		}
	}
	if req.Column != nil {
		if f, err = h.ws.SetFieldColumn(id, *req.Column); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, f)
}

// ToggleField flips a field's enabled flag.
func (h *Handler) ToggleField(c *gin.Context) {
	f, err := h.ws.ToggleField(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// RemoveField deletes a field.
func (h *Handler) RemoveField(c *gin.Context) {
	if err := h.ws.RemoveField(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetDocumentType switches between invoice and delivery.
func (h *Handler) SetDocumentType(c *gin.Context) {
	var req documentTypeRequest
	if !bind(c, &req) {
		return
	}
	docType, err := model.ParseDocumentType(req.DocumentType)
	if err != nil {
		respondError(c, err)
		return
	}
	h.ws.SetDocumentType(docType)
	c.JSON(http.StatusOK, gin.H{"documentType": docType})
}

// ListPresets returns the preset fields and templates of a document type.
func (h *Handler) ListPresets(c *gin.Context) {
	docType, err := documentTypeParam(c.Query("documentType"), h.ws.DocumentType())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"documentType": docType,
		"fields":       model.PresetFields(docType),
		"templates":    h.ws.PresetTemplates(docType),
	})
}

// ListTemplates returns saved templates and the default template id.
func (h *Handler) ListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"templates":         h.ws.Templates(),
		"defaultTemplateId": h.ws.DefaultTemplateID(),
	})
}

// SaveTemplate stores the active fields under a name.
func (h *Handler) SaveTemplate(c *gin.Context) {
	var req saveTemplateRequest
	if !bind(c, &req) {
		return
	}
	t, err := h.ws.SaveTemplate(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// LoadTemplate makes a saved or preset template the active field list.
func (h *Handler) LoadTemplate(c *gin.Context) {
	t, err := h.ws.LoadTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"template":     t,
		"fields":       h.ws.Fields(),
		"documentType": h.ws.DocumentType(),
	})
}

// DeleteTemplate removes a saved template.
func (h *Handler) DeleteTemplate(c *gin.Context) {
	if err := h.ws.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetDefaultTemplate sets or, with an empty id, clears the default template.
func (h *Handler) SetDefaultTemplate(c *gin.Context) {
	var req defaultTemplateRequest
	if !bind(c, &req) {
		return
	}
	if err := h.ws.SetDefaultTemplate(c.Request.Context(), req.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"defaultTemplateId": h.ws.DefaultTemplateID()})
}

// ImportTemplate accepts a template document either as the raw JSON body or
// as a multipart "file".
func (h *Handler) ImportTemplate(c *gin.Context) {
	var (
		data []byte
		err  error
	)
	if fh, ferr := c.FormFile("file"); ferr == nil {
		data, err = readFormFile(fh)
	} else {
		data, err = io.ReadAll(c.Request.Body)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	t, err := h.ws.ImportTemplate(c.Request.Context(), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// ExportTemplate downloads a template as importable JSON.
func (h *Handler) ExportTemplate(c *gin.Context) {
	data, err := h.ws.ExportTemplate(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": c.Param("id") + ".json"}))
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// GetCompanyRules returns the global rule text.
func (h *Handler) GetCompanyRules(c *gin.Context) {
	c.JSON(http.StatusOK, h.ws.CompanyRules())
}

// UpdateCompanyRules replaces the rule text.
func (h *Handler) UpdateCompanyRules(c *gin.Context) {
	var req companyRulesRequest
	if !bind(c, &req) {
		return
	}
	rules, err := h.ws.SetCompanyRules(c.Request.Context(), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// ResetCompanyRules reinstalls the default rule text.
func (h *Handler) ResetCompanyRules(c *gin.Context) {
	rules, err := h.ws.ResetCompanyRules(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}
