package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/bosocmputer/document_extract_gemini/internal/ai"
	"github.com/bosocmputer/document_extract_gemini/internal/export"
	"github.com/bosocmputer/document_extract_gemini/internal/model"
	"github.com/bosocmputer/document_extract_gemini/internal/processor"
	"github.com/bosocmputer/document_extract_gemini/internal/storage"
	"github.com/bosocmputer/document_extract_gemini/internal/workspace"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileAnswers replies per file name; unknown files get an empty answer.
type fileAnswers map[string]string

func (f fileAnswers) GetProviderName() string { return "fake" }

func (f fileAnswers) Extract(ctx context.Context, req ai.ExtractRequest) (*ai.ExtractResponse, error) {
	return &ai.ExtractResponse{Result: f[req.FileName], Provider: "fake"}, nil
}

func newTestRouter(t *testing.T, answers fileAnswers) (*gin.Engine, *workspace.Workspace) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ws, err := workspace.Load(context.Background(), storage.NewFileStateStore(t.TempDir()), workspace.Options{AppID: "test"})
	require.NoError(t, err)

	orch := processor.NewOrchestrator(answers, nil, processor.PrepareOptions{})
	h := NewHandler(ws, orch, answers, storage.NewMemoryPromptStore(ai.DefaultPrompt), Options{})

	r := gin.New()
	r.Use(CORS("*"))
	h.RegisterRoutes(r)
	return r, ws
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doMultipart(t *testing.T, r http.Handler, path string, files map[string]string, values map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	// sorted names keep file order stable
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		part, err := mw.CreateFormFile(fieldNameFor(path), name)
		require.NoError(t, err)
		_, _ = part.Write([]byte(files[name]))
	}
	for k, v := range values {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func fieldNameFor(path string) string {
	if strings.HasSuffix(path, "/extract") {
		return "files"
	}
	return "file"
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthAndCORS(t *testing.T) {
	r, _ := newTestRouter(t, fileAnswers{})

	w := doJSON(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = doJSON(r, http.MethodOptions, "/api/v1/fields", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestFieldEndpoints(t *testing.T) {
	r, ws := newTestRouter(t, fileAnswers{})

	w := doJSON(r, http.MethodPost, "/api/v1/fields", gin.H{"label": "備考"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)

	w = doJSON(r, http.MethodPatch, "/api/v1/fields/"+id, gin.H{"label": "メモ", "column": "z"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Z", decode(t, w)["column"])

	w = doJSON(r, http.MethodPatch, "/api/v1/fields/"+id, gin.H{"label": "別名", "column": "1A"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.NotEmpty(t, body["error"])
	assert.Contains(t, body["details"], "invalid column label")
	// rejected updates change nothing
	for _, f := range ws.Fields() {
		if f.ID == id {
			assert.Equal(t, "メモ", f.Label)
		}
	}

	w = doJSON(r, http.MethodPost, "/api/v1/fields/"+id+"/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["enabled"])

	w = doJSON(r, http.MethodDelete, "/api/v1/fields/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(r, http.MethodDelete, "/api/v1/fields/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodPut, "/api/v1/document-type", gin.H{"documentType": "receipt"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(r, http.MethodPut, "/api/v1/document-type", gin.H{"documentType": "delivery"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.DocumentDelivery, ws.DocumentType())
}

func TestTemplateEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, fileAnswers{})

	w := doJSON(r, http.MethodPost, "/api/v1/templates", gin.H{"name": "月次"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)

	w = doJSON(r, http.MethodPut, "/api/v1/templates/default", gin.H{"id": id})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/templates/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	exported := w.Body.Bytes()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates/import", bytes.NewReader(exported))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "月次"+workspace.ImportSuffix, decode(t, rec)["name"])

	req = httptest.NewRequest(http.MethodPost, "/api/v1/templates/import", strings.NewReader(`{"name":"x"}`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "テンプレートの読み込みに失敗しました", decode(t, rec)["error"])

	w = doJSON(r, http.MethodPost, "/api/v1/templates/preset_standard_delivery/load", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "delivery", decode(t, w)["documentType"])

	w = doJSON(r, http.MethodDelete, "/api/v1/templates/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(r, http.MethodGet, "/api/v1/templates", nil)
	assert.Equal(t, "", decode(t, w)["defaultTemplateId"])

	w = doJSON(r, http.MethodPost, "/api/v1/templates/missing/load", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompanyRulesAndPromptPreview(t *testing.T) {
	r, _ := newTestRouter(t, fileAnswers{})

	w := doJSON(r, http.MethodPut, "/api/v1/company-rules", gin.H{"text": ""})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/prompt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["staged"])

	w = doJSON(r, http.MethodDelete, "/api/v1/company-rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.DefaultCompanyRules, decode(t, w)["text"])

	w = doJSON(r, http.MethodGet, "/api/v1/prompt", nil)
	assert.Equal(t, true, decode(t, w)["staged"])
}

func TestExtractExportAndHistory(t *testing.T) {
	r, ws := newTestRouter(t, fileAnswers{
		"a.pdf": `{"items":[{"field_1":"Acme, \"Inc.\"","field_3":1200}]}`,
		"b.pdf": "sorry",
	})

	w := doJSON(r, http.MethodGet, "/api/v1/export/csv", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doMultipart(t, r, "/api/v1/extract", map[string]string{"a.pdf": "%PDF", "b.pdf": "%PDF"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, float64(2), body["fileCount"])
	assert.Equal(t, float64(1), body["successCount"])
	results := body["results"].([]any)
	assert.Equal(t, processor.ParseErrorMessage, results[1].(map[string]any)["error"])

	w = doJSON(r, http.MethodGet, "/api/v1/export/csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "\uFEFFファイル名,"))
	assert.Contains(t, w.Body.String(), `"Acme, ""Inc."""`)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")

	w = doJSON(r, http.MethodGet, "/api/v1/export/xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))

	fields, _ := ws.LatestResults()
	w = doJSON(r, http.MethodPatch, "/api/v1/results/0/0", gin.H{"fieldId": fields[0].ID, "value": "Acme"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	w = doJSON(r, http.MethodPatch, "/api/v1/results/9/0", gin.H{"fieldId": fields[0].ID, "value": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/history", nil)
	history := decode(t, w)["history"].([]any)
	require.Len(t, history, 1)
	historyID := history[0].(map[string]any)["id"].(string)

	// history keeps the value as extracted
	w = doJSON(r, http.MethodGet, "/api/v1/export/csv?history="+historyID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Inc.")

	w = doJSON(r, http.MethodGet, "/api/v1/export/csv?history=missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExtractRejectsEmptyBatch(t *testing.T) {
	r, _ := newTestRouter(t, fileAnswers{})

	w := doMultipart(t, r, "/api/v1/extract", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["details"], processor.ErrNoFiles.Error())
}

func TestStoredPrompts(t *testing.T) {
	r, _ := newTestRouter(t, fileAnswers{"doc.png": "not json"})

	w := doJSON(r, http.MethodGet, "/api/prompts/invoice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["is_custom"])

	w = doJSON(r, http.MethodPut, "/api/prompts", gin.H{"document_type": "invoice", "prompt": "custom"})
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodGet, "/api/prompts/invoice", nil)
	assert.Equal(t, "custom", decode(t, w)["prompt"])

	w = doJSON(r, http.MethodDelete, "/api/prompts/invoice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodGet, "/api/prompts/invoice", nil)
	assert.Equal(t, ai.DefaultPrompt(model.DocumentInvoice), decode(t, w)["prompt"])

	w = doJSON(r, http.MethodGet, "/api/prompts/receipt", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doMultipart(t, r, "/api/prompts/test", map[string]string{"doc.png": "png"}, map[string]string{"prompt": "read it"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "not json", decode(t, w)["result"])

	w = doMultipart(t, r, "/api/process", map[string]string{"doc.png": "png"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "not json", data["raw_text"])

	w = doMultipart(t, r, "/api/process", map[string]string{"doc.txt": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	status, _ := statusFor(export.ErrNothingToExport)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = statusFor(processor.ErrBatchRunning)
	assert.Equal(t, http.StatusConflict, status)
	status, _ = statusFor(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
}
