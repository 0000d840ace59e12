package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"neurodata/internal/adapter/attachment"
	"neurodata/internal/domain/result"
	"neurodata/internal/domain/workflow"
	applog "neurodata/internal/platform/log"
)

// ResultHandler 结果导出与附件抽取 API 处理器
type ResultHandler struct {
	store  workflow.Store
	mobile result.MobileLimits
}

// NewResultHandler 创建处理器
func NewResultHandler(store workflow.Store, mobile result.MobileLimits) *ResultHandler {
	return &ResultHandler{store: store, mobile: mobile}
}

// RegisterRoutes 注册路由
func (h *ResultHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/workflows/results/{workflowId}/export", h.ExportResults)
	r.Post("/api/attachments/extract", h.ExtractAttachment)
}

// ExportResults 导出最近一次执行结果。
// format=csv|json|excel|clipboard；mobile=1 时按移动端上限裁剪。
func (h *ResultHandler) ExportResults(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "demo mode: workflow storage is not configured")
		return
	}
	workflowID := chi.URLParam(r, "workflowId")

	wf, err := h.store.GetWorkflow(r.Context(), workflowID)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			writeError(w, http.StatusNotFound, "workflow not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load workflow")
		return
	}
	rec, err := h.store.LatestRun(r.Context(), workflowID)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no results for workflow")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load results")
		return
	}

	perNode := make([]result.PerNodeEntry, len(rec.NodeResults))
	for i, nr := range rec.NodeResults {
		perNode[i] = result.PerNodeEntry{NodeID: nr.NodeID, NodeName: nr.NodeName, Result: nr.Result}
	}
	report := result.BuildReport(wf.Name, rec.Analysis, perNode)

	truncated := false
	if r.URL.Query().Get("mobile") == "1" {
		report, truncated = result.TruncateForMobile(report, h.mobile)
	}
	if truncated {
		w.Header().Set("X-Result-Truncated", "true")
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		out, err := result.ExportJSON(report)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(out))
	case "csv":
		out, err := result.ExportCSV(report)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(out))
	case "excel":
		w.Header().Set("Content-Type", "text/tab-separated-values")
		w.Write([]byte(result.ExportExcel(report)))
	case "clipboard":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(result.ExportClipboard(report)))
	default:
		writeError(w, http.StatusBadRequest, "unsupported export format: "+format)
	}
}

// extractRequest 附件抽取请求，内容 base64 编码。
type extractRequest struct {
	FileName string `json:"fileName"`
	Data     string `json:"data"`
}

// ExtractAttachment 上传附件抽取纯文本，供数据源节点填充 fileContent。
func (h *ResultHandler) ExtractAttachment(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.FileName == "" || req.Data == "" {
		writeError(w, http.StatusBadRequest, "fileName and data are required")
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "data must be base64 encoded")
		return
	}
	text, err := attachment.ExtractText(req.FileName, raw)
	if err != nil {
		applog.Warn("⚠️ 附件抽取失败", "file", req.FileName, "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"fileName": req.FileName,
		"text":     text,
	})
}
