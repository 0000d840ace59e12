package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"neurodata/internal/domain/canvas"
	"neurodata/internal/domain/credits"
	"neurodata/internal/domain/run"
	"neurodata/internal/domain/template"
	"neurodata/internal/domain/workflow"
	applog "neurodata/internal/platform/log"
)

// WorkflowHandler 工作流 API 处理器
type WorkflowHandler struct {
	store        workflow.Store // 可为 nil（演示模式）
	orchestrator *run.Orchestrator
	wizard       *template.Wizard // 可为 nil（未配置 LLM 时 generate/explain 不可用）
	ledger       *credits.Ledger
	runTimeout   time.Duration
}

// NewWorkflowHandler 创建处理器
func NewWorkflowHandler(store workflow.Store, orch *run.Orchestrator, wizard *template.Wizard, ledger *credits.Ledger, runTimeout time.Duration) *WorkflowHandler {
	if runTimeout <= 0 {
		runTimeout = 5 * time.Minute
	}
	return &WorkflowHandler{
		store:        store,
		orchestrator: orch,
		wizard:       wizard,
		ledger:       ledger,
		runTimeout:   runTimeout,
	}
}

// RegisterRoutes 注册路由
func (h *WorkflowHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/workflows", func(r chi.Router) {
		r.Post("/", h.SaveWorkflow)
		r.Get("/", h.ListWorkflows)
		r.Get("/results/{workflowId}", h.GetResults)
		r.Post("/run", h.RunWorkflow)
		r.Post("/run/stream", h.RunWorkflowStream)
		r.Post("/explain", h.ExplainWorkflow)
		r.Post("/generate", h.GenerateWorkflow)
	})
	r.Get("/api/credits", h.GetCredits)
	r.Get("/api/templates", h.ListTemplates)
	r.Get("/api/templates/{id}", h.LoadTemplate)
	r.Get("/api/catalog", h.GetCatalog)
}

// workflowPayload 画布整图载荷，保存与执行共用。
type workflowPayload struct {
	WorkflowID  string        `json:"workflowId"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Nodes       []canvas.Node `json:"nodes"`
	Edges       []canvas.Edge `json:"edges"`
}

func decodePayload(r *http.Request) (*workflowPayload, error) {
	var req workflowPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// --- 保存 / 读取 ---

// SaveWorkflow 持久化画布。存储未配置时返回 503 演示模式提示。
func (h *WorkflowHandler) SaveWorkflow(w http.ResponseWriter, r *http.Request) {
	req, err := decodePayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "demo mode: workflow storage is not configured")
		return
	}

	wf := &workflow.Workflow{
		ID:          req.WorkflowID,
		Name:        req.Name,
		Description: req.Description,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		OwnerID:     UserFrom(r.Context()),
	}
	if err := h.store.SaveWorkflow(r.Context(), wf); err != nil {
		applog.Error("❌ 工作流保存失败", "name", req.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save workflow")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"workflowId": wf.ID})
}

// ListWorkflows 当前用户的工作流列表。
func (h *WorkflowHandler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "demo mode: workflow storage is not configured")
		return
	}
	list, err := h.store.ListWorkflows(r.Context(), UserFrom(r.Context()))
	if err != nil {
		applog.Error("❌ 工作流列表查询失败", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list workflows")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"workflows": list})
}

// GetResults 最近一次成功执行的结果，按节点 id 映射。
func (h *WorkflowHandler) GetResults(w http.ResponseWriter, r *http.Request) {
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

	perNode := make([]run.PerNodeResult, len(rec.NodeResults))
	for i, nr := range rec.NodeResults {
		perNode[i] = run.PerNodeResult{NodeID: nr.NodeID, NodeName: nr.NodeName, Result: nr.Result}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"workflowId": workflowID,
		"analysis":   rec.Analysis,
		"resultsMap": run.MapResults(perNode, wf.Nodes),
		"elapsedMs":  rec.ElapsedMs,
		"createdAt":  rec.CreatedAt,
	})
}

// --- 执行 ---

// RunWorkflow 同步执行整图，返回聚合 analysis 与节点级结果。
func (h *WorkflowHandler) RunWorkflow(w http.ResponseWriter, r *http.Request) {
	req, g, ok := h.prepareRun(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.runTimeout)
	defer cancel()

	result, err := h.orchestrator.RunSync(ctx, req.WorkflowID, req.Name, g)
	if err != nil {
		if run.IsRejected(err) {
			// 执行从未开始，额度不应扣减
			h.refundCredit(r.Context(), UserFrom(r.Context()))
		}
		switch {
		case errors.Is(err, run.ErrRunInFlight):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, run.ErrEmptyWorkflow), errors.Is(err, run.ErrTooManyNodes):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, run.ErrNoProvider):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			// 错误信息原样透传，客户端 toast 展示
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.persistRun(req, result)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analysis":       result.Analysis,
		"perNodeResults": result.PerNodeResults,
		"elapsedMs":      result.ElapsedMs,
	})
}

// RunWorkflowStream SSE 流式执行：逐事件透传编排器输出。
func (h *WorkflowHandler) RunWorkflowStream(w http.ResponseWriter, r *http.Request) {
	req, g, ok := h.prepareRun(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.runTimeout)
	defer cancel()

	events, err := h.orchestrator.Run(ctx, req.WorkflowID, req.Name, g)
	if err != nil {
		if run.IsRejected(err) {
			h.refundCredit(r.Context(), UserFrom(r.Context()))
		}
		if errors.Is(err, run.ErrRunInFlight) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	started := time.Now()
	var final *run.Event
	for evt := range events {
		sseWriteEvent(w, flusher, "message", evt)
		if evt.Type == run.EventRunSucceeded || evt.Type == run.EventRunFailed {
			final = &evt
		}
	}

	if final != nil && final.Type == run.EventRunSucceeded {
		result := &run.Result{
			Analysis:  final.Analysis,
			ElapsedMs: time.Since(started).Milliseconds(),
		}
		for _, n := range g.Nodes() {
			if text, okRes := final.PerNode[n.ID]; okRes {
				result.PerNodeResults = append(result.PerNodeResults, run.PerNodeResult{
					NodeID:   n.ID,
					NodeName: n.Data.Base().Label,
					Result:   text,
				})
			}
		}
		h.persistRun(req, result)
	}

	sseWriteEvent(w, flusher, "done", map[string]interface{}{
		"workflowId": req.WorkflowID,
		"elapsedMs":  time.Since(started).Milliseconds(),
	})
}

// prepareRun 解析载荷、构图、过额度闸门。失败时已写响应。
// 额度在图校验通过后才占用：被 400 拒绝的请求不消耗当月用量。
func (h *WorkflowHandler) prepareRun(w http.ResponseWriter, r *http.Request) (*workflowPayload, *canvas.Graph, bool) {
	req, err := decodePayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return nil, nil, false
	}
	if req.WorkflowID == "" {
		req.WorkflowID = uuid.New().String()
	}

	g, err := canvas.FromLists(req.Nodes, req.Edges)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}

	if h.ledger != nil {
		if _, err := h.ledger.Consume(r.Context(), UserFrom(r.Context())); err != nil {
			if errors.Is(err, credits.ErrQuotaExhausted) {
				writeError(w, http.StatusPaymentRequired, err.Error())
				return nil, nil, false
			}
			applog.Error("❌ 额度检查失败", "error", err)
			writeError(w, http.StatusInternalServerError, "credit check failed")
			return nil, nil, false
		}
	}
	return req, g, true
}

// refundCredit 回补被编排器拒绝的执行所占用的额度。
func (h *WorkflowHandler) refundCredit(ctx context.Context, userID string) {
	if h.ledger == nil {
		return
	}
	if err := h.ledger.Refund(ctx, userID); err != nil {
		applog.Warn("⚠️ 额度回补失败", "user", userID, "error", err)
	}
}

// persistRun 异步落库执行结果，失败只告警不影响响应。
func (h *WorkflowHandler) persistRun(req *workflowPayload, result *run.Result) {
	if h.store == nil {
		return
	}
	rec := &workflow.RunRecord{
		WorkflowID: req.WorkflowID,
		Analysis:   result.Analysis,
		ElapsedMs:  result.ElapsedMs,
	}
	for _, p := range result.PerNodeResults {
		rec.NodeResults = append(rec.NodeResults, workflow.NodeResult{
			NodeID: p.NodeID, NodeName: p.NodeName, Result: p.Result,
		})
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.store.SaveRun(ctx, rec); err != nil {
			applog.Warn("⚠️ 执行结果落库失败", "workflow_id", req.WorkflowID, "error", err)
		}
	}()
}

// --- 向导 ---

// ExplainWorkflow 自然语言描述当前画布。
func (h *WorkflowHandler) ExplainWorkflow(w http.ResponseWriter, r *http.Request) {
	if h.wizard == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM provider is not configured")
		return
	}
	req, err := decodePayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	explanation, err := h.wizard.Explain(r.Context(), req.Name, req.Nodes, req.Edges)
	if err != nil {
		applog.Warn("⚠️ 工作流解释失败", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"explanation": explanation})
}

// GenerateWorkflow 自然语言 → 工作流建议（节点 + 连线）。
func (h *WorkflowHandler) GenerateWorkflow(w http.ResponseWriter, r *http.Request) {
	if h.wizard == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM provider is not configured")
		return
	}
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	nodes, edges, err := h.wizard.Generate(r.Context(), req.Prompt)
	if err != nil {
		applog.Warn("⚠️ 工作流生成失败", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes, "edges": edges})
}

// --- 额度 / 目录 ---

// GetCredits 当月用量、限额与套餐。
func (h *WorkflowHandler) GetCredits(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "credit ledger is not configured")
		return
	}
	usage, err := h.ledger.Usage(r.Context(), UserFrom(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read credits")
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// ListTemplates 内置模板清单。
func (h *WorkflowHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": template.List()})
}

// LoadTemplate 加载模板，缺省连线时自动布线。
func (h *WorkflowHandler) LoadTemplate(w http.ResponseWriter, r *http.Request) {
	nodes, edges, err := template.Load(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes, "edges": edges})
}

// GetCatalog 节点目录。
func (h *WorkflowHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"catalog": canvas.CatalogEntries()})
}
