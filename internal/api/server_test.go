package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"neurodata/internal/domain/canvas"
	"neurodata/internal/domain/credits"
	"neurodata/internal/domain/module"
	"neurodata/internal/domain/run"
	"neurodata/internal/domain/template"
	"neurodata/internal/provider"
)

// fakeLLM 固定应答的 LLM provider。
type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.CompletionResponse{Content: f.response, Model: req.Model}, nil
}

type fakeCounter struct {
	values map[string]int64
}

func (f *fakeCounter) Incr(ctx context.Context, key string) (int64, error) {
	if f.values == nil {
		f.values = map[string]int64{}
	}
	f.values[key]++
	return f.values[key], nil
}

func (f *fakeCounter) Decr(ctx context.Context, key string) (int64, error) {
	if f.values == nil {
		f.values = map[string]int64{}
	}
	f.values[key]--
	return f.values[key], nil
}

func (f *fakeCounter) Get(ctx context.Context, key string) (int64, error) {
	return f.values[key], nil
}

func testServer(llm provider.LLMProvider, limit int64) *Server {
	orch := run.New(run.DefaultConfig(), llm, &run.InstantClock{})
	ledger := credits.NewLedger(&fakeCounter{}, credits.Config{FreeLimit: limit, ProLimit: 500, DefaultTier: "free"}, nil)
	return NewServer(DefaultServerConfig(), nil, orch, nil, ledger, module.NewRegistry(nil))
}

func runPayload() string {
	return `{
		"workflowId": "wf-test",
		"name": "EEG Session",
		"nodes": [
			{"id": "src", "type": "data", "position": {"x": 0, "y": 0},
			 "data": {"label": "EEG Upload", "subtype": "eeg-upload", "fileContent": "ch1,ch2\n0.1,0.4"}},
			{"id": "brain", "type": "brain", "position": {"x": 300, "y": 0},
			 "data": {"label": "Brain", "prompt": "analyze the signal"}},
			{"id": "out", "type": "output", "position": {"x": 600, "y": 0},
			 "data": {"label": "Report"}}
		],
		"edges": [
			{"id": "e1", "source": "src", "target": "brain"},
			{"id": "e2", "source": "brain", "target": "out"}
		]
	}`
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, *APIResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not an APIResponse: %v\n%s", err, rec.Body.String())
	}
	return rec, &resp
}

// TestHealth 健康检查。
func TestHealth(t *testing.T) {
	srv := testServer(&fakeLLM{response: "ok"}, 10)
	rec, resp := doRequest(t, srv.Handler(), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("health check failed: %d %s", rec.Code, rec.Body.String())
	}
}

// TestRunWorkflowSuccess 同步执行返回 analysis 与节点级结果。
func TestRunWorkflowSuccess(t *testing.T) {
	srv := testServer(&fakeLLM{response: "alpha stable"}, 10)
	rec, resp := doRequest(t, srv.Handler(), http.MethodPost, "/api/workflows/run", runPayload())
	if rec.Code != http.StatusOK {
		t.Fatalf("run failed: %d %s", rec.Code, rec.Body.String())
	}

	data := resp.Data.(map[string]interface{})
	if data["analysis"] == "" {
		t.Error("analysis missing from response")
	}
	if _, ok := data["perNodeResults"]; !ok {
		t.Error("perNodeResults missing from response")
	}
	t.Logf("✅ 执行成功: analysis=%v", data["analysis"])
}

// TestRunWorkflowProviderError 推理后端 500 时错误信息原样透传。
func TestRunWorkflowProviderError(t *testing.T) {
	srv := testServer(&fakeLLM{err: fmt.Errorf("API error (status 500): backend exploded")}, 10)
	rec, resp := doRequest(t, srv.Handler(), http.MethodPost, "/api/workflows/run", runPayload())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if resp.Message != "API error (status 500): backend exploded" {
		t.Errorf("error message not verbatim: %q", resp.Message)
	}
	if resp.Success {
		t.Error("success must be false on failure")
	}
}

// TestRunWorkflowEmptyGraph 空图直接 400。
func TestRunWorkflowEmptyGraph(t *testing.T) {
	srv := testServer(&fakeLLM{response: "x"}, 10)
	rec, _ := doRequest(t, srv.Handler(), http.MethodPost, "/api/workflows/run",
		`{"workflowId":"wf-x","name":"Empty","nodes":[],"edges":[]}`)
	if rec.Code != http.StatusInternalServerError && rec.Code != http.StatusBadRequest {
		t.Fatalf("expected failure for empty graph, got %d", rec.Code)
	}
}

// TestRunQuotaExhausted 额度耗尽返回 402。
func TestRunQuotaExhausted(t *testing.T) {
	srv := testServer(&fakeLLM{response: "ok"}, 1)
	handler := srv.Handler()

	if rec, _ := doRequest(t, handler, http.MethodPost, "/api/workflows/run", runPayload()); rec.Code != http.StatusOK {
		t.Fatalf("first run should pass quota: %d %s", rec.Code, rec.Body.String())
	}
	rec, resp := doRequest(t, handler, http.MethodPost, "/api/workflows/run", runPayload())
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
	if !strings.Contains(resp.Message, "quota") {
		t.Errorf("unexpected quota message: %q", resp.Message)
	}
}

// TestRejectedRunKeepsCredits 被拒绝的执行不消耗额度：
// 图校验失败（400）在扣费前拦截，编排器准入拒绝触发回补。
func TestRejectedRunKeepsCredits(t *testing.T) {
	srv := testServer(&fakeLLM{response: "ok"}, 5)
	handler := srv.Handler()

	usedCredits := func() float64 {
		t.Helper()
		rec, resp := doRequest(t, handler, http.MethodGet, "/api/credits", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("credits read failed: %d", rec.Code)
		}
		return resp.Data.(map[string]interface{})["used"].(float64)
	}

	// 重复节点 id：构图失败，400
	dup := `{"workflowId":"wf-dup","name":"Dup","nodes":[
		{"id":"n1","type":"brain","position":{"x":0,"y":0},"data":{"label":"A"}},
		{"id":"n1","type":"brain","position":{"x":100,"y":0},"data":{"label":"B"}}
	],"edges":[]}`
	if rec, _ := doRequest(t, handler, http.MethodPost, "/api/workflows/run", dup); rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate node ids should be 400, got %d", rec.Code)
	}
	if used := usedCredits(); used != 0 {
		t.Fatalf("credit burned on a rejected run: used=%v, want 0", used)
	}

	// 空图：编排器准入拒绝，扣费被回补
	empty := `{"workflowId":"wf-empty","name":"Empty","nodes":[],"edges":[]}`
	if rec, _ := doRequest(t, handler, http.MethodPost, "/api/workflows/run", empty); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty graph should be 400, got %d", rec.Code)
	}
	if used := usedCredits(); used != 0 {
		t.Fatalf("credit burned on an admission-rejected run: used=%v, want 0", used)
	}

	// 成功执行才计一次
	if rec, _ := doRequest(t, handler, http.MethodPost, "/api/workflows/run", runPayload()); rec.Code != http.StatusOK {
		t.Fatalf("valid run failed: %d", rec.Code)
	}
	if used := usedCredits(); used != 1 {
		t.Errorf("successful run should count once: used=%v, want 1", used)
	}
	t.Logf("✅ 拒绝不扣费通过")
}

// TestSaveWorkflowDemoMode 存储未配置时保存返回 503 演示模式。
func TestSaveWorkflowDemoMode(t *testing.T) {
	srv := testServer(&fakeLLM{response: "ok"}, 10)
	rec, resp := doRequest(t, srv.Handler(), http.MethodPost, "/api/workflows", runPayload())
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 demo sentinel, got %d", rec.Code)
	}
	if !strings.Contains(resp.Message, "demo mode") {
		t.Errorf("demo sentinel missing: %q", resp.Message)
	}
}

// TestGetCredits 额度端点返回用量结构。
func TestGetCredits(t *testing.T) {
	srv := testServer(&fakeLLM{response: "ok"}, 10)
	rec, resp := doRequest(t, srv.Handler(), http.MethodGet, "/api/credits", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("credits failed: %d", rec.Code)
	}
	data := resp.Data.(map[string]interface{})
	if data["tier"] != "free" || data["limit"].(float64) != 10 {
		t.Errorf("unexpected usage payload: %+v", data)
	}
}

// TestTemplatesAndCatalog 模板与节点目录端点。
func TestTemplatesAndCatalog(t *testing.T) {
	srv := testServer(&fakeLLM{response: "ok"}, 10)
	handler := srv.Handler()

	rec, resp := doRequest(t, handler, http.MethodGet, "/api/templates", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("templates failed: %d", rec.Code)
	}
	if list := resp.Data.(map[string]interface{})["templates"].([]interface{}); len(list) == 0 {
		t.Error("expected built-in templates")
	}

	rec, resp = doRequest(t, handler, http.MethodGet, "/api/templates/signal-cleaning", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("template load failed: %d", rec.Code)
	}
	data := resp.Data.(map[string]interface{})
	if edges := data["edges"].([]interface{}); len(edges) != 5 {
		t.Errorf("signal-cleaning should autowire to 5 edges, got %d", len(edges))
	}

	rec, resp = doRequest(t, handler, http.MethodGet, "/api/catalog", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("catalog failed: %d", rec.Code)
	}
	if entries := resp.Data.(map[string]interface{})["catalog"].([]interface{}); len(entries) != 7 {
		t.Errorf("expected 7 catalog entries, got %d", len(entries))
	}
}

// TestModuleCRUD 模块保存去重、列表与删除。
func TestModuleCRUD(t *testing.T) {
	srv := testServer(&fakeLLM{response: "ok"}, 10)
	handler := srv.Handler()

	nodeBody := `{"node": {"id": "brain-1", "type": "brain", "position": {"x": 0, "y": 0},
		"data": {"label": "Alpha Detector (AI)", "prompt": "find alpha", "aiGenerated": true}}}`

	rec, resp := doRequest(t, handler, http.MethodPost, "/api/modules", nodeBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("module save failed: %d %s", rec.Code, rec.Body.String())
	}
	firstID := resp.Data.(map[string]interface{})["id"].(string)

	// 重复保存同名节点不会新增
	rec, resp = doRequest(t, handler, http.MethodPost, "/api/modules", nodeBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate save failed: %d", rec.Code)
	}
	if got := resp.Data.(map[string]interface{})["id"].(string); got != firstID {
		t.Errorf("duplicate save created new module: %s vs %s", got, firstID)
	}

	rec, resp = doRequest(t, handler, http.MethodGet, "/api/modules", "")
	if rec.Code != http.StatusOK {
		t.Fatal("module list failed")
	}
	if list := resp.Data.(map[string]interface{})["modules"].([]interface{}); len(list) != 1 {
		t.Fatalf("expected exactly 1 module, got %d", len(list))
	}

	rec, _ = doRequest(t, handler, http.MethodDelete, "/api/modules/"+firstID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("module delete failed: %d", rec.Code)
	}
	rec, _ = doRequest(t, handler, http.MethodDelete, "/api/modules/"+firstID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing module, got %d", rec.Code)
	}
	t.Logf("✅ 模块 CRUD 通过")
}

// TestAuthRequiredWhenSecretSet 配置 JWT_SECRET 后保护路由需要令牌。
func TestAuthRequiredWhenSecretSet(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.JWTSecret = "test-secret"
	orch := run.New(run.DefaultConfig(), &fakeLLM{response: "ok"}, &run.InstantClock{})
	srv := NewServer(cfg, nil, orch, nil, nil, module.NewRegistry(nil))
	handler := srv.Handler()

	rec, _ := doRequest(t, handler, http.MethodGet, "/api/templates", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	// health 不受保护
	rec, _ = doRequest(t, handler, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health should stay public: %d", rec.Code)
	}
}

// TestRunStream SSE 事件流以 run_started 开始、done 收尾。
func TestRunStream(t *testing.T) {
	srv := testServer(&fakeLLM{response: "streamed analysis"}, 10)

	req := httptest.NewRequest(http.MethodPost, "/api/workflows/run/stream", strings.NewReader(runPayload()))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.Handler().ServeHTTP(rec, req)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("stream did not finish")
	}

	body := rec.Body.String()
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q\n%s", ct, body)
	}
	if !strings.Contains(body, string(run.EventRunStarted)) {
		t.Error("run_started event missing")
	}
	if !strings.Contains(body, string(run.EventRunSucceeded)) {
		t.Error("run_succeeded event missing")
	}
	if !strings.Contains(body, "event: done") {
		t.Error("done event missing")
	}
}

// TestGenerateWorkflow 自然语言生成端点应用建议并返回节点与连线。
func TestGenerateWorkflow(t *testing.T) {
	suggestion := `{"nodes": [
		{"ref": "n1", "type": "data", "label": "EEG Input", "x": 0, "y": 0},
		{"ref": "n2", "type": "brain", "label": "Analyzer", "x": 300, "y": 0, "prompt": "inspect"}
	], "connections": [{"source": "n1", "target": "n2"}]}`

	orch := run.New(run.DefaultConfig(), &fakeLLM{response: "ok"}, &run.InstantClock{})
	wizard := template.NewWizard(&fakeLLM{response: suggestion}, "gpt-4o-mini")
	srv := NewServer(DefaultServerConfig(), nil, orch, wizard, nil, module.NewRegistry(nil))

	rec, resp := doRequest(t, srv.Handler(), http.MethodPost, "/api/workflows/generate",
		`{"prompt": "clean my eeg and analyze alpha"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate failed: %d %s", rec.Code, rec.Body.String())
	}
	data := resp.Data.(map[string]interface{})
	if nodes := data["nodes"].([]interface{}); len(nodes) != 2 {
		t.Errorf("expected 2 generated nodes, got %d", len(nodes))
	}
	if edges := data["edges"].([]interface{}); len(edges) != 1 {
		t.Errorf("expected 1 generated edge, got %d", len(edges))
	}
}

// TestExplainFailureIsBadGateway 解释端点在 LLM 失败时返回 502。
func TestExplainFailureIsBadGateway(t *testing.T) {
	orch := run.New(run.DefaultConfig(), &fakeLLM{response: "ok"}, &run.InstantClock{})
	wizard := template.NewWizard(&fakeLLM{err: fmt.Errorf("API error (status 429): rate limited")}, "gpt-4o-mini")
	srv := NewServer(DefaultServerConfig(), nil, orch, wizard, nil, module.NewRegistry(nil))

	rec, resp := doRequest(t, srv.Handler(), http.MethodPost, "/api/workflows/explain", runPayload())
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if !strings.Contains(resp.Message, "rate limited") {
		t.Errorf("error message not propagated: %q", resp.Message)
	}
}

// TestNodeDataRoundTripThroughAPI 载荷里的 data 字段按节点类型解码。
func TestNodeDataRoundTripThroughAPI(t *testing.T) {
	var req workflowPayload
	if err := json.Unmarshal([]byte(runPayload()), &req); err != nil {
		t.Fatalf("payload decode failed: %v", err)
	}
	if len(req.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(req.Nodes))
	}
	src, ok := req.Nodes[0].Data.(*canvas.DataSourceData)
	if !ok {
		t.Fatalf("data node decoded to %T", req.Nodes[0].Data)
	}
	if src.Subtype != "eeg-upload" {
		t.Errorf("subtype lost: %q", src.Subtype)
	}
	if _, ok := req.Nodes[1].Data.(*canvas.BrainData); !ok {
		t.Errorf("brain node decoded to %T", req.Nodes[1].Data)
	}
}
