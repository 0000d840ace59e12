package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"neurodata/internal/domain/canvas"
	"neurodata/internal/domain/module"
	"neurodata/internal/domain/result"
	"neurodata/internal/domain/run"
	"neurodata/internal/domain/workflow"
)

// memWorkflowStore 内存实现，handler 测试用。
type memWorkflowStore struct {
	workflows map[string]*workflow.Workflow
	runs      map[string]*workflow.RunRecord
}

func newMemWorkflowStore() *memWorkflowStore {
	return &memWorkflowStore{
		workflows: map[string]*workflow.Workflow{},
		runs:      map[string]*workflow.RunRecord{},
	}
}

func (s *memWorkflowStore) SaveWorkflow(ctx context.Context, w *workflow.Workflow) error {
	if w.ID == "" {
		w.ID = fmt.Sprintf("wf-%d", len(s.workflows)+1)
	}
	s.workflows[w.ID] = w
	return nil
}

func (s *memWorkflowStore) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	w, ok := s.workflows[id]
	if !ok {
		return nil, workflow.ErrNotFound
	}
	return w, nil
}

func (s *memWorkflowStore) ListWorkflows(ctx context.Context, ownerID string) ([]*workflow.Workflow, error) {
	var out []*workflow.Workflow
	for _, w := range s.workflows {
		out = append(out, w)
	}
	return out, nil
}

func (s *memWorkflowStore) DeleteWorkflow(ctx context.Context, id string) error {
	delete(s.workflows, id)
	return nil
}

func (s *memWorkflowStore) SaveRun(ctx context.Context, rec *workflow.RunRecord) error {
	s.runs[rec.WorkflowID] = rec
	return nil
}

func (s *memWorkflowStore) LatestRun(ctx context.Context, workflowID string) (*workflow.RunRecord, error) {
	rec, ok := s.runs[workflowID]
	if !ok {
		return nil, workflow.ErrNotFound
	}
	return rec, nil
}

func newRecorder(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func storedServer(t *testing.T) (*Server, *memWorkflowStore) {
	t.Helper()
	store := newMemWorkflowStore()
	store.workflows["wf-1"] = &workflow.Workflow{
		ID:   "wf-1",
		Name: "EEG Session",
		Nodes: []canvas.Node{
			{ID: "brain", Type: canvas.NodeTypeBrain,
				Data: &canvas.BrainData{BaseData: canvas.BaseData{Label: "Brain"}}},
		},
	}
	store.runs["wf-1"] = &workflow.RunRecord{
		ID:         "run-1",
		WorkflowID: "wf-1",
		Analysis:   `{"summary": "clean signal", "noise": "minimal"}`,
		NodeResults: []workflow.NodeResult{
			{NodeID: "brain", NodeName: "Brain", Result: "alpha stable"},
		},
		ElapsedMs: 1234,
		CreatedAt: time.Now(),
	}

	orch := run.New(run.DefaultConfig(), &fakeLLM{response: "ok"}, &run.InstantClock{})
	srv := NewServer(DefaultServerConfig(), store, orch, nil, nil, module.NewRegistry(nil))
	return srv, store
}

// TestGetResultsMapsByID 结果端点按节点 id 映射。
func TestGetResultsMapsByID(t *testing.T) {
	srv, _ := storedServer(t)
	rec, resp := doRequest(t, srv.Handler(), http.MethodGet, "/api/workflows/results/wf-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("results failed: %d %s", rec.Code, rec.Body.String())
	}
	data := resp.Data.(map[string]interface{})
	resultsMap := data["resultsMap"].(map[string]interface{})
	if resultsMap["brain"] != "alpha stable" {
		t.Errorf("resultsMap mismatch: %+v", resultsMap)
	}
}

// TestGetResultsNotFound 无结果时 404。
func TestGetResultsNotFound(t *testing.T) {
	srv, _ := storedServer(t)
	rec, _ := doRequest(t, srv.Handler(), http.MethodGet, "/api/workflows/results/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

// TestExportFormats 四种导出格式均可用。
func TestExportFormats(t *testing.T) {
	srv, _ := storedServer(t)
	handler := srv.Handler()

	cases := []struct {
		format      string
		contentType string
		contains    string
	}{
		{"json", "application/json", `"workflowName": "EEG Session"`},
		{"csv", "text/csv", "kind,title,content"},
		{"excel", "text/tab-separated-values", "Kind\tTitle\tContent"},
		{"clipboard", "text/plain; charset=utf-8", "EEG Session"},
	}
	for _, tc := range cases {
		req, _ := http.NewRequest(http.MethodGet, "/api/workflows/results/wf-1/export?format="+tc.format, nil)
		rec := newRecorder(handler, req)
		if rec.Code != http.StatusOK {
			t.Errorf("[%s] export failed: %d %s", tc.format, rec.Code, rec.Body.String())
			continue
		}
		if ct := rec.Header().Get("Content-Type"); ct != tc.contentType {
			t.Errorf("[%s] content type = %q, want %q", tc.format, ct, tc.contentType)
		}
		if !strings.Contains(rec.Body.String(), tc.contains) {
			t.Errorf("[%s] body missing %q:\n%s", tc.format, tc.contains, rec.Body.String())
		}
	}
	t.Logf("✅ 导出格式全部通过")
}

// TestExportMobileTruncation mobile=1 时按上限裁剪并带标记头。
func TestExportMobileTruncation(t *testing.T) {
	srv, store := storedServer(t)

	big := &workflow.RunRecord{WorkflowID: "wf-1", Analysis: strings.Repeat("a", 9000)}
	for i := 0; i < 20; i++ {
		big.NodeResults = append(big.NodeResults, workflow.NodeResult{
			NodeID: fmt.Sprintf("n-%d", i), NodeName: "n", Result: strings.Repeat("x", 2000),
		})
	}
	store.runs["wf-1"] = big

	req, _ := http.NewRequest(http.MethodGet, "/api/workflows/results/wf-1/export?format=json&mobile=1", nil)
	rec := newRecorder(srv.Handler(), req)
	if rec.Code != http.StatusOK {
		t.Fatalf("mobile export failed: %d", rec.Code)
	}
	if rec.Header().Get("X-Result-Truncated") != "true" {
		t.Error("expected truncation marker header")
	}
	limits := result.DefaultMobileLimits()
	if n := strings.Count(rec.Body.String(), `"nodeId"`); n != limits.MaxNodes {
		t.Errorf("perNode entries = %d, want %d", n, limits.MaxNodes)
	}
}

// TestExtractAttachment 文本附件抽取端点。
func TestExtractAttachment(t *testing.T) {
	srv, _ := storedServer(t)
	payload := fmt.Sprintf(`{"fileName": "session.csv", "data": "%s"}`,
		base64.StdEncoding.EncodeToString([]byte("ch1,ch2\n0.1,0.4")))

	rec, resp := doRequest(t, srv.Handler(), http.MethodPost, "/api/attachments/extract", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("extract failed: %d %s", rec.Code, rec.Body.String())
	}
	if text := resp.Data.(map[string]interface{})["text"].(string); !strings.HasPrefix(text, "ch1,ch2") {
		t.Errorf("extracted text mangled: %q", text)
	}

	rec, _ = doRequest(t, srv.Handler(), http.MethodPost, "/api/attachments/extract",
		`{"fileName": "rec.edf", "data": "AAAA"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for unsupported type, got %d", rec.Code)
	}
}
